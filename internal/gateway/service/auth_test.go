package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/stretchr/testify/require"
)

func TestSignInWithoutStepUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createUser(t, "u1", "alice", "correct horse")

	res, err := h.auth.SignIn(ctx, "alice", "correct horse", "198.51.100.1")
	require.NoError(t, err)
	require.Empty(t, res.StepUpState)
	require.NotNil(t, res.Credentials)
	require.NotEmpty(t, res.Credentials.RefreshToken)

	claims, err := h.codec.Verify(res.Credentials.Token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, h.clock.Now().Unix()+3600, claims.ExpiresAt.Unix())

	sessions, err := h.sessions.ListSessions(ctx, "u1", res.Credentials.RefreshToken)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Current)
	require.Equal(t, "198.51.100.1", sessions[0].IP)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createUser(t, "u1", "alice", "correct horse")
	require.NoError(t, h.store.Users().CreateUser(ctx, domain.User{ID: "f1", Username: "fed", FederatedSubject: "google|1"}))

	for _, tc := range []struct{ user, pass string }{
		{"alice", "wrong"},
		{"nobody", "correct horse"},
		{"fed", ""},
	} {
		_, err := h.auth.SignIn(ctx, tc.user, tc.pass, "")
		require.ErrorIs(t, err, service.ErrInvalidCredential, tc.user)
	}
}

func TestSignInWithStepUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createUser(t, "u2", "bob", "pw")
	h.enableMFA(t, "u2", rfcSecret)

	res, err := h.auth.SignIn(ctx, "bob", "pw", "")
	require.NoError(t, err)
	require.Nil(t, res.Credentials)
	require.NotEmpty(t, res.StepUpState)

	// No session until the second factor is in.
	sessions, err := h.sessions.ListSessions(ctx, "u2", "")
	require.NoError(t, err)
	require.Empty(t, sessions)

	code := h.currentCode(t, rfcSecret)
	_, err = h.auth.CompleteStepUp(ctx, res.StepUpState, wrongCode(code), "")
	require.ErrorIs(t, err, service.ErrInvalidTOTPCode)

	creds, err := h.auth.CompleteStepUp(ctx, res.StepUpState, code, "")
	require.NoError(t, err)
	require.NotEmpty(t, creds.RefreshToken)
	require.Equal(t, "u2", creds.Claims.Subject)

	claims, err := h.codec.Verify(creds.Token)
	require.NoError(t, err)
	require.Equal(t, "u2", claims.Subject)

	_, err = h.auth.CompleteStepUp(ctx, res.StepUpState, code, "")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestSignUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	creds, err := h.auth.SignUp(ctx, service.SignUpInput{Username: "carol", Password: "pw"}, "")
	require.NoError(t, err)

	claims, err := h.codec.Verify(creds.Token)
	require.NoError(t, err)
	require.Equal(t, "carol", claims.Name)

	u, err := h.store.Users().GetUserByUsername(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)

	// The new account can sign in with its password.
	res, err := h.auth.SignIn(ctx, "carol", "pw", "")
	require.NoError(t, err)
	require.NotNil(t, res.Credentials)

	_, err = h.auth.SignUp(ctx, service.SignUpInput{Username: "carol", Password: "pw"}, "")
	require.ErrorIs(t, err, service.ErrConflict)
}

func TestSignUpWorkerFailureLeavesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.caller.reply = func(fakeCall) (broker.Result, error) {
		return broker.Result{Status: 500, Body: "boom"}, nil
	}

	_, err := h.auth.SignUp(ctx, service.SignUpInput{Username: "dave", Password: "pw"}, "")
	var up *service.UpstreamError
	require.ErrorAs(t, err, &up)

	_, err = h.store.Users().GetUserByUsername(ctx, "dave")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshAndLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createUser(t, "u1", "alice", "pw")

	res, err := h.auth.SignIn(ctx, "alice", "pw", "")
	require.NoError(t, err)
	refresh := res.Credentials.RefreshToken

	h.clock.Advance(2 * time.Hour)
	_, err = h.codec.Verify(res.Credentials.Token)
	require.Error(t, err)

	creds, err := h.auth.Refresh(ctx, refresh)
	require.NoError(t, err)
	require.Equal(t, refresh, creds.RefreshToken)
	claims, err := h.codec.Verify(creds.Token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)

	require.NoError(t, h.auth.Logout(ctx, "u1", refresh))
	require.ErrorIs(t, h.auth.Logout(ctx, "u1", refresh), service.ErrNotFound)
	require.ErrorIs(t, h.auth.Logout(ctx, "u1", ""), service.ErrNotFound)

	_, err = h.auth.Refresh(ctx, refresh)
	require.ErrorIs(t, err, service.ErrInvalidCredential)
}

func TestFederatedSignIn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := newFakeProvider(t)
	h.auth.Federation = newFederation(t, p, h.clock, h.codec)

	start, err := h.auth.StartFederation(ctx)
	require.NoError(t, err)

	res, err := h.auth.CompleteFederation(ctx, start.Nonce, goodCode, "")
	require.NoError(t, err)
	require.NotNil(t, res.Credentials)

	u, err := h.store.Users().GetUserByFederatedSubject(ctx, "google|42")
	require.NoError(t, err)
	require.Equal(t, u.ID, res.Credentials.Claims.Subject)
	require.Equal(t, "Ada", u.DisplayName)
	require.Regexp(t, `^adalovelace_[0-9a-z]{6}$`, u.Username)
	require.Len(t, h.caller.Calls(), 1)

	t.Run("nonce replay", func(t *testing.T) {
		_, err := h.auth.CompleteFederation(ctx, start.Nonce, goodCode, "")
		require.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("returning user is not onboarded again", func(t *testing.T) {
		start, err := h.auth.StartFederation(ctx)
		require.NoError(t, err)
		res, err := h.auth.CompleteFederation(ctx, start.Nonce, goodCode, "")
		require.NoError(t, err)
		require.Equal(t, u.ID, res.Credentials.Claims.Subject)
		require.Len(t, h.caller.Calls(), 1)
	})

	t.Run("returning user with step-up", func(t *testing.T) {
		h.enableMFA(t, u.ID, rfcSecret)
		start, err := h.auth.StartFederation(ctx)
		require.NoError(t, err)
		res, err := h.auth.CompleteFederation(ctx, start.Nonce, goodCode, "")
		require.NoError(t, err)
		require.Nil(t, res.Credentials)
		require.NotEmpty(t, res.StepUpState)
	})
}

func TestFederationDisabled(t *testing.T) {
	h := newHarness(t)
	_, err := h.auth.StartFederation(context.Background())
	require.ErrorIs(t, err, service.ErrProviderUnavailable)
	_, err = h.auth.CompleteFederation(context.Background(), "n", "c", "")
	require.ErrorIs(t, err, service.ErrProviderUnavailable)
}
