package http_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/aussiebroadwan/gateway/pkg/gatewaysdk"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/stretchr/testify/require"
)

const testSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestSignInSetsCredentialCookies(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1", "alice", "correct-horse")
	ctx := context.Background()

	c := env.client()
	resp, err := c.SignIn(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "u1", resp.Subject)

	jwtCookie := c.Cookie(httpx.CookieJWT)
	require.NotEmpty(t, jwtCookie)
	require.NotEmpty(t, c.Cookie(httpx.CookieRefreshToken))

	claims, err := env.codec.Verify(jwtCookie)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	require.WithinDuration(t, claims.ExpiresAtTime(), resp.ExpiresAt, time.Second)
}

func TestSignInWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1", "alice", "correct-horse")

	c := env.client()
	_, err := c.SignIn(context.Background(), "alice", "wrong-horse")
	require.True(t, gatewaysdk.IsCode(err, gatewaysdk.ErrorCodeInvalidCredential), "got %v", err)
	require.Empty(t, c.Cookie(httpx.CookieJWT))

	_, err = c.SignIn(context.Background(), "nobody", "wrong-horse")
	require.True(t, gatewaysdk.IsCode(err, gatewaysdk.ErrorCodeInvalidCredential), "got %v", err)
}

func TestSignInWithStepUp(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u2", "bob", "correct-horse")
	env.enableMFA(t, "u2", testSecret)
	ctx := context.Background()

	c := env.client()
	_, err := c.SignIn(ctx, "bob", "correct-horse")
	var stepUp *gatewaysdk.StepUpRequiredError
	require.ErrorAs(t, err, &stepUp)
	require.NotEmpty(t, stepUp.State)
	require.True(t, strings.HasPrefix(stepUp.Location, "/2fa?state="))
	require.Empty(t, c.Cookie(httpx.CookieJWT), "no credentials before the second factor")

	code := currentCode(t, testSecret)

	_, err = c.CompleteStepUp(ctx, stepUp.State, wrongCode(code))
	var apiErr *gatewaysdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	// The wrong code did not consume the state.
	resp, err := c.CompleteStepUp(ctx, stepUp.State, code)
	require.NoError(t, err)
	require.Equal(t, "u2", resp.Subject)
	require.NotEmpty(t, c.Cookie(httpx.CookieJWT))
	require.NotEmpty(t, c.Cookie(httpx.CookieRefreshToken))

	_, err = c.CompleteStepUp(ctx, stepUp.State, code)
	require.True(t, gatewaysdk.IsCode(err, gatewaysdk.ErrorCodeNotFound), "got %v", err)
}

func TestSignUpOnboardsProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.client()
	resp, err := c.SignUp(ctx, gatewaysdk.SignUpRequest{Username: "carol", Password: "long-enough-pw"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Subject)
	require.Equal(t, "carol", resp.Name)
	require.NotEmpty(t, c.Cookie(httpx.CookieJWT))

	calls := env.bridge.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, broker.QueueProfile, calls[0].Queue)
	require.Equal(t, broker.OpProfileCreate, calls[0].Op)
	require.Equal(t, resp.Subject, calls[0].Claim.Subject)

	user, err := env.store.Users().GetUserByUsername(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, resp.Subject, user.ID)

	_, err = env.client().SignUp(ctx, gatewaysdk.SignUpRequest{Username: "carol", Password: "long-enough-pw"})
	require.True(t, gatewaysdk.IsCode(err, gatewaysdk.ErrorCodeConflict), "got %v", err)
}

func TestSignUpRollsBackOnWorkerRejection(t *testing.T) {
	env := newTestEnv(t)
	env.bridge.setReply(func(bridgeCall) (broker.Result, error) {
		return broker.Result{Status: http.StatusUnprocessableEntity, Body: `{"reason":"avatar"}`}, nil
	})
	ctx := context.Background()

	c := env.client()
	_, err := c.SignUp(ctx, gatewaysdk.SignUpRequest{Username: "dave", Password: "long-enough-pw"})
	var werr *gatewaysdk.WorkerError
	require.ErrorAs(t, err, &werr)
	require.Equal(t, http.StatusUnprocessableEntity, werr.StatusCode)
	require.JSONEq(t, `{"reason":"avatar"}`, werr.Body)
	require.Empty(t, c.Cookie(httpx.CookieJWT))

	_, err = env.store.Users().GetUserByUsername(ctx, "dave")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSignUpBrokerDown(t *testing.T) {
	env := newTestEnv(t)
	env.bridge.setReply(func(bridgeCall) (broker.Result, error) {
		return broker.Result{}, broker.ErrUpstreamUnavailable
	})

	_, err := env.client().SignUp(context.Background(), gatewaysdk.SignUpRequest{Username: "erin", Password: "long-enough-pw"})
	require.True(t, gatewaysdk.IsCode(err, gatewaysdk.ErrorCodeUpstreamUnavailable), "got %v", err)

	_, err = env.store.Users().GetUserByUsername(context.Background(), "erin")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  gatewaysdk.SignUpRequest
	}{
		{name: "missing username", req: gatewaysdk.SignUpRequest{Password: "long-enough-pw"}},
		{name: "short password", req: gatewaysdk.SignUpRequest{Username: "frank", Password: "short"}},
		{name: "username with symbols", req: gatewaysdk.SignUpRequest{Username: "fr@nk", Password: "long-enough-pw"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client().SignUp(context.Background(), tt.req)
			require.True(t, gatewaysdk.IsCode(err, gatewaysdk.ErrorCodeBadRequest), "got %v", err)
		})
	}
	require.Empty(t, env.bridge.Calls())
}

func TestRefreshAndLogout(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1", "alice", "correct-horse")
	ctx := context.Background()

	c := env.client()
	_, err := c.SignIn(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	refresh := c.Cookie(httpx.CookieRefreshToken)

	resp, err := c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, "u1", resp.Subject)
	require.Equal(t, refresh, c.Cookie(httpx.CookieRefreshToken), "refresh token is not rotated")

	require.NoError(t, c.Logout(ctx))
	require.Empty(t, c.Cookie(httpx.CookieJWT))
	require.Empty(t, c.Cookie(httpx.CookieRefreshToken))

	// The revoked token no longer rotates.
	replay := env.client()
	env.setCookie(t, replay, httpx.CookieRefreshToken, refresh)
	_, err = replay.Refresh(ctx)
	require.True(t, gatewaysdk.IsCode(err, gatewaysdk.ErrorCodeInvalidCredential), "got %v", err)

	_, err = env.client().Refresh(ctx)
	require.True(t, gatewaysdk.IsCode(err, gatewaysdk.ErrorCodeUnauthenticated), "got %v", err)
}

func TestFederationDisabled(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client().StartFederation(context.Background())
	require.True(t, gatewaysdk.IsCode(err, gatewaysdk.ErrorCodeUpstreamUnavailable), "got %v", err)

	resp, err := env.server.Client().Get(env.server.URL + "/v1/auth/federation/callback?state=s")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorsAreTyped(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.server.Client().Post(env.server.URL+"/v1/auth/signin", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}
