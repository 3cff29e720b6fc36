package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/stretchr/testify/require"
)

func TestOnboardCreatesAccountAndProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	claims := h.codec.Issue("n1", "Newcomer", "")
	attach := &broker.Attachment{Token: "signed", Claims: claims}
	u, res, err := h.onboarding.Onboard(ctx, service.NewAccount{
		ID:          "n1",
		Username:    "newcomer",
		DisplayName: "Newcomer",
	}, claims, attach)
	require.NoError(t, err)
	require.Equal(t, "n1", u.ID)
	require.Same(t, attach, res.Attach)

	calls := h.caller.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, broker.QueueProfile, calls[0].Queue)
	require.Equal(t, broker.OpProfileCreate, calls[0].Op)
	require.Equal(t, "n1", calls[0].Claim.Subject)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(calls[0].Body), &body))
	require.Equal(t, "newcomer", body["username"])

	stored, err := h.store.Users().GetUserByID(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, "newcomer", stored.Username)
}

func TestOnboardCompensatesOnWorkerFailure(t *testing.T) {
	tests := []struct {
		name    string
		reply   func(fakeCall) (broker.Result, error)
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "worker rejects",
			reply: func(fakeCall) (broker.Result, error) {
				return broker.Result{Status: 422, Body: `{"error":"bad name"}`}, nil
			},
			wantErr: func(t *testing.T, err error) {
				var up *service.UpstreamError
				require.ErrorAs(t, err, &up)
				require.Equal(t, 422, up.Status)
				require.JSONEq(t, `{"error":"bad name"}`, up.Body)
			},
		},
		{
			name: "worker times out",
			reply: func(fakeCall) (broker.Result, error) {
				return broker.Result{}, broker.ErrGatewayTimeout
			},
			wantErr: func(t *testing.T, err error) {
				require.ErrorIs(t, err, broker.ErrGatewayTimeout)
			},
		},
		{
			name: "broker down",
			reply: func(fakeCall) (broker.Result, error) {
				return broker.Result{}, broker.ErrUpstreamUnavailable
			},
			wantErr: func(t *testing.T, err error) {
				require.ErrorIs(t, err, broker.ErrUpstreamUnavailable)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.caller.reply = tt.reply

			_, _, err := h.onboarding.Onboard(context.Background(), service.NewAccount{ID: "n1", Username: "newcomer"}, h.codec.Issue("n1", "", ""), nil)
			tt.wantErr(t, err)

			_, err = h.store.Users().GetUserByID(context.Background(), "n1")
			require.ErrorIs(t, err, store.ErrNotFound)

			// The name is free again.
			h.caller.reply = nil
			_, _, err = h.onboarding.Onboard(context.Background(), service.NewAccount{ID: "n2", Username: "newcomer"}, h.codec.Issue("n2", "", ""), nil)
			require.NoError(t, err)
		})
	}
}

func TestOnboardCompensatesAfterClientLeaves(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.caller.reply = func(fakeCall) (broker.Result, error) {
		cancel()
		return broker.Result{}, context.Canceled
	}

	_, _, err := h.onboarding.Onboard(ctx, service.NewAccount{ID: "n1", Username: "newcomer"}, h.codec.Issue("n1", "", ""), nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = h.store.Users().GetUserByID(context.Background(), "n1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOnboardTakenUsername(t *testing.T) {
	h := newHarness(t)
	h.createUser(t, "u1", "alice", "pw")

	_, _, err := h.onboarding.Onboard(context.Background(), service.NewAccount{ID: "n1", Username: "alice"}, h.codec.Issue("n1", "", ""), nil)
	require.ErrorIs(t, err, service.ErrConflict)
	require.Empty(t, h.caller.Calls())

	// The existing account is untouched.
	_, err = h.store.Users().GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
}
