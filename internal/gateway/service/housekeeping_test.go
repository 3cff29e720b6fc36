package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) RefreshKeys(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestHousekeepingPurgesStaleSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createUser(t, "u1", "alice", "pw")

	old, err := h.sessions.CreateSession(ctx, "u1", "")
	require.NoError(t, err)
	h.clock.Advance(service.DefaultRefreshTTL)
	fresh, err := h.sessions.CreateSession(ctx, "u1", "")
	require.NoError(t, err)
	h.clock.Advance(time.Second)

	keys := &countingRefresher{}
	hk := service.NewHousekeepingService(h.store, keys, slogx.Discard(), time.Hour, 0)
	hk.Now = h.clock.Now
	hk.RunOnce(ctx)

	require.Equal(t, int32(1), keys.calls.Load())

	sessions, err := h.sessions.ListSessions(ctx, "u1", fresh)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Current)

	_, err = h.sessions.Rotate(ctx, old)
	require.ErrorIs(t, err, service.ErrInvalidCredential)
}

func TestHousekeepingSurvivesKeyRefreshFailure(t *testing.T) {
	h := newHarness(t)
	keys := &countingRefresher{err: errors.New("provider down")}

	hk := service.NewHousekeepingService(h.store, keys, slogx.Discard(), 10*time.Millisecond, 0)
	hk.Start()
	require.Eventually(t, func() bool { return keys.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	hk.Stop()
	hk.Stop()
}

func TestHousekeepingWithoutFederation(t *testing.T) {
	h := newHarness(t)
	hk := service.NewHousekeepingService(h.store, nil, slogx.Discard(), 0, 0)
	require.Equal(t, time.Hour, hk.Interval)
	require.Equal(t, service.DefaultRefreshTTL, hk.RefreshTTL)
	hk.RunOnce(context.Background())
}
