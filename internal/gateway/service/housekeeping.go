package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/store"
)

// KeyRefresher reloads a federated key set.
type KeyRefresher interface {
	RefreshKeys(ctx context.Context) error
}

// HousekeepingService periodically deletes refresh tokens past their
// lifetime and refreshes the federated key set so provider key rotation is
// picked up before the first unknown kid.
type HousekeepingService struct {
	Store      store.Store
	Keys       KeyRefresher // optional
	Logger     *slog.Logger
	Interval   time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(s store.Store, keys KeyRefresher, logger *slog.Logger, interval, refreshTTL time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	return &HousekeepingService{
		Store:      s,
		Keys:       keys,
		Logger:     logger,
		Interval:   interval,
		RefreshTTL: refreshTTL,
		Now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	if s.started.Swap(true) {
		return
	}
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if !s.started.Load() {
		return
	}
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one cleanup pass. Each step is independent; a failure in
// one does not stop the other.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	cutoff := s.Now().Add(-s.RefreshTTL)
	if n, err := s.Store.RefreshTokens().DeleteRefreshTokensBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete stale refresh tokens", "error", err)
	} else {
		s.Logger.Debug("deleted stale refresh tokens", "count", n)
	}

	if s.Keys != nil {
		if err := s.Keys.RefreshKeys(ctx); err != nil {
			s.Logger.Warn("failed to refresh federated keys", "error", err)
		}
	}
}
