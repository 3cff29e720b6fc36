package ttlstore

import (
	"context"
	"sync"
	"time"
)

type memEntry[T any] struct {
	v        T
	deadline time.Time
}

// Memory is an in-process Store. A background sweeper drops lapsed entries;
// reads also ignore lapsed entries the sweeper has not reached yet.
type Memory[T any] struct {
	mu      sync.Mutex
	entries map[string]memEntry[T]
	now     func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// MemoryOption configures a Memory store.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	sweep time.Duration
	now   func() time.Time
}

// WithSweepInterval sets how often lapsed entries are purged. Zero disables
// the sweeper.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.sweep = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) { o.now = now }
}

// NewMemory returns a Memory store and starts its sweeper.
func NewMemory[T any](opts ...MemoryOption) *Memory[T] {
	o := memoryOptions{sweep: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Memory[T]{
		entries: make(map[string]memEntry[T]),
		now:     o.now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if o.sweep > 0 {
		go m.sweepLoop(o.sweep)
	} else {
		close(m.doneCh)
	}
	return m
}

func (m *Memory[T]) Put(_ context.Context, key string, v T, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry[T]{v: v, deadline: m.now().Add(ttl)}
	return nil
}

func (m *Memory[T]) Add(_ context.Context, key string, v T, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.deadline) {
		return ErrExists
	}
	m.entries[key] = memEntry[T]{v: v, deadline: now.Add(ttl)}
	return nil
}

func (m *Memory[T]) Get(_ context.Context, key string) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.deadline) {
		var zero T
		return zero, ErrNotFound
	}
	return e.v, nil
}

func (m *Memory[T]) Take(_ context.Context, key string) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	delete(m.entries, key)
	if !ok || !m.now().Before(e.deadline) {
		var zero T
		return zero, ErrNotFound
	}
	return e.v, nil
}

func (m *Memory[T]) Update(_ context.Context, key string, fn func(v *T) (bool, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.deadline) {
		delete(m.entries, key)
		return ErrNotFound
	}

	keep, err := fn(&e.v)
	if keep {
		m.entries[key] = e
	} else {
		delete(m.entries, key)
	}
	return err
}

func (m *Memory[T]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len counts entries including lapsed ones not yet swept.
func (m *Memory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes lapsed entries and reports how many were dropped.
func (m *Memory[T]) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.deadline) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Stop ends the sweeper. Safe to call more than once.
func (m *Memory[T]) Stop() {
	m.once.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

func (m *Memory[T]) sweepLoop(every time.Duration) {
	defer close(m.doneCh)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stopCh:
			return
		}
	}
}
