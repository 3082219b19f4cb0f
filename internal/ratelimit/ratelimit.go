package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store records the last reserved request slot per platform key.
type Store interface {
	// Reserve atomically claims the next request slot for key: the later of
	// now and the previous slot plus interval. The claimed slot becomes the
	// key's new last-request time.
	Reserve(ctx context.Context, key string, interval time.Duration, now time.Time) (time.Time, error)

	// Last returns the most recently reserved slot for key.
	Last(ctx context.Context, key string) (time.Time, bool, error)
}

// Limiter blocks callers until their platform's next slot.
type Limiter struct {
	store Store
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter backed by store. A nil store means a fresh MemoryStore.
func New(store Store) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{
		store: store,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Wait blocks until at least interval has passed since the previous request
// for key was allowed through, and returns how long it waited. A non-positive
// interval still records the request but never waits.
func (l *Limiter) Wait(ctx context.Context, key string, interval time.Duration) (time.Duration, error) {
	if interval < 0 {
		interval = 0
	}

	now := l.now()
	slot, err := l.store.Reserve(ctx, key, interval, now)
	if err != nil {
		return 0, fmt.Errorf("reserving slot for %s: %w", key, err)
	}

	wait := slot.Sub(now)
	if wait <= 0 {
		return 0, nil
	}
	if err := l.sleep(ctx, wait); err != nil {
		return 0, err
	}
	return wait, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MemoryStore is an in-process Store. The mutex guards only the
// compare-and-set of a slot, never a wait.
type MemoryStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]time.Time)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key string, interval time.Duration, now time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := now
	if prev, ok := s.last[key]; ok {
		if next := prev.Add(interval); next.After(slot) {
			slot = next
		}
	}
	s.last[key] = slot
	return slot, nil
}

// Last implements Store.
func (s *MemoryStore) Last(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.last[key]
	return t, ok, nil
}
