/**
 * @description
 * This file implements per-address rate limiting for score signature requests.
 * It prevents spam/abuse from individual players before any signing or nonce
 * state is touched.
 *
 * Key features:
 * - Fixed Window: Each address gets a counter that resets after a configured
 *   window; rejected requests do not consume quota.
 * - Atomic Check-and-Increment: The decision and the counter update happen in
 *   one critical section, so concurrent requests from the same address cannot
 *   exceed the limit.
 * - Bounded Memory: A background sweep deletes expired windows on a fixed
 *   interval.
 */

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default policy for the signing endpoint: 3 requests per address per
// 5-minute window.
const (
	DefaultLimit         = 3
	DefaultWindow        = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Result reports the outcome of an admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Status describes the current window for an address without mutating it.
type Status struct {
	Count     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is the admission-control contract. The in-memory implementation is
// valid for single-instance deployments and tests; the Redis implementation
// shares state across instances.
type Limiter interface {
	// Allow performs the check-and-increment for one request from address.
	Allow(ctx context.Context, address string) (Result, error)
	// Reset clears the window for an address (admin function).
	Reset(ctx context.Context, address string) error
	// Status reports the current window, or nil if none is active. It never
	// mutates state and reports nil once a window has lapsed even if the
	// sweep has not yet removed it.
	Status(ctx context.Context, address string) (*Status, error)
}

var _ Limiter = (*MemoryLimiter)(nil)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window per-address rate limiter backed by a
// process-local map.
type MemoryLimiter struct {
	mu     sync.Mutex
	store  map[string]*window
	limit  int
	window time.Duration

	// now is swappable in tests.
	now func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter allowing `limit` requests per
// `windowDuration` per address. Non-positive arguments fall back to the
// defaults.
func NewMemoryLimiter(limit int, windowDuration time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowDuration <= 0 {
		windowDuration = DefaultWindow
	}
	return &MemoryLimiter{
		store:  make(map[string]*window),
		limit:  limit,
		window: windowDuration,
		now:    time.Now,
	}
}

// Allow checks whether a request from the address may proceed and consumes
// one unit of quota if so. Rejections are free and do not advance the window.
func (l *MemoryLimiter) Allow(_ context.Context, address string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, exists := l.store[address]

	// No entry or window expired - start a fresh window.
	if !exists || !now.Before(entry.resetAt) {
		resetAt := now.Add(l.window)
		l.store[address] = &window{count: 1, resetAt: resetAt}
		return Result{Allowed: true, Remaining: l.limit - 1, ResetAt: resetAt}, nil
	}

	if entry.count >= l.limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: entry.resetAt}, nil
	}

	entry.count++
	return Result{Allowed: true, Remaining: l.limit - entry.count, ResetAt: entry.resetAt}, nil
}

// Reset clears the window for an address.
func (l *MemoryLimiter) Reset(_ context.Context, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.store, address)
	return nil
}

// Status reports the active window for an address, or nil if none exists or
// the window has lapsed.
func (l *MemoryLimiter) Status(_ context.Context, address string) (*Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.store[address]
	if !exists || !l.now().Before(entry.resetAt) {
		return nil, nil
	}

	remaining := l.limit - entry.count
	if remaining < 0 {
		remaining = 0
	}
	return &Status{Count: entry.count, Remaining: remaining, ResetAt: entry.resetAt}, nil
}

// TrackedAddresses reports how many windows are currently held, for
// monitoring.
func (l *MemoryLimiter) TrackedAddresses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.store)
}

// Run sweeps expired windows every interval until the context is cancelled.
// The sweep takes the same lock as the request path but only long enough to
// walk the map once.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for address, entry := range l.store {
		if !now.Before(entry.resetAt) {
			delete(l.store, address)
		}
	}
}
