package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemLimiter is a mutex-guarded in-memory Limiter for tests and local
// development. It applies the same prune-count-record sequence as the
// server-evaluated script, atomically under the lock. When Unavailable is
// true every check is denied, mirroring the fail-closed policy of the redis
// implementation.
type MemLimiter struct {
	mu          sync.Mutex
	buckets     map[string][]time.Time
	now         func() time.Time
	Unavailable bool
}

// NewMemLimiter returns an empty in-memory limiter.
func NewMemLimiter() *MemLimiter {
	return &MemLimiter{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// SetNow overrides the clock; for tests.
func (l *MemLimiter) SetNow(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow applies the sliding-window check.
func (l *MemLimiter) Allow(_ context.Context, subject, action string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Unavailable {
		return false
	}
	key := action + ":" + subject
	now := l.now()
	cutoff := now.Add(-window)
	kept := l.buckets[key][:0]
	for _, ts := range l.buckets[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.buckets[key] = kept
	if len(kept) >= limit {
		return false
	}
	l.buckets[key] = append(kept, now)
	return true
}
