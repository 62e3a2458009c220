package repository

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errUnavailable = errors.New("replay store unavailable")

// MemReplayStore is a mutex-guarded in-memory ReplayStore for tests and local
// development. Set-if-absent runs entirely under the lock, matching the
// atomicity of SET NX. When Unavailable is true every mark fails.
type MemReplayStore struct {
	mu          sync.Mutex
	markers     map[string]time.Time
	Unavailable bool
}

// NewMemReplayStore returns an empty in-memory replay store.
func NewMemReplayStore() *MemReplayStore {
	return &MemReplayStore{markers: make(map[string]time.Time)}
}

// MarkUsed sets the marker if absent or expired.
func (m *MemReplayStore) MarkUsed(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return false, errUnavailable
	}
	now := time.Now()
	if until, ok := m.markers[jti]; ok && now.Before(until) {
		return false, nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	m.markers[jti] = now.Add(ttl)
	return true, nil
}
