package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/meridian-trading/authcore/internal/authority/domain"
)

var errUnavailable = errors.New("authority store unavailable")

// MemRepository is a mutex-guarded in-memory Repository for tests and local
// development. When Unavailable is true every lookup fails, simulating an
// unreachable relational store.
type MemRepository struct {
	mu          sync.Mutex
	authorities map[string]domain.Authority
	strategies  map[string][]string
	Unavailable bool
}

// NewMemRepository returns an empty in-memory authority repository.
func NewMemRepository() *MemRepository {
	return &MemRepository{
		authorities: make(map[string]domain.Authority),
		strategies:  make(map[string][]string),
	}
}

// SetAuthority stores or replaces the user's authority row.
func (m *MemRepository) SetAuthority(a domain.Authority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorities[a.UserID] = a
}

// SetStrategies stores the user's authorized strategies.
func (m *MemRepository) SetStrategies(userID string, strategies []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[userID] = append([]string(nil), strategies...)
}

// BumpEpoch increments the user's session epoch, the global-logout primitive.
func (m *MemRepository) BumpEpoch(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.authorities[userID]
	a.SessionEpoch++
	m.authorities[userID] = a
}

// GetAuthority returns the stored authority, or nil if absent.
func (m *MemRepository) GetAuthority(_ context.Context, userID string) (*domain.Authority, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return nil, errUnavailable
	}
	a, ok := m.authorities[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// ListStrategies returns the stored strategies.
func (m *MemRepository) ListStrategies(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return nil, errUnavailable
	}
	return append([]string(nil), m.strategies[userID]...), nil
}
