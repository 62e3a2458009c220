package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meridian-trading/authcore/internal/session/domain"
)

// MemRepository is a mutex-guarded in-memory Repository for tests and local
// development. RotateRefresh holds the lock for the whole check-then-mutate,
// so it honors the same all-or-nothing contract as the server-evaluated
// script; it never tolerates the race the CAS exists to prevent. The per-user
// index carries its own expiry, mirroring the redis index key's TTL, and
// RotateRefresh extends both, as the rotate script does.
type MemRepository struct {
	mu          sync.Mutex
	records     map[string]*memRecord
	index       map[string]map[string]time.Time // userID -> sessionID -> createdAt
	indexExpiry map[string]time.Time            // userID -> index key expiry
	now         func() time.Time
}

type memRecord struct {
	session   domain.Session
	expiresAt time.Time
}

// NewMemRepository returns an empty in-memory session repository.
func NewMemRepository() *MemRepository {
	return &MemRepository{
		records:     make(map[string]*memRecord),
		index:       make(map[string]map[string]time.Time),
		indexExpiry: make(map[string]time.Time),
		now:         time.Now,
	}
}

// SetNow overrides the clock; for tests.
func (m *MemRepository) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Create stores a copy of the record and indexes it under the owner.
func (m *MemRepository) Create(_ context.Context, s *domain.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.records[s.ID] = &memRecord{session: *s, expiresAt: now.Add(ttl)}
	if m.index[s.UserID] == nil {
		m.index[s.UserID] = make(map[string]time.Time)
	}
	m.index[s.UserID][s.ID] = s.CreatedAt
	m.indexExpiry[s.UserID] = now.Add(ttl)
	return nil
}

// Get returns a copy of the record, or nil if absent or expired.
func (m *MemRepository) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.liveRecord(sessionID)
	if rec == nil {
		return nil, nil
	}
	s := rec.session
	return &s, nil
}

// Delete removes the record and its index entry.
func (m *MemRepository) Delete(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	delete(m.index[userID], sessionID)
	return nil
}

// RemoveFromIndex drops the index entry only.
func (m *MemRepository) RemoveFromIndex(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.index[userID], sessionID)
	return nil
}

// SessionIDs returns the user's session ids ordered oldest first. An expired
// index returns nothing, as an expired redis index key would.
func (m *MemRepository) SessionIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexExpired(userID) {
		return nil, nil
	}
	type entry struct {
		id        string
		createdAt time.Time
	}
	entries := make([]entry, 0, len(m.index[userID]))
	for id, createdAt := range m.index[userID] {
		entries = append(entries, entry{id: id, createdAt: createdAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].createdAt.Equal(entries[j].createdAt) {
			return entries[i].id < entries[j].id
		}
		return entries[i].createdAt.Before(entries[j].createdAt)
	})
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

// RotateRefresh performs the compare-and-swap under the repository lock and
// extends both the record and the owner's index expiry.
func (m *MemRepository) RotateRefresh(_ context.Context, sessionID, presentedJTI string, next RefreshRotation) (*RotationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.liveRecord(sessionID)
	if rec == nil || rec.session.RefreshJTI != presentedJTI {
		return nil, ErrConflict
	}
	result := &RotationResult{
		PrevAccessJTI:       rec.session.AccessJTI,
		PrevAccessExpiresAt: rec.session.AccessExpiresAt,
	}
	rec.session.AccessJTI = next.AccessJTI
	rec.session.AccessExpiresAt = next.AccessExpiresAt
	rec.session.RefreshJTI = next.RefreshJTI
	rec.session.RefreshExpiresAt = next.RefreshExpiresAt
	rec.expiresAt = m.now().Add(next.TTL)
	m.indexExpiry[rec.session.UserID] = rec.expiresAt
	return result, nil
}

// ExpireRecord drops the record but leaves the index entry, simulating
// natural TTL expiry in the shared store. For tests.
func (m *MemRepository) ExpireRecord(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
}

// liveRecord returns the record if present and unexpired. Caller holds mu.
func (m *MemRepository) liveRecord(sessionID string) *memRecord {
	rec, ok := m.records[sessionID]
	if !ok {
		return nil
	}
	if m.now().After(rec.expiresAt) {
		delete(m.records, sessionID)
		return nil
	}
	return rec
}

// indexExpired reports whether the user's whole index lapsed. Caller holds mu.
func (m *MemRepository) indexExpired(userID string) bool {
	expiry, ok := m.indexExpiry[userID]
	if !ok {
		return len(m.index[userID]) == 0
	}
	if m.now().After(expiry) {
		delete(m.index, userID)
		delete(m.indexExpiry, userID)
		return true
	}
	return false
}
