// Package repository owns session-record persistence in the shared store:
// the per-session record, the per-user ordered index, and the atomic refresh
// rotation that guards against concurrent or replayed refresh attempts.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-trading/authcore/internal/session/domain"
)

// ErrConflict is returned by RotateRefresh when the presented refresh jti is
// not the record's current one (already used or revoked) or the record is
// gone.
var ErrConflict = errors.New("refresh rotation conflict")

// RefreshRotation carries the replacement jti/expiry pairs for an atomic
// rotation. TTL is the new record lifetime (the new refresh TTL).
type RefreshRotation struct {
	AccessJTI        string
	AccessExpiresAt  time.Time
	RefreshJTI       string
	RefreshExpiresAt time.Time
	TTL              time.Duration
}

// RotationResult reports the superseded access token so the caller can revoke
// it with an accurate TTL. PrevAccessExpiresAt is zero when an older record
// did not store the expiry.
type RotationResult struct {
	PrevAccessJTI       string
	PrevAccessExpiresAt time.Time
}

// Repository is the session store contract. All mutation of a session record
// and its user index goes through here; RotateRefresh must be a single
// indivisible compare-and-swap against the store.
type Repository interface {
	// Create writes the record with the given TTL and appends the session id
	// to the owner's index.
	Create(ctx context.Context, s *domain.Session, ttl time.Duration) error
	// Get returns the record, or nil if absent or expired.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	// Delete removes the record and its index entry.
	Delete(ctx context.Context, userID, sessionID string) error
	// RemoveFromIndex drops a stale index entry whose record already expired.
	RemoveFromIndex(ctx context.Context, userID, sessionID string) error
	// SessionIDs returns the user's session ids ordered oldest first.
	SessionIDs(ctx context.Context, userID string) ([]string, error)
	// RotateRefresh atomically swaps both jti/expiry pairs and extends the
	// record TTL, but only if the record's current refresh jti equals
	// presentedJTI. Returns ErrConflict otherwise.
	RotateRefresh(ctx context.Context, sessionID, presentedJTI string, next RefreshRotation) (*RotationResult, error)
}
