package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is the mutable record for one browser session, keyed by session id
// in the shared store. At most one refresh jti is current at any instant;
// rotation swaps both jti/expiry pairs atomically.
type Session struct {
	ID               string
	UserID           string
	IP               string
	UAHash           string
	AccessJTI        string
	AccessExpiresAt  time.Time
	RefreshJTI       string
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
}

// NewSessionID returns a fresh session id with the owner's user id as prefix,
// so eviction bookkeeping can recover the owner even after the record itself
// has expired.
func NewSessionID(userID string) string {
	return userID + ":" + uuid.New().String()
}

// UserIDFromSessionID recovers the owner user id embedded in the session id.
// Returns "" if the id does not carry a prefix.
func UserIDFromSessionID(sessionID string) string {
	idx := strings.LastIndex(sessionID, ":")
	if idx <= 0 {
		return ""
	}
	return sessionID[:idx]
}

// BindingMode controls how a presented token's ip and user-agent fingerprint
// are checked against the stored session.
type BindingMode string

const (
	// BindingStrict rejects any ip or fingerprint mismatch.
	BindingStrict BindingMode = "strict"
	// BindingRelaxed logs the mismatch but proceeds; for environments where
	// strict binding is impractical (corporate NAT, proxy pools).
	BindingRelaxed BindingMode = "relaxed"
)

// CookieParams is the policy for the browser-facing refresh cookie. Pure
// policy, no state; MaxAge defaults to the refresh TTL.
type CookieParams struct {
	Secure   bool
	HTTPOnly bool
	SameSite string
	Domain   string
	Path     string
	MaxAge   time.Duration
}

// TokenPair is the access/refresh pair returned by session creation and
// refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
