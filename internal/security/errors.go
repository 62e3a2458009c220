package security

import "errors"

// Error kinds for token validation and authentication. Callers discriminate
// with errors.Is; no store or crypto error crosses a component boundary
// without being translated to one of these.
var (
	// ErrInvalidSignature is returned when the token signature does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrImmatureSignature is returned when the token is not valid yet (nbf/iat in the future).
	ErrImmatureSignature = errors.New("token not valid yet")
	// ErrInvalidIssuer is returned when the iss claim does not match the configured issuer.
	ErrInvalidIssuer = errors.New("invalid token issuer")
	// ErrInvalidAudience is returned when the aud claim does not match the configured audience.
	ErrInvalidAudience = errors.New("invalid token audience")
	// ErrInvalidToken is returned when the token is malformed, of the wrong kind,
	// or fails any check that has no more specific kind.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingJTI is returned when the token carries no jti claim.
	ErrMissingJTI = errors.New("token missing jti")
	// ErrTokenRevoked is returned when the token's jti is on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenReplayed is returned when a single-use service token is presented twice.
	ErrTokenReplayed = errors.New("token already used")
	// ErrSubjectMismatch is returned when the token subject does not match the
	// identity asserted by the calling layer.
	ErrSubjectMismatch = errors.New("token subject mismatch")
	// ErrSessionExpired is returned when the caller's session epoch is stale
	// (forced global logout).
	ErrSessionExpired = errors.New("session expired")
	// ErrRateLimitExceeded is returned when a rate-limit bucket is full.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrStoreUnavailable is returned when a backing store cannot be reached.
	// All checks fail closed on it.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
