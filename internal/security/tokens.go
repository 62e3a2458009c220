package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// TokenKind distinguishes the three credential kinds the core issues.
type TokenKind string

const (
	// KindAccess is the short-lived browser-facing credential.
	KindAccess TokenKind = "access"
	// KindRefresh is the long-lived rotation credential.
	KindRefresh TokenKind = "refresh"
	// KindService is the single-use internal service-to-service credential.
	KindService TokenKind = "service"
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
	IP        string `json:"ip,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
}

// RefreshClaims holds JWT claims for the refresh token. AccessJTI back-references
// the access token issued alongside it, for audit chaining.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
	AccessJTI string `json:"access_jti,omitempty"`
}

// ServiceClaims holds JWT claims for the service token. Structurally identical
// to AccessClaims; only the gateway authenticator accepts this kind.
type ServiceClaims struct {
	jwt.RegisteredClaims
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
	IP        string `json:"ip,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
}

// Claims is the verified, kind-agnostic view returned by Validate and
// DecodeUnverified. AccessJTI is set only for refresh tokens; IP and UAHash
// only for access and service tokens.
type Claims struct {
	Kind      TokenKind
	Subject   string
	JTI       string
	SessionID string
	IP        string
	UAHash    string
	AccessJTI string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// kindClaims is implemented by the per-kind claim structs so Validate can parse
// into the right typed structure exactly once.
type kindClaims interface {
	jwt.Claims
	tokenKind() string
	view() *Claims
}

func (c *AccessClaims) tokenKind() string { return c.Kind }
func (c *AccessClaims) view() *Claims {
	return &Claims{
		Kind:      KindAccess,
		Subject:   c.Subject,
		JTI:       c.ID,
		SessionID: c.SessionID,
		IP:        c.IP,
		UAHash:    c.UAHash,
		IssuedAt:  numericTime(c.IssuedAt),
		ExpiresAt: numericTime(c.ExpiresAt),
	}
}

func (c *RefreshClaims) tokenKind() string { return c.Kind }
func (c *RefreshClaims) view() *Claims {
	return &Claims{
		Kind:      KindRefresh,
		Subject:   c.Subject,
		JTI:       c.ID,
		SessionID: c.SessionID,
		AccessJTI: c.AccessJTI,
		IssuedAt:  numericTime(c.IssuedAt),
		ExpiresAt: numericTime(c.ExpiresAt),
	}
}

func (c *ServiceClaims) tokenKind() string { return c.Kind }
func (c *ServiceClaims) view() *Claims {
	return &Claims{
		Kind:      KindService,
		Subject:   c.Subject,
		JTI:       c.ID,
		SessionID: c.SessionID,
		IP:        c.IP,
		UAHash:    c.UAHash,
		IssuedAt:  numericTime(c.IssuedAt),
		ExpiresAt: numericTime(c.ExpiresAt),
	}
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

// RevocationStore is the TTL-bounded jti revocation list. The redis
// implementation lives in internal/revocation.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenService issues and validates RS256-signed access, refresh, and service
// tokens. Signing and verification are pure CPU work; revocation state lives in
// the injected RevocationStore.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	serviceTTL time.Duration
	leeway     time.Duration
	revocation RevocationStore
	logger     zerolog.Logger
	now        func() time.Time
}

// TokenServiceOption modifies a TokenService at construction.
type TokenServiceOption func(*TokenService)

// WithNow overrides the clock; for tests.
func WithNow(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService returns a TokenService signing with the given RSA key pair.
// issuer and audience scope every token to this deployment; leeway is the
// clock-skew tolerance applied to exp/iat checks.
func NewTokenService(
	privateKey *rsa.PrivateKey,
	publicKey *rsa.PublicKey,
	issuer, audience string,
	accessTTL, refreshTTL, serviceTTL, leeway time.Duration,
	revocation RevocationStore,
	logger zerolog.Logger,
	options ...TokenServiceOption,
) *TokenService {
	s := &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		serviceTTL: serviceTTL,
		leeway:     leeway,
		revocation: revocation,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// IssueAccess issues a short-lived access JWT bound to the client ip and
// user-agent fingerprint. Returns the token string, its jti, and expiry.
func (s *TokenService) IssueAccess(userID, sessionID, ip, userAgent string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := s.now().UTC()
	expiresAt = now.Add(s.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: s.registered(jti, userID, now, expiresAt),
		Kind:             string(KindAccess),
		SessionID:        sessionID,
		IP:               ip,
		UAHash:           FingerprintUserAgent(userAgent),
	}
	token, err = s.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	s.logIssued(KindAccess, jti, userID, sessionID)
	return token, jti, expiresAt, nil
}

// IssueRefresh issues a long-lived refresh JWT carrying accessJTI for audit
// chaining. Returns the token string, its jti, and expiry.
func (s *TokenService) IssueRefresh(userID, sessionID, accessJTI string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := s.now().UTC()
	expiresAt = now.Add(s.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: s.registered(jti, userID, now, expiresAt),
		Kind:             string(KindRefresh),
		SessionID:        sessionID,
		AccessJTI:        accessJTI,
	}
	token, err = s.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	s.logIssued(KindRefresh, jti, userID, sessionID)
	return token, jti, expiresAt, nil
}

// IssueService issues a single-use service JWT for internal service-to-service
// calls. Returns the token string, its jti, and expiry.
func (s *TokenService) IssueService(userID, sessionID, ip, userAgent string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := s.now().UTC()
	expiresAt = now.Add(s.serviceTTL)
	claims := ServiceClaims{
		RegisteredClaims: s.registered(jti, userID, now, expiresAt),
		Kind:             string(KindService),
		SessionID:        sessionID,
		IP:               ip,
		UAHash:           FingerprintUserAgent(userAgent),
	}
	token, err = s.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	s.logIssued(KindService, jti, userID, sessionID)
	return token, jti, expiresAt, nil
}

func (s *TokenService) registered(jti, userID string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   userID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (s *TokenService) sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return t.SignedString(s.privateKey)
}

// Validate verifies signature, issuer, audience, expiry (with leeway), and
// kind; requires a non-empty jti; and checks the revocation list. Returns the
// typed claims on success or one of the security error kinds.
func (s *TokenService) Validate(ctx context.Context, tokenString string, expected TokenKind) (*Claims, error) {
	var kc kindClaims
	switch expected {
	case KindAccess:
		kc = &AccessClaims{}
	case KindRefresh:
		kc = &RefreshClaims{}
	case KindService:
		kc = &ServiceClaims{}
	default:
		return nil, ErrInvalidToken
	}

	tok, err := jwt.ParseWithClaims(tokenString, kc, s.keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		mapped := mapJWTError(err)
		s.logRejected(expected, "", mapped)
		return nil, mapped
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	if kc.tokenKind() != string(expected) {
		s.logRejected(expected, kc.view().JTI, ErrInvalidToken)
		return nil, ErrInvalidToken
	}
	claims := kc.view()
	if claims.JTI == "" {
		return nil, ErrMissingJTI
	}

	revoked, err := s.revocation.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("%w: revocation lookup: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		s.logRejected(expected, claims.JTI, ErrTokenRevoked)
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// unverifiedClaims carries the union of all per-kind fields for diagnostics.
type unverifiedClaims struct {
	jwt.RegisteredClaims
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
	IP        string `json:"ip,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
	AccessJTI string `json:"access_jti,omitempty"`
}

// DecodeUnverified parses claims without checking the signature or expiry.
// Never use the result for authorization decisions; diagnostics only.
func (s *TokenService) DecodeUnverified(tokenString string) (*Claims, error) {
	var raw unverifiedClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &raw); err != nil {
		return nil, ErrInvalidToken
	}
	return &Claims{
		Kind:      TokenKind(raw.Kind),
		Subject:   raw.Subject,
		JTI:       raw.ID,
		SessionID: raw.SessionID,
		IP:        raw.IP,
		UAHash:    raw.UAHash,
		AccessJTI: raw.AccessJTI,
		IssuedAt:  numericTime(raw.IssuedAt),
		ExpiresAt: numericTime(raw.ExpiresAt),
	}, nil
}

// Revoke puts jti on the revocation list until expiresAt. The marker TTL is
// bounded by the token's remaining lifetime, with a one-second floor so a
// marker is always written even for an already-expired token.
func (s *TokenService) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.revocation.Revoke(ctx, jti, ttl); err != nil {
		return fmt.Errorf("%w: revoke: %v", ErrStoreUnavailable, err)
	}
	s.logger.Info().Str("jti", jti).Time("expires_at", expiresAt).Msg("token revoked")
	return nil
}

// IsRevoked reports whether jti is on the revocation list.
func (s *TokenService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := s.revocation.IsRevoked(ctx, jti)
	if err != nil {
		return false, fmt.Errorf("%w: revocation lookup: %v", ErrStoreUnavailable, err)
	}
	return revoked, nil
}

func (s *TokenService) keyfunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, ErrInvalidSignature
	}
	return s.publicKey, nil
}

func (s *TokenService) logIssued(kind TokenKind, jti, userID, sessionID string) {
	s.logger.Info().
		Str("kind", string(kind)).
		Str("jti", jti).
		Str("user_id", userID).
		Str("session_id", sessionID).
		Msg("token issued")
}

func (s *TokenService) logRejected(kind TokenKind, jti string, reason error) {
	ev := s.logger.Debug()
	switch {
	case errors.Is(reason, ErrInvalidIssuer),
		errors.Is(reason, ErrInvalidAudience),
		errors.Is(reason, ErrInvalidSignature),
		errors.Is(reason, ErrTokenRevoked):
		ev = s.logger.Warn()
	}
	ev.Str("kind", string(kind)).Str("jti", jti).Err(reason).Msg("token rejected")
}

// mapJWTError translates golang-jwt parse/validation errors into the core's
// error kinds. Order matters: the library wraps several kinds together.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrImmatureSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrInvalidIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrInvalidAudience
	default:
		return ErrInvalidToken
	}
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
