package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func TestTokenService_IssueAndValidateAccess(t *testing.T) {
	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	ctx := context.Background()

	token, jti, exp, err := s.IssueAccess("alice", "alice:sess-1", "10.0.0.1", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" || jti == "" {
		t.Fatal("access token or jti empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	claims, err := s.Validate(ctx, token, KindAccess)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "alice")
	}
	if claims.JTI != jti {
		t.Errorf("JTI = %q, want %q", claims.JTI, jti)
	}
	if claims.SessionID != "alice:sess-1" {
		t.Errorf("SessionID = %q, want %q", claims.SessionID, "alice:sess-1")
	}
	if claims.IP != "10.0.0.1" {
		t.Errorf("IP = %q, want %q", claims.IP, "10.0.0.1")
	}
	if claims.UAHash != FingerprintUserAgent("Mozilla/5.0") {
		t.Error("UAHash does not match user-agent fingerprint")
	}
	if claims.Kind != KindAccess {
		t.Errorf("Kind = %q, want %q", claims.Kind, KindAccess)
	}
}

func TestTokenService_RefreshCarriesAccessJTI(t *testing.T) {
	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	ctx := context.Background()

	_, accessJTI, _, err := s.IssueAccess("alice", "alice:sess-1", "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, _, _, err := s.IssueRefresh("alice", "alice:sess-1", accessJTI)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	claims, err := s.Validate(ctx, refresh, KindRefresh)
	if err != nil {
		t.Fatalf("Validate refresh: %v", err)
	}
	if claims.AccessJTI != accessJTI {
		t.Errorf("AccessJTI = %q, want %q", claims.AccessJTI, accessJTI)
	}
}

func TestTokenService_WrongKindRejected(t *testing.T) {
	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	ctx := context.Background()

	access, _, _, err := s.IssueAccess("alice", "alice:sess-1", "ip", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, _, _, err := s.IssueRefresh("alice", "alice:sess-1", "")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	service, _, _, err := s.IssueService("alice", "alice:sess-1", "ip", "ua")
	if err != nil {
		t.Fatalf("IssueService: %v", err)
	}

	cases := []struct {
		name  string
		token string
		kind  TokenKind
	}{
		{"access as refresh", access, KindRefresh},
		{"access as service", access, KindService},
		{"refresh as access", refresh, KindAccess},
		{"refresh as service", refresh, KindService},
		{"service as access", service, KindAccess},
		{"service as refresh", service, KindRefresh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Validate(ctx, tc.token, tc.kind); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate: want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenService_ValidateMalformed(t *testing.T) {
	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	if _, err := s.Validate(context.Background(), "not-a-token", KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate malformed: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenService_ExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issued, _, err := NewTestTokenService(WithNow(func() time.Time { return past }))
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	token, _, _, err := issued.IssueAccess("alice", "alice:sess-1", "ip", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	if _, err := s.Validate(context.Background(), token, KindAccess); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Validate expired: want ErrTokenExpired, got %v", err)
	}
}

func TestTokenService_ImmatureToken(t *testing.T) {
	future := time.Now().Add(2 * time.Hour)
	issued, _, err := NewTestTokenService(WithNow(func() time.Time { return future }))
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	token, _, _, err := issued.IssueAccess("alice", "alice:sess-1", "ip", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	if _, err := s.Validate(context.Background(), token, KindAccess); !errors.Is(err, ErrImmatureSignature) {
		t.Errorf("Validate immature: want ErrImmatureSignature, got %v", err)
	}
}

func TestTokenService_LeewayTolerance(t *testing.T) {
	// Issued 10s in the future is inside the 30s leeway and must validate.
	nearFuture := time.Now().Add(10 * time.Second)
	issued, _, err := NewTestTokenService(WithNow(func() time.Time { return nearFuture }))
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	token, _, _, err := issued.IssueAccess("alice", "alice:sess-1", "ip", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	if _, err := s.Validate(context.Background(), token, KindAccess); err != nil {
		t.Errorf("Validate within leeway: %v", err)
	}
}

func TestTokenService_WrongIssuerAudience(t *testing.T) {
	priv, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	ctx := context.Background()

	other := NewTokenService(priv, pub, "other-issuer", "test-audience",
		time.Minute, time.Hour, time.Minute, 0, NewMemRevocationStore(), zerolog.Nop())
	token, _, _, err := other.IssueAccess("alice", "alice:sess-1", "ip", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	if _, err := s.Validate(ctx, token, KindAccess); !errors.Is(err, ErrInvalidIssuer) {
		t.Errorf("Validate wrong issuer: want ErrInvalidIssuer, got %v", err)
	}

	other = NewTokenService(priv, pub, "test-issuer", "other-audience",
		time.Minute, time.Hour, time.Minute, 0, NewMemRevocationStore(), zerolog.Nop())
	token, _, _, err = other.IssueAccess("alice", "alice:sess-1", "ip", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := s.Validate(ctx, token, KindAccess); !errors.Is(err, ErrInvalidAudience) {
		t.Errorf("Validate wrong audience: want ErrInvalidAudience, got %v", err)
	}
}

func TestTokenService_DecodeUnverified(t *testing.T) {
	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	token, jti, _, err := s.IssueAccess("alice", "alice:sess-1", "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	claims, err := s.DecodeUnverified(token)
	if err != nil {
		t.Fatalf("DecodeUnverified: %v", err)
	}
	if claims.JTI != jti {
		t.Errorf("JTI = %q, want %q", claims.JTI, jti)
	}
	if claims.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "alice")
	}
	if claims.SessionID != "alice:sess-1" {
		t.Errorf("SessionID = %q, want %q", claims.SessionID, "alice:sess-1")
	}
}

func TestTokenService_RevokeAndValidate(t *testing.T) {
	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	ctx := context.Background()

	token, jti, exp, err := s.IssueAccess("alice", "alice:sess-1", "ip", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if err := s.Revoke(ctx, jti, exp); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := s.IsRevoked(ctx, jti)
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Error("IsRevoked = false after Revoke")
	}
	if _, err := s.Validate(ctx, token, KindAccess); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Validate revoked: want ErrTokenRevoked, got %v", err)
	}
}

func TestTokenService_RevokeTTLFloor(t *testing.T) {
	s, store, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	ctx := context.Background()

	// Expiry already in the past: a marker must still be written for >= 1s.
	if err := s.Revoke(ctx, "stale-jti", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := store.IsRevoked(ctx, "stale-jti")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Error("revocation marker missing after Revoke with past expiry")
	}
}

func TestTokenService_ValidateFailsClosedOnStoreError(t *testing.T) {
	priv, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	s := NewTokenService(priv, pub, "test-issuer", "test-audience",
		time.Minute, time.Hour, time.Minute, 0, failingRevocationStore{}, zerolog.Nop())
	token, _, _, err := s.IssueAccess("alice", "alice:sess-1", "ip", "ua")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := s.Validate(context.Background(), token, KindAccess); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Validate with unreachable store: want ErrStoreUnavailable, got %v", err)
	}
}

type failingRevocationStore struct{}

func (failingRevocationStore) Revoke(context.Context, string, time.Duration) error {
	return errors.New("store down")
}

func (failingRevocationStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func TestTokenService_MissingJTI(t *testing.T) {
	s, _, err := NewTestTokenService()
	if err != nil {
		t.Fatalf("NewTestTokenService: %v", err)
	}
	priv, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}

	// A well-formed, correctly signed access token with an empty jti.
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test-audience"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Kind:      string(KindAccess),
		SessionID: "alice:sess-1",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := s.Validate(context.Background(), token, KindAccess); !errors.Is(err, ErrMissingJTI) {
		t.Errorf("Validate without jti: want ErrMissingJTI, got %v", err)
	}
}
