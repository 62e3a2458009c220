// Package service implements the browser-facing session lifecycle: creation
// with per-user concurrency limits, validation with session binding, atomic
// refresh rotation, and termination.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridian-trading/authcore/internal/ratelimit"
	"github.com/meridian-trading/authcore/internal/security"
	"github.com/meridian-trading/authcore/internal/session/domain"
	"github.com/meridian-trading/authcore/internal/session/repository"
)

const (
	actionCreate  = "create_session"
	actionRefresh = "refresh_session"

	// conservativeRevokeTTL bounds the revocation marker when an older record
	// did not store a token expiry.
	conservativeRevokeTTL = time.Hour
)

// Config holds session-store policy. Zero values fall back to defaults in
// NewStore.
type Config struct {
	// SessionLimit is the per-user concurrent-session cap; oldest sessions
	// are evicted past it. Default 3.
	SessionLimit int
	// RefreshTTL is the session record lifetime and the default cookie
	// max-age. Default 4h.
	RefreshTTL time.Duration
	// BindingMode controls ip/user-agent binding checks. Default strict.
	BindingMode domain.BindingMode
	// CreateLimit/CreateWindow rate-limit session creation per ip.
	// Defaults 5 per 15m.
	CreateLimit  int
	CreateWindow time.Duration
	// RefreshLimit/RefreshWindow rate-limit refresh per ip. Defaults 30 per 15m.
	RefreshLimit  int
	RefreshWindow time.Duration
	// Cookie is the browser cookie policy; MaxAge defaults to RefreshTTL.
	Cookie domain.CookieParams
}

// Store owns session records in the shared store. All rotation goes through
// the repository's compare-and-swap; the store itself holds no mutable state
// beyond the injected handles.
type Store struct {
	repo    repository.Repository
	tokens  *security.TokenService
	limiter ratelimit.Limiter
	logger  zerolog.Logger
	cfg     Config
	now     func() time.Time
}

// StoreOption modifies a Store at construction.
type StoreOption func(*Store)

// WithClock overrides the clock; for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns a session store with the given dependencies and policy.
func NewStore(
	repo repository.Repository,
	tokens *security.TokenService,
	limiter ratelimit.Limiter,
	cfg Config,
	logger zerolog.Logger,
	options ...StoreOption,
) *Store {
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = 3
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 4 * time.Hour
	}
	if cfg.BindingMode == "" {
		cfg.BindingMode = domain.BindingStrict
	}
	if cfg.CreateLimit <= 0 {
		cfg.CreateLimit = 5
	}
	if cfg.CreateWindow <= 0 {
		cfg.CreateWindow = 15 * time.Minute
	}
	if cfg.RefreshLimit <= 0 {
		cfg.RefreshLimit = 30
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = 15 * time.Minute
	}
	s := &Store{
		repo:    repo,
		tokens:  tokens,
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Create issues a new access/refresh pair, writes the session record, and
// enforces the per-user concurrency limit by evicting the oldest sessions.
func (s *Store) Create(ctx context.Context, userID, ip, userAgent string) (*domain.TokenPair, error) {
	if !s.limiter.Allow(ctx, ip, actionCreate, s.cfg.CreateLimit, s.cfg.CreateWindow) {
		return nil, security.ErrRateLimitExceeded
	}

	sessionID := domain.NewSessionID(userID)
	access, accessJTI, accessExp, err := s.tokens.IssueAccess(userID, sessionID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	refresh, refreshJTI, refreshExp, err := s.tokens.IssueRefresh(userID, sessionID, accessJTI)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := &domain.Session{
		ID:               sessionID,
		UserID:           userID,
		IP:               ip,
		UAHash:           security.FingerprintUserAgent(userAgent),
		AccessJTI:        accessJTI,
		AccessExpiresAt:  accessExp,
		RefreshJTI:       refreshJTI,
		RefreshExpiresAt: refreshExp,
		CreatedAt:        now,
	}
	if err := s.repo.Create(ctx, record, refreshExp.Sub(now)); err != nil {
		return nil, fmt.Errorf("%w: session create: %v", security.ErrStoreUnavailable, err)
	}

	if err := s.enforceSessionLimit(ctx, userID); err != nil {
		// The session itself was created; the limit is re-evaluated on the
		// next create or refresh, so the bound holds eventually.
		s.logger.Error().Err(err).Str("user_id", userID).Msg("session limit enforcement failed")
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates the presented refresh token. The rotation is a single
// compare-and-swap in the shared store; two devices racing to refresh the
// same token, or a replayed stale token, lose the swap and get InvalidToken.
func (s *Store) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*domain.TokenPair, error) {
	if !s.limiter.Allow(ctx, ip, actionRefresh, s.cfg.RefreshLimit, s.cfg.RefreshWindow) {
		return nil, security.ErrRateLimitExceeded
	}

	claims, err := s.tokens.Validate(ctx, refreshToken, security.KindRefresh)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: session lookup: %v", security.ErrStoreUnavailable, err)
	}
	if record == nil {
		return nil, security.ErrInvalidToken
	}
	if err := s.checkBinding(record, ip, userAgent); err != nil {
		return nil, err
	}

	access, accessJTI, accessExp, err := s.tokens.IssueAccess(claims.Subject, claims.SessionID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	refresh, refreshJTI, refreshExp, err := s.tokens.IssueRefresh(claims.Subject, claims.SessionID, accessJTI)
	if err != nil {
		return nil, err
	}

	rotation := repository.RefreshRotation{
		AccessJTI:        accessJTI,
		AccessExpiresAt:  accessExp,
		RefreshJTI:       refreshJTI,
		RefreshExpiresAt: refreshExp,
		TTL:              refreshExp.Sub(s.now()),
	}
	result, err := s.repo.RotateRefresh(ctx, claims.SessionID, claims.JTI, rotation)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Warn().
				Str("session_id", claims.SessionID).
				Str("jti", claims.JTI).
				Msg("refresh token already used or revoked")
			return nil, fmt.Errorf("%w: refresh token already used or revoked", security.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: refresh rotation: %v", security.ErrStoreUnavailable, err)
	}

	// The superseded access token and the consumed refresh token are dead
	// from this instant, whatever their natural expiries.
	if result.PrevAccessJTI != "" {
		prevExp := result.PrevAccessExpiresAt
		if prevExp.IsZero() {
			prevExp = s.now().Add(conservativeRevokeTTL)
		}
		if err := s.tokens.Revoke(ctx, result.PrevAccessJTI, prevExp); err != nil {
			return nil, err
		}
	}
	if err := s.tokens.Revoke(ctx, claims.JTI, claims.ExpiresAt); err != nil {
		return nil, err
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Validate checks the access token cryptographically, then binds it to the
// stored session record. Record absence is InvalidToken.
func (s *Store) Validate(ctx context.Context, accessToken, ip, userAgent string) (*security.Claims, error) {
	claims, err := s.tokens.Validate(ctx, accessToken, security.KindAccess)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: session lookup: %v", security.ErrStoreUnavailable, err)
	}
	if record == nil {
		return nil, security.ErrInvalidToken
	}
	if err := s.checkBinding(record, ip, userAgent); err != nil {
		return nil, err
	}
	return claims, nil
}

// Terminate revokes the session's tokens and removes the record and its index
// entry. If the record already expired naturally, the index entry is still
// cleaned up so eviction bookkeeping does not stall on stale ids.
func (s *Store) Terminate(ctx context.Context, sessionID string) error {
	record, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: session lookup: %v", security.ErrStoreUnavailable, err)
	}
	if record == nil {
		if userID := domain.UserIDFromSessionID(sessionID); userID != "" {
			if err := s.repo.RemoveFromIndex(ctx, userID, sessionID); err != nil {
				s.logger.Error().Err(err).Str("session_id", sessionID).Msg("stale index cleanup failed")
			}
		}
		return nil
	}

	if record.AccessJTI != "" {
		exp := record.AccessExpiresAt
		if exp.IsZero() {
			exp = s.now().Add(conservativeRevokeTTL)
		}
		if err := s.tokens.Revoke(ctx, record.AccessJTI, exp); err != nil {
			return err
		}
	}
	if record.RefreshJTI != "" {
		exp := record.RefreshExpiresAt
		if exp.IsZero() {
			exp = s.now().Add(conservativeRevokeTTL)
		}
		if err := s.tokens.Revoke(ctx, record.RefreshJTI, exp); err != nil {
			return err
		}
	}

	if err := s.repo.Delete(ctx, record.UserID, sessionID); err != nil {
		return fmt.Errorf("%w: session delete: %v", security.ErrStoreUnavailable, err)
	}
	s.logger.Info().
		Str("session_id", sessionID).
		Str("user_id", record.UserID).
		Msg("session terminated")
	return nil
}

// CookieParams returns the browser cookie policy. Pure policy, no state.
func (s *Store) CookieParams() domain.CookieParams {
	params := s.cfg.Cookie
	if params.MaxAge <= 0 {
		params.MaxAge = s.cfg.RefreshTTL
	}
	if params.Path == "" {
		params.Path = "/"
	}
	if params.SameSite == "" {
		params.SameSite = "Strict"
	}
	params.Secure = true
	params.HTTPOnly = true
	return params
}

// enforceSessionLimit evicts the oldest sessions past the per-user cap. The
// bound is soft under races: a create racing another create may transiently
// leave one extra session, removed by the next enforcement pass.
func (s *Store) enforceSessionLimit(ctx context.Context, userID string) error {
	ids, err := s.repo.SessionIDs(ctx, userID)
	if err != nil {
		return err
	}
	if len(ids) <= s.cfg.SessionLimit {
		return nil
	}
	for _, id := range ids[:len(ids)-s.cfg.SessionLimit] {
		if err := s.Terminate(ctx, id); err != nil {
			return err
		}
		s.logger.Info().
			Str("session_id", id).
			Str("user_id", userID).
			Msg("session evicted over concurrency limit")
	}
	return nil
}

func (s *Store) checkBinding(record *domain.Session, ip, userAgent string) error {
	ipMatch := record.IP == ip
	uaMatch := security.FingerprintEqual(userAgent, record.UAHash)
	if ipMatch && uaMatch {
		return nil
	}
	ev := s.logger.Warn().
		Str("session_id", record.ID).
		Str("user_id", record.UserID).
		Bool("ip_match", ipMatch).
		Bool("ua_match", uaMatch)
	if s.cfg.BindingMode == domain.BindingRelaxed {
		ev.Msg("session binding mismatch, proceeding (relaxed mode)")
		return nil
	}
	ev.Msg("session binding mismatch")
	return security.ErrInvalidToken
}
