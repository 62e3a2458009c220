// Package service implements the gateway authenticator for internal
// service-to-service calls: a linear pipeline with no retries in which each
// stage either advances or fails the call terminally.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	authoritydomain "github.com/meridian-trading/authcore/internal/authority/domain"
	authorityrepo "github.com/meridian-trading/authcore/internal/authority/repository"
	"github.com/meridian-trading/authcore/internal/gateway/repository"
	"github.com/meridian-trading/authcore/internal/security"
)

// Authenticator validates single-use service tokens and resolves the caller's
// current authority from the relational store. Authority is never taken from
// token claims, so a leaked long-lived token confers nothing beyond what the
// store currently grants.
type Authenticator struct {
	tokens    *security.TokenService
	replay    repository.ReplayStore
	authority authorityrepo.Repository
	logger    zerolog.Logger
	fallback  *authoritydomain.AuthenticatedUser
	now       func() time.Time
}

// AuthenticatorOption modifies an Authenticator at construction.
type AuthenticatorOption func(*Authenticator)

// WithFallbackIdentity enables the opt-in log-only mode: when the caller
// asserts no identity at all (empty token and empty user id), authentication
// returns the given identity instead of failing, and logs the degradation.
// Never active when any token is presented. Off by default; intended for
// degraded or development environments only.
func WithFallbackIdentity(user authoritydomain.AuthenticatedUser) AuthenticatorOption {
	return func(a *Authenticator) {
		a.fallback = &user
	}
}

// WithClock overrides the clock; for tests.
func WithClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.now = now
	}
}

// NewAuthenticator returns an Authenticator with the given dependencies.
func NewAuthenticator(
	tokens *security.TokenService,
	replay repository.ReplayStore,
	authority authorityrepo.Repository,
	logger zerolog.Logger,
	options ...AuthenticatorOption,
) *Authenticator {
	a := &Authenticator{
		tokens:    tokens,
		replay:    replay,
		authority: authority,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Authenticate runs the full pipeline: signature/kind validation, one-time-use
// marking, revocation check, subject binding, fresh authority lookup, and
// session-epoch comparison. callerUserID, requestID, and callerEpoch are
// asserted by the upstream request layer and trusted only after these checks.
func (a *Authenticator) Authenticate(ctx context.Context, token, callerUserID, requestID string, callerEpoch int64) (*authoritydomain.AuthenticatedUser, error) {
	if a.fallback != nil && token == "" && callerUserID == "" {
		user := *a.fallback
		user.RequestID = requestID
		a.logger.Warn().
			Str("request_id", requestID).
			Str("user_id", user.UserID).
			Msg("no caller identity asserted, using fallback identity")
		return &user, nil
	}

	claims, err := a.tokens.Validate(ctx, token, security.KindService)
	if err != nil {
		return nil, err
	}
	if claims.JTI == "" {
		return nil, security.ErrMissingJTI
	}
	if claims.ExpiresAt.IsZero() {
		return nil, security.ErrInvalidToken
	}

	// One-time use is independent of revocation: the token may be valid and
	// unrevoked yet still single-use.
	ttl := claims.ExpiresAt.Sub(a.now())
	first, err := a.replay.MarkUsed(ctx, claims.JTI, ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: replay marker: %v", security.ErrStoreUnavailable, err)
	}
	if !first {
		a.logger.Warn().
			Str("jti", claims.JTI).
			Str("request_id", requestID).
			Str("caller_user_id", callerUserID).
			Msg("service token replayed")
		return nil, security.ErrTokenReplayed
	}

	revoked, err := a.tokens.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, security.ErrTokenRevoked
	}

	if claims.Subject != callerUserID {
		a.logger.Warn().
			Str("jti", claims.JTI).
			Str("request_id", requestID).
			Str("subject", claims.Subject).
			Str("caller_user_id", callerUserID).
			Msg("token subject does not match asserted caller")
		return nil, security.ErrSubjectMismatch
	}

	auth, err := a.authority.GetAuthority(ctx, callerUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: authority lookup: %v", security.ErrStoreUnavailable, err)
	}
	if auth == nil {
		return nil, security.ErrInvalidToken
	}
	strategies, err := a.authority.ListStrategies(ctx, callerUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: strategy lookup: %v", security.ErrStoreUnavailable, err)
	}

	if auth.SessionEpoch != callerEpoch {
		a.logger.Info().
			Str("user_id", callerUserID).
			Str("request_id", requestID).
			Int64("caller_epoch", callerEpoch).
			Int64("current_epoch", auth.SessionEpoch).
			Msg("stale session epoch")
		return nil, security.ErrSessionExpired
	}

	return &authoritydomain.AuthenticatedUser{
		UserID:       callerUserID,
		Role:         auth.Role,
		Strategies:   strategies,
		SessionEpoch: auth.SessionEpoch,
		RequestID:    requestID,
	}, nil
}
