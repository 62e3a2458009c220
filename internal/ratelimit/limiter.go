// Package ratelimit provides the shared sliding-window rate limiter. The
// window slides continuously over a per-(subject, action) timestamp set, so
// there is no burst-at-boundary artifact. Rate limiting is a security
// control: if the backing store is unreachable the check is rejected, never
// allowed.
package ratelimit

import (
	"context"
	"time"
)

// Limiter is the sliding-window check shared by the session store and any
// other caller.
type Limiter interface {
	// Allow reports whether subject may perform action now. At most limit
	// attempts are admitted per window; a rejected attempt is not recorded.
	Allow(ctx context.Context, subject, action string, limit int, window time.Duration) bool
}
