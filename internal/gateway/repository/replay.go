// Package repository tracks one-time use of service tokens. A jti is marked
// on first successful authentication; a second presentation fails even though
// the token was never revoked. Distinct keyspace from the revocation list.
package repository

import (
	"context"
	"time"
)

// ReplayStore records single-use markers for service-token jtis.
type ReplayStore interface {
	// MarkUsed atomically sets a marker for jti with the given ttl. Returns
	// true if this was the first use, false if the marker already existed.
	MarkUsed(ctx context.Context, jti string, ttl time.Duration) (first bool, err error)
}
