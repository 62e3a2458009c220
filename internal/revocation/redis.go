// Package revocation implements the TTL-bounded jti revocation list on the
// shared redis store.
package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auth:revoked:"

// RedisStore satisfies security.RevocationStore. Every marker expires with the
// token it shadows; nothing in this keyspace is unbounded.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a revocation store backed by the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Revoke writes a marker for jti that expires after ttl.
func (s *RedisStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return s.client.Set(ctx, keyPrefix+jti, "revoked", ttl).Err()
}

// IsRevoked reports whether an unexpired marker exists for jti.
func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
