package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auth:used:"

// RedisReplayStore implements ReplayStore with SET NX EX, the store's native
// set-if-absent-with-expiry primitive. No application-level lock.
type RedisReplayStore struct {
	client *redis.Client
}

// NewRedisReplayStore returns a replay store backed by the given client.
func NewRedisReplayStore(client *redis.Client) *RedisReplayStore {
	return &RedisReplayStore{client: client}
}

// MarkUsed sets the marker if absent. first is false when the jti was already
// marked.
func (s *RedisReplayStore) MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.client.SetNX(ctx, keyPrefix+jti, "used", ttl).Result()
}
