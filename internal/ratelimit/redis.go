package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "auth:ratelimit:"

// allowScript prunes attempts older than the window, counts the rest, and
// records the new attempt only when under the limit. Evaluated server-side so
// concurrent checks cannot interleave between count and record.
var allowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)
if redis.call("ZCARD", KEYS[1]) >= limit then
  return 0
end
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

// RedisLimiter implements Limiter on the shared redis store. Buckets are
// sorted sets scored by attempt time in milliseconds and expire with the
// window.
type RedisLimiter struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisLimiter returns a limiter backed by the given client.
func NewRedisLimiter(client *redis.Client, logger zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, logger: logger}
}

// Allow runs the sliding-window script. Fails closed: any store error denies
// the attempt.
func (l *RedisLimiter) Allow(ctx context.Context, subject, action string, limit int, window time.Duration) bool {
	key := keyPrefix + action + ":" + subject
	nowMillis := time.Now().UnixMilli()
	raw, err := allowScript.Run(ctx, l.client, []string{key},
		nowMillis,
		window.Milliseconds(),
		limit,
		strconv.FormatInt(nowMillis, 10)+":"+uuid.New().String(),
	).Result()
	if err != nil {
		l.logger.Error().Err(err).
			Str("subject", subject).
			Str("action", action).
			Msg("rate limit check failed, denying")
		return false
	}
	allowed, ok := raw.(int64)
	if !ok {
		return false
	}
	return allowed == 1
}
