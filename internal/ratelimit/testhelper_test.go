package ratelimit

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// unreachableRedisClient returns a client pointed at a port nothing listens
// on, with tight timeouts and no retries so tests fail fast.
func unreachableRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  200 * time.Millisecond,
		ReadTimeout:  200 * time.Millisecond,
		WriteTimeout: 200 * time.Millisecond,
		MaxRetries:   -1,
	})
}
