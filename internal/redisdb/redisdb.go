// Package redisdb opens the shared low-latency store client. The client is a
// long-lived, goroutine-safe handle constructed once at process start and
// passed explicitly into each component.
package redisdb

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Open connects to redis at addr and verifies the connection. Caller must call
// Close on the returned client when done.
func Open(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
