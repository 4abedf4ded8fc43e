package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps window counters in Redis so limits hold across processes.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a limiter storing counters under "ratelimit:<key>".
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "ratelimit:"}
}

// Check increments the window counter; the first hit of a window sets its TTL.
func (r *Redis) Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	k := r.prefix + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("incr %s: %w", k, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return Result{}, fmt.Errorf("expire %s: %w", k, err)
		}
	}

	retryAfter := time.Duration(0)
	if count > int64(limit) {
		ttl, err := r.client.PTTL(ctx, k).Result()
		if err != nil || ttl <= 0 {
			ttl = window
		}
		retryAfter = ttl
	}
	return result(count, limit, retryAfter), nil
}
