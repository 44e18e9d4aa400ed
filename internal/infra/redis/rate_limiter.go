package redis

import (
	"context"
	"time"

	"odanna-bot/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter shared by all bot instances.
// The window starts with the first hit on a key.
type RateLimiter struct {
	client RedisClient
	prefix string
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, prefix: "odanna:"}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	key = r.prefix + key
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			// a key without ttl would block the user forever
			_ = r.client.Del(ctx, key)
			return false, err
		}
	}
	return count <= int64(limit), nil
}
