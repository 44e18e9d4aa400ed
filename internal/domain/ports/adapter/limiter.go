package adapter

import (
	"context"
	"time"
)

// RateLimiter answers whether one more event under key fits into limit per window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
