package adapter

import (
	"context"
	"time"
)

// Locker serializes work on one key (a chat id) across processes.
// Unlock must be called with the token returned by TryLock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
