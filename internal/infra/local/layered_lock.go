package local

import (
	"context"
	"errors"
	"strings"
	"time"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/ports/adapter"
)

var _ adapter.Locker = (*LayeredLocker)(nil)

// LayeredLocker takes the in-process lock before the distributed one, so
// contention inside one instance queues locally instead of polling redis.
type LayeredLocker struct {
	near adapter.Locker
	far  adapter.Locker
}

func NewLayeredLocker(near, far adapter.Locker) *LayeredLocker {
	return &LayeredLocker{near: near, far: far}
}

func (l *LayeredLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	nearTok, err := l.near.TryLock(ctx, key, ttl)
	if err != nil {
		return "", err
	}
	farTok, err := l.far.TryLock(ctx, key, ttl)
	if err != nil {
		_ = l.near.Unlock(context.WithoutCancel(ctx), key, nearTok)
		return "", err
	}
	return nearTok + "|" + farTok, nil
}

func (l *LayeredLocker) Unlock(ctx context.Context, key, token string) error {
	nearTok, farTok, ok := strings.Cut(token, "|")
	if !ok {
		return domain.ErrInvalidArgument
	}
	return errors.Join(l.far.Unlock(ctx, key, farTok), l.near.Unlock(ctx, key, nearTok))
}
