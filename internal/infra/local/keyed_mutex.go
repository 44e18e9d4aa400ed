// Package local holds the single-process fallbacks used when Redis is not
// configured: the per-chat lock, the dialog state store and the inbound
// rate limiter.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/ports/adapter"
)

var _ adapter.Locker = (*KeyedMutex)(nil)

type keyedEntry struct {
	sem   chan struct{}
	token string
	refs  int
}

// KeyedMutex is an in-process adapter.Locker. A lock is held until Unlock;
// the ttl argument only matters for the distributed implementation.
// TryLock waits at most wait before giving up with domain.ErrLocked.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
	wait    time.Duration
}

func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &KeyedMutex{entries: make(map[string]*keyedEntry), wait: wait}
}

func (k *KeyedMutex) TryLock(ctx context.Context, key string, _ time.Duration) (string, error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	timer := time.NewTimer(k.wait)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		token := uuid.NewString()
		k.mu.Lock()
		e.token = token
		k.mu.Unlock()
		return token, nil
	case <-ctx.Done():
		k.release(key, e)
		return "", ctx.Err()
	case <-timer.C:
		k.release(key, e)
		return "", domain.ErrLocked
	}
}

func (k *KeyedMutex) Unlock(_ context.Context, key, token string) error {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok || e.token != token || token == "" {
		k.mu.Unlock()
		return domain.ErrInvalidArgument
	}
	e.token = ""
	k.mu.Unlock()

	<-e.sem
	k.release(key, e)
	return nil
}

// release drops one reference and forgets idle keys.
func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
