package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/repository"
	"odanna-bot/internal/infra/metrics"
)

var _ repository.ChatSessionRepository = (*ChatCache)(nil)

// ChatCache is a read-through cache in front of a ChatSessionRepository.
// Only reads outside a transaction are served from Redis; every write
// evicts the cached entry. Message appends change message_count and empathy
// directly in storage, so callers that must see fresh counters read with a
// transaction handle.
type ChatCache struct {
	repository.ChatSessionRepository
	client RedisClient
	ttl    time.Duration
}

func NewChatCache(next repository.ChatSessionRepository, client RedisClient, ttl time.Duration) *ChatCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ChatCache{ChatSessionRepository: next, client: client, ttl: ttl}
}

func sessionKey(id string) string { return "chat_session:" + id }

func (c *ChatCache) FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error) {
	if qx != nil {
		return c.ChatSessionRepository.FindByID(ctx, qx, id)
	}
	if data, err := c.client.Get(ctx, sessionKey(id)); err == nil {
		var s model.ChatSession
		if json.Unmarshal([]byte(data), &s) == nil {
			metrics.IncCacheRequest("chat_session", "hit")
			return &s, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest("chat_session", "error")
	}
	metrics.IncCacheRequest("chat_session", "miss")

	s, err := c.ChatSessionRepository.FindByID(ctx, qx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(s); err == nil {
		_ = c.client.Set(ctx, sessionKey(id), data, c.ttl)
	}
	return s, nil
}

func (c *ChatCache) Rename(ctx context.Context, qx any, id, title string) error {
	defer c.evict(ctx, id)
	return c.ChatSessionRepository.Rename(ctx, qx, id, title)
}

func (c *ChatCache) SoftDelete(ctx context.Context, qx any, id string) error {
	defer c.evict(ctx, id)
	return c.ChatSessionRepository.SoftDelete(ctx, qx, id)
}

func (c *ChatCache) SetEmpathyOverride(ctx context.Context, qx any, id string, level *int) error {
	defer c.evict(ctx, id)
	return c.ChatSessionRepository.SetEmpathyOverride(ctx, qx, id, level)
}

func (c *ChatCache) SetSummary(ctx context.Context, qx any, id, summary string) error {
	defer c.evict(ctx, id)
	return c.ChatSessionRepository.SetSummary(ctx, qx, id, summary)
}

// Evict drops a cached session; the conversation use case calls it after
// every committed exchange.
func (c *ChatCache) Evict(ctx context.Context, id string) { c.evict(ctx, id) }

func (c *ChatCache) evict(ctx context.Context, id string) {
	_ = c.client.Del(ctx, sessionKey(id))
}
