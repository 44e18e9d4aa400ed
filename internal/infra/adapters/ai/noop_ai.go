package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"odanna-bot/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter is the dev provider: it logs the prompt and answers with an
// empty reply, so every call exercises the deterministic fallback.
type NoopAIAdapter struct {
	log   *zerolog.Logger
	delay time.Duration
}

func NewNoopAIAdapter(log *zerolog.Logger) *NoopAIAdapter {
	return &NoopAIAdapter{log: log, delay: 100 * time.Millisecond}
}

func (a *NoopAIAdapter) Name() string { return "noop" }

func (a *NoopAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	a.log.Debug().Str("model", model).Int("messages", len(messages)).Msg("noop ai chat")
	return "", nil
}
