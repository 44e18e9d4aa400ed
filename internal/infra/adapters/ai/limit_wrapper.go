package ai

import (
	"context"
	"time"

	"odanna-bot/internal/domain/ports/adapter"
	"odanna-bot/internal/infra/metrics"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI caps concurrent calls and records their latency. Waiting for a
// slot honours ctx, so a caller's timeout also covers the queue.
type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1 << 16
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) Name() string { return l.inner.Name() }

func (l *limitedAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()

	start := time.Now()
	out, err := l.inner.Chat(ctx, model, messages)
	metrics.ObserveAICall(l.inner.Name(), time.Since(start).Milliseconds(), err == nil && out != "")
	return out, err
}
