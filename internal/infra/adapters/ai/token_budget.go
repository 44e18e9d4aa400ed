package ai

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"odanna-bot/internal/domain/ports/adapter"
	"odanna-bot/internal/infra/metrics"
)

// perMessageOverhead approximates role and separator tokens of the chat format.
const perMessageOverhead = 4

// TokenBudget trims a prompt to a token limit by dropping the oldest history
// messages. The leading system message and the final user message are kept.
//
// tiktoken fetches its BPE ranks over HTTP on first use. The encoder loads in
// the background; until it is ready sizes are estimated, so Trim never waits
// on the network.
type TokenBudget struct {
	model string
	max   int

	count func(string) int // fixed counter, skips loading
	load  func(model string) (func(string) int, error)

	once    sync.Once
	ready   chan struct{}
	enc     func(string) int
	loadErr error
}

func NewTokenBudget(model string, maxTokens int) *TokenBudget {
	return &TokenBudget{model: model, max: maxTokens, load: tiktokenCounter, ready: make(chan struct{})}
}

func tiktokenCounter(model string) (func(string) int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return nil, err
	}
	return func(s string) int { return len(enc.Encode(s, nil, nil)) }, nil
}

func (b *TokenBudget) start() {
	b.once.Do(func() {
		go func() {
			defer close(b.ready)
			b.enc, b.loadErr = b.load(b.model)
		}()
	})
}

// Warm starts loading the encoder and waits for it until ctx ends.
func (b *TokenBudget) Warm(ctx context.Context) error {
	if b.count != nil {
		return nil
	}
	b.start()
	select {
	case <-b.ready:
		return b.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *TokenBudget) counter() func(string) int {
	if b.count != nil {
		return b.count
	}
	b.start()
	select {
	case <-b.ready:
		if b.enc != nil {
			return b.enc
		}
	default:
	}
	return estimateTokens
}

// Count returns the prompt size in tokens.
func (b *TokenBudget) Count(msgs []adapter.Message) int {
	count := b.counter()
	total := 0
	for _, m := range msgs {
		total += count(m.Content) + perMessageOverhead
	}
	return total
}

func (b *TokenBudget) Trim(msgs []adapter.Message) []adapter.Message {
	if b.max <= 0 || len(msgs) <= 2 {
		metrics.ObservePromptTokens(b.Count(msgs))
		return msgs
	}
	count := b.counter()
	sizes := make([]int, len(msgs))
	total := 0
	for i, m := range msgs {
		sizes[i] = count(m.Content) + perMessageOverhead
		total += sizes[i]
	}

	head := 0
	if msgs[0].Role == "system" {
		head = 1
	}
	drop := head
	for total > b.max && drop < len(msgs)-1 {
		total -= sizes[drop]
		drop++
	}
	metrics.ObservePromptTokens(total)
	if drop == head {
		return msgs
	}
	out := make([]adapter.Message, 0, len(msgs)-(drop-head))
	out = append(out, msgs[:head]...)
	return append(out, msgs[drop:]...)
}

// estimateTokens is used when no BPE ranks are available: about four runes per token.
func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	if n < 4 {
		return 1
	}
	return n / 4
}
