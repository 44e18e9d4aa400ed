package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"odanna-bot/internal/domain/ports/adapter"
)

type stubAI struct {
	name  string
	calls int32
	delay time.Duration
	reply string
}

func (s *stubAI) Name() string { return s.name }

func (s *stubAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, nil
}

func TestRouting_ExplicitMap_Heuristics_And_Default(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai"}
	gem := &stubAI{name: "gemini"}

	m := NewMultiAIAdapter(
		"openai",
		map[string]adapter.AIServiceAdapter{"openai": open, "gemini": gem},
		map[string]string{"custom-x": "gemini"},
	)

	tests := []struct {
		model      string
		wantOpen   int32
		wantGemini int32
	}{
		{"custom-x", 0, 1},
		{"gpt-4o-mini", 1, 0},
		{"gemini-2.0-flash", 0, 1},
		{"unknown-model", 1, 0},
	}
	for _, tt := range tests {
		open.calls, gem.calls = 0, 0
		_, _ = m.Chat(ctx, tt.model, nil)
		if open.calls != tt.wantOpen || gem.calls != tt.wantGemini {
			t.Errorf("%s: open=%d gemini=%d", tt.model, open.calls, gem.calls)
		}
	}
}

func TestMultiWithoutProviders(t *testing.T) {
	m := NewMultiAIAdapter("openai", nil, nil)
	if _, err := m.Chat(context.Background(), "gpt", nil); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v", err)
	}
}

func TestLimitedAI_CapsConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	inner := &funcAI{fn: func(ctx context.Context) (string, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return "ok", nil
	}}
	l := NewLimitedAI(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Chat(context.Background(), "m", nil)
		}()
	}
	wg.Wait()
	if maxSeen > 2 {
		t.Fatalf("max concurrent = %d, want <= 2", maxSeen)
	}
}

func TestLimitedAI_QueueHonoursContext(t *testing.T) {
	slow := &stubAI{name: "slow", delay: time.Second, reply: "late"}
	l := NewLimitedAI(slow, 1)
	go func() { _, _ = l.Chat(context.Background(), "m", nil) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := l.Chat(ctx, "m", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("queued call did not return on deadline")
	}
}

type funcAI struct {
	fn func(ctx context.Context) (string, error)
}

func (f *funcAI) Name() string { return "func" }
func (f *funcAI) Chat(ctx context.Context, _ string, _ []adapter.Message) (string, error) {
	return f.fn(ctx)
}

func TestTokenBudgetDropsOldestHistory(t *testing.T) {
	b := NewTokenBudget("gpt-4o-mini", 30)
	b.count = func(s string) int { return len(s) } // one token per byte

	msgs := []adapter.Message{
		{Role: "system", Content: "sys"},                     // 3+4
		{Role: "user", Content: strings.Repeat("a", 10)},     // 14
		{Role: "assistant", Content: strings.Repeat("b", 5)}, // 9
		{Role: "user", Content: "hello"},                     // 9
	}
	got := b.Trim(msgs)
	if len(got) != 3 || got[0].Role != "system" || got[1].Content != "bbbbb" || got[2].Content != "hello" {
		t.Fatalf("unexpected trim: %+v", got)
	}
	if total := b.Count(got); total > 30 {
		t.Fatalf("trimmed prompt still %d tokens", total)
	}
}

func TestTokenBudgetKeepsFinalMessage(t *testing.T) {
	b := NewTokenBudget("gpt-4o-mini", 1)
	b.count = func(s string) int { return len(s) }
	msgs := []adapter.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "old"},
		{Role: "user", Content: "newest"},
	}
	got := b.Trim(msgs)
	if len(got) != 2 || got[1].Content != "newest" {
		t.Fatalf("final user message dropped: %+v", got)
	}
}

func TestTokenBudgetDoesNotWaitForEncoder(t *testing.T) {
	release := make(chan struct{})
	b := NewTokenBudget("gpt-4o-mini", 1000)
	b.load = func(string) (func(string) int, error) {
		<-release
		return func(s string) int { return 100 }, nil
	}
	msgs := []adapter.Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "Привет, мир!"}}

	done := make(chan int, 1)
	go func() { done <- b.Count(msgs) }()
	select {
	case got := <-done:
		if want := estimateTokens("sys") + estimateTokens("Привет, мир!") + 2*perMessageOverhead; got != want {
			t.Fatalf("Count while loading = %d, want estimate %d", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("Count blocked on the encoder download")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Warm(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Warm before load = %v", err)
	}

	close(release)
	if err := b.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if got := b.Count(msgs); got != 2*(100+perMessageOverhead) {
		t.Fatalf("Count after load = %d", got)
	}
}

func TestTokenBudgetFallsBackWhenLoadFails(t *testing.T) {
	b := NewTokenBudget("gpt-4o-mini", 1000)
	b.load = func(string) (func(string) int, error) { return nil, errors.New("offline") }
	if err := b.Warm(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	msgs := []adapter.Message{{Role: "user", Content: "abcdefgh"}}
	if got := b.Count(msgs); got != 2+perMessageOverhead {
		t.Fatalf("Count = %d, want estimate", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := map[string]int{"": 0, "ab": 1, "Привет, мир!": 3}
	for in, want := range tests {
		if got := estimateTokens(in); got != want {
			t.Errorf("estimateTokens(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSplitSystem(t *testing.T) {
	sys, rest := splitSystem([]adapter.Message{
		{Role: "system", Content: "a"},
		{Role: "user", Content: "u"},
		{Role: "system", Content: "b"},
	})
	if sys != "a\n\nb" || len(rest) != 1 || rest[0].Content != "u" {
		t.Fatalf("splitSystem = %q %+v", sys, rest)
	}
	if len(toGenAIHistory(rest)) != 1 || len(toOpenAIMessages(rest)) != 1 {
		t.Fatal("conversion lost messages")
	}
}
