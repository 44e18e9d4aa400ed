package telegram

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"odanna-bot/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.TelegramBotAdapter for local runs without
// a bot token. Messages are written to out instead of Telegram.
type NoopBotAdapter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewNoopBotAdapter(out io.Writer) *NoopBotAdapter {
	if out == nil {
		out = io.Discard
	}
	return &NoopBotAdapter{out: out}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := fmt.Fprintf(b.out, "🏮 [%d] %s\n", tgID, text)
	return err
}

func (b *NoopBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	var labels []string
	for _, row := range rows {
		for _, btn := range row {
			labels = append(labels, "["+btn.Text+"]")
		}
	}
	if len(labels) == 0 {
		return b.SendMessage(ctx, tgID, text)
	}
	return b.SendMessage(ctx, tgID, text+"\n"+strings.Join(labels, " "))
}
