package adapter

import "context"

// InlineButton carries either callback Data or a URL; URL wins when both are set.
type InlineButton struct {
	Text string
	Data string
	URL  string
}

// TelegramBotAdapter is the outbound side of the chat transport.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendButtons(ctx context.Context, chatID int64, text string, rows [][]InlineButton) error
}
