package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"odanna-bot/internal/application"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/infra/metrics"
)

const (
	cbEmpathy = "empathy:"
	cbGender  = "gender:"
)

// cbHandler gets the chat to answer in, the user who pressed and the data.
type cbHandler func(ctx context.Context, chatID int64, from *tgbotapi.User, data string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: application.CallbackSelectChat, Fn: r.selectChatCBRoute},
		{Prefix: cbEmpathy, Fn: r.empathyCBRoute},
		{Prefix: cbGender, Fn: r.genderCBRoute},
	}
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	chatID := query.From.ID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	ctx = logging.WithTgID(ctx, query.From.ID)

	if !r.allow(ctx, query.From.ID, "cb") {
		return r.SendMessage(ctx, chatID, r.translator.T("error.rate_limited"))
	}

	data := strings.TrimSpace(query.Data)
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			metrics.IncTelegramCommand("cb:" + strings.TrimSuffix(pr.Prefix, ":"))
			return pr.Fn(ctx, chatID, query.From, strings.TrimPrefix(data, pr.Prefix))
		}
	}
	return errors.New("unknown callback data")
}

func (r *RealTelegramBotAdapter) selectChatCBRoute(ctx context.Context, chatID int64, from *tgbotapi.User, id string) error {
	return r.SendMessage(ctx, chatID, r.facade.HandleSelectChat(ctx, from.ID, id))
}

func (r *RealTelegramBotAdapter) empathyCBRoute(ctx context.Context, chatID int64, from *tgbotapi.User, level string) error {
	return r.SendMessage(ctx, chatID, r.facade.HandleEmpathy(ctx, from.ID, level))
}

func (r *RealTelegramBotAdapter) genderCBRoute(ctx context.Context, chatID int64, from *tgbotapi.User, g string) error {
	return r.SendMessage(ctx, chatID, r.facade.HandleGender(ctx, from.ID, from.UserName, from.FirstName, g))
}
