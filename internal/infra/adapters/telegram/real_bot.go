package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"odanna-bot/internal/application"
	"odanna-bot/internal/config"
	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/ports/adapter"
	"odanna-bot/internal/domain/ports/repository"
	"odanna-bot/internal/infra/i18n"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/infra/metrics"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// maxMessageRunes stays under the 4096 limit of the Bot API.
const maxMessageRunes = 4000

// pendingTTL bounds how long a /newchat or /rename prompt waits for its answer.
const pendingTTL = 15 * time.Minute

// botAPI is the part of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RealTelegramBotAdapter uses tgbotapi to poll updates and delegates to BotFacade.
// Updates are sharded to workers by chat id, so one chat is handled in order
// while different chats run in parallel.
type RealTelegramBotAdapter struct {
	bot         botAPI
	cfg         *config.BotConfig
	facade      *application.BotFacade
	state       repository.StateRepository
	rateLimiter adapter.RateLimiter // nil disables flood control
	translator  *i18n.Translator
	log         *zerolog.Logger

	reloadPersona func() error // admin /reload; nil when the persona is embedded

	adminIDsMap   map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(
	cfg *config.BotConfig,
	facade *application.BotFacade,
	state repository.StateRepository,
	rateLimiter adapter.RateLimiter,
	translator *i18n.Translator,
	reloadPersona func() error,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return newAdapter(bot, cfg, facade, state, rateLimiter, translator, reloadPersona, logger)
}

func newAdapter(
	bot botAPI,
	cfg *config.BotConfig,
	facade *application.BotFacade,
	state repository.StateRepository,
	rateLimiter adapter.RateLimiter,
	translator *i18n.Translator,
	reloadPersona func() error,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	if state == nil {
		return nil, errors.New("state repository is nil")
	}
	if translator == nil {
		return nil, errors.New("translator is nil")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	adminMap := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		facade:        facade,
		state:         state,
		rateLimiter:   rateLimiter,
		translator:    translator,
		log:           logger,
		reloadPersona: reloadPersona,
		adminIDsMap:   adminMap,
		updateWorkers: workers,
	}, nil
}

// StartPolling blocks until ctx is cancelled or StopPolling is called.
// Workers drain their queues before it returns.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	if err := r.SetMenuCommands(ctx); err != nil {
		r.log.Warn().Err(err).Msg("failed to set bot menu commands")
	}

	var wg sync.WaitGroup
	shards := make([]chan tgbotapi.Update, r.updateWorkers)
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, 32)
		wg.Add(1)
		go func(id int, in <-chan tgbotapi.Update) {
			defer wg.Done()
			for up := range in {
				r.safeHandle(context.WithoutCancel(ctx), id, up)
			}
		}(i, shards[i])
	}

	defer func() {
		r.bot.StopReceivingUpdates()
		for _, ch := range shards {
			close(ch)
		}
		wg.Wait()
	}()

	r.log.Info().Int("workers", r.updateWorkers).Msg("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case shards[shardOf(updateChatID(up), len(shards))] <- up:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) safeHandle(ctx context.Context, worker int, up tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Int("update_id", up.UpdateID).Msg("telegram update handler panicked")
		}
	}()
	if err := r.handleUpdate(ctx, up); err != nil {
		r.log.Warn().Err(err).Int("worker", worker).Int("update_id", up.UpdateID).Msg("telegram update failed")
	}
}

func shardOf(chatID int64, n int) int {
	if chatID < 0 {
		chatID = -chatID
	}
	return int(chatID % int64(n))
}

func updateChatID(up tgbotapi.Update) int64 {
	switch {
	case up.Message != nil && up.Message.Chat != nil:
		return up.Message.Chat.ID
	case up.CallbackQuery != nil && up.CallbackQuery.Message != nil && up.CallbackQuery.Message.Chat != nil:
		return up.CallbackQuery.Message.Chat.ID
	case up.CallbackQuery != nil && up.CallbackQuery.From != nil:
		return up.CallbackQuery.From.ID
	}
	return 0
}

// SendMessage sends text, split into several messages when it is too long.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.bot.Send(tgbotapi.NewMessage(tgID, part)); err != nil {
			metrics.IncReplyFailed()
			return err
		}
	}
	return nil
}

// SendButtons sends a message with inline buttons using tgbotapi.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, kr)
	}

	msg := tgbotapi.NewMessage(tgID, text)
	if len(kbRows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	}
	if _, err := r.bot.Send(msg); err != nil {
		metrics.IncReplyFailed()
		return err
	}
	return nil
}

// SetMenuCommands publishes the command list shown in the Telegram menu.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmds := []tgbotapi.BotCommand{
		{Command: "start", Description: "Начать"},
		{Command: "newchat", Description: "Новый чат со сценарием"},
		{Command: "chats", Description: "Мои чаты"},
		{Command: "history", Description: "Последние сообщения"},
		{Command: "summary", Description: "Краткое содержание"},
		{Command: "rename", Description: "Переименовать чат"},
		{Command: "delete", Description: "Удалить чат"},
		{Command: "gender", Description: "Указать пол"},
		{Command: "empathy", Description: "Уровень эмпатии"},
		{Command: "help", Description: "Помощь"},
	}
	_, err := r.bot.Request(tgbotapi.NewSetMyCommands(cmds...))
	return err
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	ctx = logging.WithTraceID(ctx, strconv.Itoa(update.UpdateID))

	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}
	ctx = logging.WithTgID(ctx, msg.From.ID)

	if !r.allow(ctx, msg.From.ID, "msg") {
		return r.SendMessage(ctx, msg.Chat.ID, r.translator.T("error.rate_limited"))
	}

	if msg.IsCommand() {
		return r.handleCommand(ctx, msg)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return r.SendMessage(ctx, msg.Chat.ID, r.translator.T("error.empty"))
	}

	if handled, err := r.handlePending(ctx, msg); handled {
		return err
	}

	reply := r.facade.HandleChatMessage(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName, msg.Text, strconv.Itoa(update.UpdateID))
	return r.SendMessage(ctx, msg.Chat.ID, reply)
}

// handlePending answers an open /newchat or /rename prompt with msg.
func (r *RealTelegramBotAdapter) handlePending(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	st, err := r.state.GetState(ctx, msg.From.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.log.Warn().Err(err).Msg("read pending state")
		}
		return false, nil
	}
	_ = r.state.ClearState(ctx, msg.From.ID)
	if time.Since(st.CreatedAt) > pendingTTL {
		return false, nil
	}

	switch st.Kind {
	case repository.PendingScenario:
		return true, r.SendMessage(ctx, msg.Chat.ID, r.facade.HandleNewChat(ctx, msg.From.ID, msg.Text))
	case repository.PendingRename:
		return true, r.SendMessage(ctx, msg.Chat.ID, r.facade.HandleRename(ctx, msg.From.ID, st.ChatID, msg.Text))
	}
	return false, nil
}

func (r *RealTelegramBotAdapter) setPending(ctx context.Context, tgID int64, kind repository.PendingKind, chatID string) {
	err := r.state.SetState(ctx, tgID, &repository.ConversationState{Kind: kind, ChatID: chatID, CreatedAt: time.Now()})
	if err != nil {
		r.log.Warn().Err(err).Str("kind", string(kind)).Msg("store pending state")
	}
}

// allow applies the per-user flood limit. Limiter errors let the update through.
func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, kind string) bool {
	if r.rateLimiter == nil {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, rateKey(tgID, kind), r.cfg.RateLimit, r.cfg.RateWindow)
	if err != nil {
		r.log.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered(kind)
	}
	return ok
}

func rateKey(tgID int64, kind string) string {
	return "rl:" + kind + ":" + strconv.FormatInt(tgID, 10)
}

func (r *RealTelegramBotAdapter) isAdmin(tgID int64) bool {
	_, ok := r.adminIDsMap[tgID]
	return ok
}

// splitMessage cuts s into parts of at most n runes, preferring line breaks.
func splitMessage(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	var parts []string
	runes := []rune(s)
	for len(runes) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
