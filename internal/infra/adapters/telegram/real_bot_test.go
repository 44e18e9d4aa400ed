package telegram

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"odanna-bot/internal/application"
	"odanna-bot/internal/config"
	"odanna-bot/internal/engine"
	"odanna-bot/internal/infra/db/sqlite"
	"odanna-bot/internal/infra/i18n"
	"odanna-bot/internal/infra/local"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/persona"
	"odanna-bot/internal/usecase"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	updates chan tgbotapi.Update
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.mu.Lock()
		f.sent = append(f.sent, m)
		f.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }
func (f *fakeBot) StopReceivingUpdates()                                        {}

func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Text
	}
	return out
}

func (f *fakeBot) last() tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type rig struct {
	bot *fakeBot
	a   *RealTelegramBotAdapter
	tr  *i18n.Translator
}

func newRig(t *testing.T, cfg config.BotConfig) *rig {
	t.Helper()
	log := logging.Nop()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "bot.db"), log)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	users := sqlite.NewUserRepo(store)
	tm := sqlite.NewTxManager(store)
	chatUC := usecase.NewChatUseCase(engine.Static(persona.Default()), usecase.ChatDeps{
		Users:    users,
		Sessions: sqlite.NewChatSessionRepo(store),
		Messages: sqlite.NewMessageRepo(store, nil),
		TM:       tm,
		Locker:   local.NewKeyedMutex(time.Second),
	}, usecase.ChatOptions{}, nil, log)
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		t.Fatal(err)
	}
	facade := application.NewBotFacade(usecase.NewUserUseCase(users, tm, log), chatUC, tr, 4096, log)

	bot := &fakeBot{updates: make(chan tgbotapi.Update)}
	a, err := newAdapter(bot, &cfg, facade, local.NewStateRepo(), local.NewRateLimiter(), tr, nil, log)
	if err != nil {
		t.Fatal(err)
	}
	return &rig{bot: bot, a: a, tr: tr}
}

const guestID = int64(42)

func textUpdate(id int, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: id,
		From:      &tgbotapi.User{ID: guestID, UserName: "guest", FirstName: "Гость"},
		Chat:      &tgbotapi.Chat{ID: guestID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{UpdateID: id, Message: msg}
}

func (r *rig) send(t *testing.T, up tgbotapi.Update) string {
	t.Helper()
	if err := r.a.handleUpdate(context.Background(), up); err != nil {
		t.Fatalf("handleUpdate(%d): %v", up.UpdateID, err)
	}
	return r.bot.last().Text
}

func TestConversationOverTelegram(t *testing.T) {
	r := newRig(t, config.BotConfig{RateLimit: 100, RateWindow: time.Minute})

	if got := r.send(t, textUpdate(1, "/start")); !strings.Contains(got, "Небесную Гостиницу") {
		t.Fatalf("start = %q", got)
	}

	first := r.send(t, textUpdate(2, "привет"))
	if !strings.HasPrefix(first, r.tr.T("chat.auto_created")) {
		t.Fatalf("first message should open a chat: %q", first)
	}
	// a redelivered update returns the stored reply and appends nothing
	again := r.send(t, textUpdate(2, "привет"))
	if !strings.HasSuffix(first, again) {
		t.Fatalf("redelivery = %q, first = %q", again, first)
	}
	hist := r.send(t, textUpdate(3, "/history"))
	if strings.Count(hist, "👤") != 1 || strings.Count(hist, "🏮") != 1 {
		t.Fatalf("history after redelivery = %q", hist)
	}

	if got := r.send(t, textUpdate(4, "/newchat")); got != r.a.facade.ScenarioPrompt() {
		t.Fatalf("newchat prompt = %q", got)
	}
	if got := r.send(t, textUpdate(5, "Гость потерял ключ")); got != r.tr.T("chat.created_scenario", "Чат: Гость потерял ключ", "Гость потерял ключ") {
		t.Fatalf("scenario answer = %q", got)
	}

	if got := r.send(t, textUpdate(6, "/rename")); !strings.Contains(got, "Чат: Гость потерял ключ") {
		t.Fatalf("rename prompt = %q", got)
	}
	if got := r.send(t, textUpdate(7, "Ключ")); got != r.tr.T("chat.renamed", "Ключ") {
		t.Fatalf("rename answer = %q", got)
	}

	r.send(t, textUpdate(8, "/chats"))
	list := r.bot.last()
	kb, ok := list.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("chat list keyboard = %#v", list.ReplyMarkup)
	}
	var implicit *tgbotapi.InlineKeyboardButton
	for _, row := range kb.InlineKeyboard {
		if strings.HasPrefix(row[0].Text, "Авточат от ") {
			implicit = &row[0]
		}
	}
	if implicit == nil {
		t.Fatalf("implicit chat missing from %#v", kb.InlineKeyboard)
	}
	cb := tgbotapi.Update{UpdateID: 9, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: guestID},
		Data: *implicit.CallbackData,
	}}
	if got := r.send(t, cb); !strings.HasPrefix(got, "Текущий чат: «Авточат от ") {
		t.Fatalf("select callback = %q", got)
	}

	if got := r.send(t, textUpdate(10, "/nonsense")); got != r.tr.T("error.unknown_command") {
		t.Fatalf("unknown command = %q", got)
	}
	if got := r.send(t, textUpdate(11, "/reload")); got != r.tr.T("error.unknown_command") {
		t.Fatalf("admin command for guest = %q", got)
	}
}

func TestSkipStartsChatWithoutScenario(t *testing.T) {
	r := newRig(t, config.BotConfig{RateLimit: 100, RateWindow: time.Minute})
	r.send(t, textUpdate(1, "/newchat"))
	if got := r.send(t, textUpdate(2, "/skip")); !strings.HasPrefix(got, "Создан чат «Авточат от ") {
		t.Fatalf("skip = %q", got)
	}
	if got := r.send(t, textUpdate(3, "/skip")); got != r.tr.T("error.unknown_command") {
		t.Fatalf("skip without prompt = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	r := newRig(t, config.BotConfig{RateLimit: 2, RateWindow: time.Hour})
	r.send(t, textUpdate(1, "раз"))
	r.send(t, textUpdate(2, "два"))
	if got := r.send(t, textUpdate(3, "три")); got != r.tr.T("error.rate_limited") {
		t.Fatalf("third message = %q", got)
	}
}

func TestStartPollingHandlesAndDrains(t *testing.T) {
	r := newRig(t, config.BotConfig{RateLimit: 100, RateWindow: time.Minute, Workers: 3})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.a.StartPolling(ctx) }()

	r.bot.updates <- textUpdate(1, "/start")
	r.bot.updates <- textUpdate(2, "привет")

	deadline := time.Now().Add(5 * time.Second)
	for len(r.bot.texts()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	if n := len(r.bot.texts()); n != 2 {
		t.Fatalf("sent %d messages, want 2", n)
	}
}

func TestIsAdmin(t *testing.T) {
	r := &RealTelegramBotAdapter{adminIDsMap: map[int64]struct{}{1111: {}, 2222: {}}}
	if !r.isAdmin(1111) {
		t.Fatalf("expected 1111 to be admin")
	}
	if r.isAdmin(3333) {
		t.Fatalf("expected 3333 to NOT be admin")
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want []string
	}{
		{"short", "привет", 10, []string{"привет"}},
		{"hard cut", "абвгдеж", 3, []string{"абв", "где", "ж"}},
		{"prefers newline", "ааа\nбб\nвввв", 8, []string{"ааа\nбб", "вввв"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.in, tt.n)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("splitMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShardOfKeepsChatOnOneWorker(t *testing.T) {
	for _, id := range []int64{0, 7, -1001234567890, 42} {
		a, b := shardOf(id, 4), shardOf(id, 4)
		if a != b || a < 0 || a >= 4 {
			t.Fatalf("shardOf(%d) = %d, %d", id, a, b)
		}
	}
}
