package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"odanna-bot/internal/application"
	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/infra/i18n"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/usecase"
)

type mockUserUC struct {
	registered []int64
	gender     model.Gender
	err        error
}

func (m *mockUserUC) RegisterOrFetch(_ context.Context, tgID int64, username, _ string) (*model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.registered = append(m.registered, tgID)
	return &model.User{ID: tgID, Username: username}, nil
}

func (m *mockUserUC) SetGender(_ context.Context, tgID int64, g model.Gender) (*model.User, error) {
	m.gender = g
	return &model.User{ID: tgID, Gender: g}, nil
}

// mockChatUC records calls and returns canned values.
type mockChatUC struct {
	reply    *usecase.Reply
	err      error
	panicMsg string
	current  *model.ChatSession
	chats    []*model.ChatSession
	history  []model.Message
	override *int
	lastIn   usecase.Incoming
	deleted  string
}

func (m *mockChatUC) HandleIncoming(_ context.Context, in usecase.Incoming) (*usecase.Reply, error) {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.lastIn = in
	return m.reply, m.err
}

func (m *mockChatUC) StartChat(_ context.Context, userID int64, title, scenario string) (*model.ChatSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := &model.ChatSession{ID: "new", UserID: userID, Title: "Чат: " + scenario, Scenario: scenario}
	if scenario == "" {
		s.Title = "Авточат"
	}
	return s, nil
}

func (m *mockChatUC) CurrentChat(context.Context, int64) (*model.ChatSession, error) {
	if m.current == nil {
		return nil, domain.ErrNotFound
	}
	return m.current, nil
}

func (m *mockChatUC) ListChats(context.Context, int64) ([]*model.ChatSession, error) {
	return m.chats, m.err
}

func (m *mockChatUC) SelectChat(_ context.Context, _ int64, chatID string) (*model.ChatSession, error) {
	for _, c := range m.chats {
		if c.ID == chatID {
			return c, nil
		}
	}
	return nil, domain.ErrNotOwner
}

func (m *mockChatUC) RenameChat(_ context.Context, _ int64, chatID, title string) (*model.ChatSession, error) {
	return &model.ChatSession{ID: chatID, Title: strings.TrimSpace(title)}, nil
}

func (m *mockChatUC) DeleteChat(_ context.Context, _ int64, chatID string) error {
	m.deleted = chatID
	return m.err
}

func (m *mockChatUC) History(context.Context, int64, string, int, bool) ([]model.Message, error) {
	return m.history, m.err
}

func (m *mockChatUC) Summary(context.Context, int64, string) (string, error) {
	return "Чат с 2 сообщениями", m.err
}

func (m *mockChatUC) SetEmpathyOverride(_ context.Context, _ int64, _ string, level *int) (*model.ChatSession, error) {
	if m.current == nil {
		return nil, domain.ErrNotFound
	}
	m.override = level
	s := *m.current
	s.EmpathyOverride = level
	return &s, nil
}

func (m *mockChatUC) Welcome() string { return "Добро пожаловать" }

func newFacade(t *testing.T, users *mockUserUC, chats *mockChatUC) (*application.BotFacade, *i18n.Translator) {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	return application.NewBotFacade(users, chats, tr, 20, logging.Nop()), tr
}

func TestHandleChatMessage(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		chats *mockChatUC
		users *mockUserUC
		text  string
		want  func(tr *i18n.Translator) string
	}{
		{
			name:  "reply forwarded",
			chats: &mockChatUC{reply: &usecase.Reply{Text: "Слушаю вас."}},
			text:  "привет",
			want:  func(*i18n.Translator) string { return "Слушаю вас." },
		},
		{
			name:  "implicit chat announced",
			chats: &mockChatUC{reply: &usecase.Reply{Text: "Слушаю вас.", NewChat: true}},
			text:  "привет",
			want:  func(tr *i18n.Translator) string { return tr.T("chat.auto_created") + "\n\nСлушаю вас." },
		},
		{
			name:  "storage failure becomes apology",
			chats: &mockChatUC{err: errors.Join(domain.ErrStorage, errors.New("disk full"))},
			text:  "привет",
			want:  func(tr *i18n.Translator) string { return tr.T("error.generic") },
		},
		{
			name:  "not found in chat path is still the apology",
			chats: &mockChatUC{err: domain.ErrNotFound},
			text:  "привет",
			want:  func(tr *i18n.Translator) string { return tr.T("error.generic") },
		},
		{
			name:  "panic becomes apology",
			chats: &mockChatUC{panicMsg: "nil map"},
			text:  "привет",
			want:  func(tr *i18n.Translator) string { return tr.T("error.generic") },
		},
		{
			name:  "empty rejected before the engine",
			chats: &mockChatUC{},
			text:  "   ",
			want:  func(tr *i18n.Translator) string { return tr.T("error.empty") },
		},
		{
			name:  "too long rejected before the engine",
			chats: &mockChatUC{},
			text:  strings.Repeat("я", 21),
			want:  func(tr *i18n.Translator) string { return tr.T("error.too_long", 20) },
		},
		{
			name:  "user registration failure",
			chats: &mockChatUC{},
			users: &mockUserUC{err: errors.New("db down")},
			text:  "привет",
			want:  func(tr *i18n.Translator) string { return tr.T("error.generic") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := tt.users
			if users == nil {
				users = &mockUserUC{}
			}
			f, tr := newFacade(t, users, tt.chats)
			got := f.HandleChatMessage(ctx, 7, "u", "U", tt.text, "upd-1")
			if want := tt.want(tr); got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}

	t.Run("dedup key and trimmed text passed through", func(t *testing.T) {
		chats := &mockChatUC{reply: &usecase.Reply{Text: "ok"}}
		f, _ := newFacade(t, &mockUserUC{}, chats)
		f.HandleChatMessage(ctx, 7, "u", "U", "  привет  ", "upd-9")
		if chats.lastIn.DedupKey != "upd-9" || chats.lastIn.Text != "привет" || chats.lastIn.UserID != 7 {
			t.Fatalf("incoming = %+v", chats.lastIn)
		}
	})
}

func TestHandleStartAndNewChat(t *testing.T) {
	ctx := context.Background()
	users := &mockUserUC{}
	f, tr := newFacade(t, users, &mockChatUC{})

	if got := f.HandleStart(ctx, 7, "u", "U"); !strings.HasPrefix(got, "Добро пожаловать") {
		t.Fatalf("start = %q", got)
	}
	if len(users.registered) != 1 {
		t.Fatalf("user not registered")
	}
	if got := f.HandleNewChat(ctx, 7, "Гость ищет ключ"); got != tr.T("chat.created_scenario", "Чат: Гость ищет ключ", "Гость ищет ключ") {
		t.Fatalf("newchat = %q", got)
	}
	if got := f.HandleNewChat(ctx, 7, ""); got != tr.T("chat.created", "Авточат") {
		t.Fatalf("newchat without scenario = %q", got)
	}
	if got := f.HandleNewChat(ctx, 7, strings.Repeat("я", model.MaxScenarioRunes+1)); got != tr.T("error.scenario_too_long", model.MaxScenarioRunes) {
		t.Fatalf("long scenario = %q", got)
	}
}

func TestHandleListAndSelect(t *testing.T) {
	ctx := context.Background()
	a := &model.ChatSession{ID: "a", Title: "Первый", MessageCount: 3, Summary: "Чат с 6 сообщениями"}
	b := &model.ChatSession{ID: "b", Title: "Второй"}
	chats := &mockChatUC{chats: []*model.ChatSession{b, a}, current: a}
	f, tr := newFacade(t, &mockUserUC{}, chats)

	text, buttons := f.HandleListChats(ctx, 7)
	if len(buttons) != 2 || buttons[0].Data != application.CallbackSelectChat+"b" {
		t.Fatalf("buttons = %+v", buttons)
	}
	if !strings.Contains(text, "▶️ Первый") || !strings.Contains(text, "Чат с 6 сообщениями") {
		t.Fatalf("list = %q", text)
	}
	if got := f.HandleSelectChat(ctx, 7, "b"); got != tr.T("chat.selected", "Второй") {
		t.Fatalf("select = %q", got)
	}
	if got := f.HandleSelectChat(ctx, 7, "zzz"); got != tr.T("chat.not_found") {
		t.Fatalf("foreign select = %q", got)
	}

	empty, _ := newFacade(t, &mockUserUC{}, &mockChatUC{})
	if got, btns := empty.HandleListChats(ctx, 7); got != tr.T("chat.list_empty") || btns != nil {
		t.Fatalf("empty list = %q %v", got, btns)
	}
}

func TestHandleHistory(t *testing.T) {
	ctx := context.Background()
	chats := &mockChatUC{
		current: &model.ChatSession{ID: "a", Title: "Первый"},
		history: []model.Message{
			{Role: model.RoleUser, Text: "привет"},
			{Role: model.RoleAssistant, Text: "Слушаю вас."},
		},
	}
	f, tr := newFacade(t, &mockUserUC{}, chats)
	want := tr.T("history.header", "Первый") + "\n👤 привет\n🏮 Слушаю вас."
	if got := f.HandleHistory(ctx, 7, 0); got != want {
		t.Fatalf("history = %q, want %q", got, want)
	}

	none, _ := newFacade(t, &mockUserUC{}, &mockChatUC{})
	if got := none.HandleHistory(ctx, 7, 0); got != tr.T("chat.none") {
		t.Fatalf("no chat = %q", got)
	}
}

func TestHandleGenderAndEmpathy(t *testing.T) {
	ctx := context.Background()
	users := &mockUserUC{}
	chats := &mockChatUC{current: &model.ChatSession{ID: "a", Empathy: 35}}
	f, tr := newFacade(t, users, chats)

	if got := f.HandleGender(ctx, 7, "u", "U", "ж"); got != tr.T("gender.set", tr.T("gender.female")) || users.gender != model.GenderFemale {
		t.Fatalf("gender = %q (%s)", got, users.gender)
	}
	if got := f.HandleGender(ctx, 7, "u", "U", "robot"); got != tr.T("gender.usage") {
		t.Fatalf("bad gender = %q", got)
	}

	tests := []struct {
		arg  string
		want string
	}{
		{"70", tr.T("empathy.pinned", 70)},
		{"90%", tr.T("empathy.pinned", 90)},
		{"auto", tr.T("empathy.auto")},
		{"150", tr.T("empathy.usage")},
		{"много", tr.T("empathy.usage")},
		{"", tr.T("empathy.current", 35) + "\n" + tr.T("empathy.usage")},
	}
	for _, tt := range tests {
		if got := f.HandleEmpathy(ctx, 7, tt.arg); got != tt.want {
			t.Errorf("HandleEmpathy(%q) = %q, want %q", tt.arg, got, tt.want)
		}
	}
}

func TestHandleRenameDeleteSummary(t *testing.T) {
	ctx := context.Background()
	chats := &mockChatUC{current: &model.ChatSession{ID: "a", Title: "Первый"}}
	f, tr := newFacade(t, &mockUserUC{}, chats)

	if got := f.HandleRename(ctx, 7, "", "  Новое  "); got != tr.T("chat.renamed", "Новое") {
		t.Fatalf("rename = %q", got)
	}
	if got := f.HandleDelete(ctx, 7, ""); got != tr.T("chat.deleted", "Первый") || chats.deleted != "a" {
		t.Fatalf("delete = %q", got)
	}
	if got := f.HandleSummary(ctx, 7); got != "Чат с 2 сообщениями" {
		t.Fatalf("summary = %q", got)
	}

	none, _ := newFacade(t, &mockUserUC{}, &mockChatUC{})
	if got := none.HandleDelete(ctx, 7, ""); got != tr.T("chat.none") {
		t.Fatalf("delete without chat = %q", got)
	}
}
