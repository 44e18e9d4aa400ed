package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/adapter"
	"odanna-bot/internal/infra/i18n"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/usecase"
)

// CallbackSelectChat prefixes the callback data of the chat list buttons.
const CallbackSelectChat = "select:"

const (
	defaultHistoryLimit = 10
	historyPreviewRunes = 300
)

// BotFacade composes usecases into high-level bot commands.
// Keep the facade methods returning strings so the Telegram adapter just forwards them to the chat.
// No method lets an error or panic escape: failures become the error.generic text.
type BotFacade struct {
	UserUC UserUseCaseIface
	ChatUC ChatUseCaseIface

	t        *i18n.Translator
	log      *zerolog.Logger
	maxRunes int
}

func NewBotFacade(userUC UserUseCaseIface, chatUC ChatUseCaseIface, t *i18n.Translator, maxMessageRunes int, logger *zerolog.Logger) *BotFacade {
	if maxMessageRunes <= 0 {
		maxMessageRunes = 4096
	}
	return &BotFacade{
		UserUC:   userUC,
		ChatUC:   chatUC,
		t:        t,
		log:      logger,
		maxRunes: maxMessageRunes,
	}
}

// HandleStart registers or fetches the user and returns the persona greeting.
func (b *BotFacade) HandleStart(ctx context.Context, tgID int64, username, firstName string) (out string) {
	defer b.recoverTo(ctx, "HandleStart", &out)

	if _, err := b.UserUC.RegisterOrFetch(ctx, tgID, username, firstName); err != nil {
		return b.fail(ctx, "HandleStart", err)
	}
	return b.t.T("start.welcome", b.ChatUC.Welcome())
}

func (b *BotFacade) HandleHelp() string { return b.t.T("help") }

// HandleChatMessage runs one free-text message through the conversation
// engine. dedupKey is the transport's delivery id.
func (b *BotFacade) HandleChatMessage(ctx context.Context, tgID int64, username, firstName, text, dedupKey string) (out string) {
	defer b.recoverTo(ctx, "HandleChatMessage", &out)

	text = strings.TrimSpace(text)
	if text == "" {
		return b.t.T("error.empty")
	}
	if utf8.RuneCountInString(text) > b.maxRunes {
		return b.t.T("error.too_long", b.maxRunes)
	}
	if _, err := b.UserUC.RegisterOrFetch(ctx, tgID, username, firstName); err != nil {
		return b.fail(ctx, "HandleChatMessage", err)
	}
	reply, err := b.ChatUC.HandleIncoming(ctx, usecase.Incoming{UserID: tgID, Text: text, DedupKey: dedupKey})
	if err != nil {
		return b.fail(ctx, "HandleChatMessage", err)
	}
	if reply.NewChat {
		return b.t.T("chat.auto_created") + "\n\n" + reply.Text
	}
	return reply.Text
}

// HandleNewChat opens a chat with an optional scenario and makes it current.
func (b *BotFacade) HandleNewChat(ctx context.Context, tgID int64, scenario string) (out string) {
	defer b.recoverTo(ctx, "HandleNewChat", &out)

	scenario = strings.TrimSpace(scenario)
	if utf8.RuneCountInString(scenario) > model.MaxScenarioRunes {
		return b.t.T("error.scenario_too_long", model.MaxScenarioRunes)
	}
	s, err := b.ChatUC.StartChat(ctx, tgID, "", scenario)
	if err != nil {
		return b.fail(ctx, "HandleNewChat", err)
	}
	if s.HasScenario() {
		return b.t.T("chat.created_scenario", s.Title, s.Scenario)
	}
	return b.t.T("chat.created", s.Title)
}

// ScenarioPrompt asks for the premise of a new chat.
func (b *BotFacade) ScenarioPrompt() string {
	return b.t.T("chat.scenario_prompt", model.MaxScenarioRunes)
}

// HandleListChats lists active chats newest first, with one select button each.
func (b *BotFacade) HandleListChats(ctx context.Context, tgID int64) (out string, buttons []adapter.InlineButton) {
	defer b.recoverTo(ctx, "HandleListChats", &out)

	chats, err := b.ChatUC.ListChats(ctx, tgID)
	if err != nil {
		return b.fail(ctx, "HandleListChats", err), nil
	}
	if len(chats) == 0 {
		return b.t.T("chat.list_empty"), nil
	}
	currentID := ""
	if cur, err := b.ChatUC.CurrentChat(ctx, tgID); err == nil {
		currentID = cur.ID
	}

	var sb strings.Builder
	sb.WriteString(b.t.T("chat.list_header"))
	for _, c := range chats {
		mark := "▫️"
		if c.ID == currentID {
			mark = "▶️"
		}
		sb.WriteString("\n")
		sb.WriteString(b.t.T("chat.list_item", mark, c.Title, c.MessageCount))
		if c.Summary != "" {
			sb.WriteString("\n")
			sb.WriteString(b.t.T("chat.list_summary", c.Summary))
		}
		buttons = append(buttons, adapter.InlineButton{
			Text: model.Truncate(c.Title, 40),
			Data: CallbackSelectChat + c.ID,
		})
	}
	return sb.String(), buttons
}

func (b *BotFacade) HandleSelectChat(ctx context.Context, tgID int64, chatID string) (out string) {
	defer b.recoverTo(ctx, "HandleSelectChat", &out)

	s, err := b.ChatUC.SelectChat(ctx, tgID, chatID)
	if err != nil {
		return b.fail(ctx, "HandleSelectChat", err)
	}
	return b.t.T("chat.selected", s.Title)
}

// RenamePrompt asks for a new title for the current chat. ok is false when
// there is no current chat, and out then explains why.
func (b *BotFacade) RenamePrompt(ctx context.Context, tgID int64) (out string, chatID string, ok bool) {
	defer b.recoverTo(ctx, "RenamePrompt", &out)

	s, err := b.ChatUC.CurrentChat(ctx, tgID)
	if err != nil {
		return b.fail(ctx, "RenamePrompt", err), "", false
	}
	return b.t.T("chat.rename_prompt", s.Title), s.ID, true
}

// HandleRename renames chatID, or the current chat when chatID is empty.
func (b *BotFacade) HandleRename(ctx context.Context, tgID int64, chatID, title string) (out string) {
	defer b.recoverTo(ctx, "HandleRename", &out)

	if strings.TrimSpace(title) == "" {
		return b.t.T("error.empty")
	}
	if chatID == "" {
		cur, err := b.ChatUC.CurrentChat(ctx, tgID)
		if err != nil {
			return b.fail(ctx, "HandleRename", err)
		}
		chatID = cur.ID
	}
	s, err := b.ChatUC.RenameChat(ctx, tgID, chatID, title)
	if err != nil {
		return b.fail(ctx, "HandleRename", err)
	}
	return b.t.T("chat.renamed", s.Title)
}

// HandleDelete soft-deletes chatID, or the current chat when chatID is empty.
func (b *BotFacade) HandleDelete(ctx context.Context, tgID int64, chatID string) (out string) {
	defer b.recoverTo(ctx, "HandleDelete", &out)

	var title string
	if chatID == "" {
		cur, err := b.ChatUC.CurrentChat(ctx, tgID)
		if err != nil {
			return b.fail(ctx, "HandleDelete", err)
		}
		chatID, title = cur.ID, cur.Title
	}
	if err := b.ChatUC.DeleteChat(ctx, tgID, chatID); err != nil {
		return b.fail(ctx, "HandleDelete", err)
	}
	if title == "" {
		title = chatID
	}
	return b.t.T("chat.deleted", title)
}

// HandleHistory renders the last limit visible messages of the current chat.
func (b *BotFacade) HandleHistory(ctx context.Context, tgID int64, limit int) (out string) {
	defer b.recoverTo(ctx, "HandleHistory", &out)

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	cur, err := b.ChatUC.CurrentChat(ctx, tgID)
	if err != nil {
		return b.fail(ctx, "HandleHistory", err)
	}
	msgs, err := b.ChatUC.History(ctx, tgID, cur.ID, limit, false)
	if err != nil {
		return b.fail(ctx, "HandleHistory", err)
	}
	if len(msgs) == 0 {
		return b.t.T("history.empty")
	}
	var sb strings.Builder
	sb.WriteString(b.t.T("history.header", cur.Title))
	for _, m := range msgs {
		icon := "🏮"
		if m.FromUser() {
			icon = "👤"
		}
		text := m.Text
		if utf8.RuneCountInString(text) > historyPreviewRunes {
			text = model.Truncate(text, historyPreviewRunes) + "..."
		}
		sb.WriteString("\n")
		sb.WriteString(icon + " " + text)
	}
	return sb.String()
}

func (b *BotFacade) HandleSummary(ctx context.Context, tgID int64) (out string) {
	defer b.recoverTo(ctx, "HandleSummary", &out)

	s, err := b.ChatUC.Summary(ctx, tgID, "")
	if err != nil {
		return b.fail(ctx, "HandleSummary", err)
	}
	return s
}

// HandleGender stores the gender hint. arg accepts english and russian spellings.
func (b *BotFacade) HandleGender(ctx context.Context, tgID int64, username, firstName, arg string) (out string) {
	defer b.recoverTo(ctx, "HandleGender", &out)

	g := model.ParseGender(arg)
	if g == model.GenderUnknown && !isUnknownWord(arg) {
		return b.t.T("gender.usage")
	}
	if _, err := b.UserUC.RegisterOrFetch(ctx, tgID, username, firstName); err != nil {
		return b.fail(ctx, "HandleGender", err)
	}
	if _, err := b.UserUC.SetGender(ctx, tgID, g); err != nil {
		return b.fail(ctx, "HandleGender", err)
	}
	return b.t.T("gender.set", b.t.T("gender."+string(g)))
}

func isUnknownWord(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unknown", "none", "-", "неизвестно", "не указан":
		return true
	}
	return false
}

// HandleEmpathy shows, pins or releases the empathy level of the current chat.
// arg is empty (show), "auto" (release) or a number 0..100 (pin).
func (b *BotFacade) HandleEmpathy(ctx context.Context, tgID int64, arg string) (out string) {
	defer b.recoverTo(ctx, "HandleEmpathy", &out)

	arg = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(arg), "%")))
	switch arg {
	case "":
		cur, err := b.ChatUC.CurrentChat(ctx, tgID)
		if err != nil {
			return b.fail(ctx, "HandleEmpathy", err)
		}
		level := cur.Empathy
		if cur.EmpathyOverride != nil {
			level = *cur.EmpathyOverride
		}
		return b.t.T("empathy.current", level) + "\n" + b.t.T("empathy.usage")
	case "auto", "авто":
		if _, err := b.ChatUC.SetEmpathyOverride(ctx, tgID, "", nil); err != nil {
			return b.fail(ctx, "HandleEmpathy", err)
		}
		return b.t.T("empathy.auto")
	}

	level, err := strconv.Atoi(arg)
	if err != nil || level < 0 || level > 100 {
		return b.t.T("empathy.usage")
	}
	s, err := b.ChatUC.SetEmpathyOverride(ctx, tgID, "", &level)
	if err != nil {
		return b.fail(ctx, "HandleEmpathy", err)
	}
	return b.t.T("empathy.pinned", *s.EmpathyOverride)
}

// fail maps err to user text. Lookup failures of the chat commands get
// their own wording; everything else is the one generic apology.
func (b *BotFacade) fail(ctx context.Context, op string, err error) string {
	if op != "HandleChatMessage" {
		switch {
		case errors.Is(err, domain.ErrNotFound) && isCurrentOp(op):
			return b.t.T("chat.none")
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotOwner):
			return b.t.T("chat.not_found")
		case errors.Is(err, domain.ErrChatInactive):
			return b.t.T("chat.inactive")
		}
	}
	logging.With(ctx, b.log).Error().Err(err).Str("op", op).Msg("bot command failed")
	return b.t.T("error.generic")
}

// isCurrentOp lists the commands that act on the current chat, where not
// found means there is none.
func isCurrentOp(op string) bool {
	switch op {
	case "RenamePrompt", "HandleRename", "HandleDelete", "HandleHistory", "HandleSummary", "HandleEmpathy":
		return true
	}
	return false
}

func (b *BotFacade) recoverTo(ctx context.Context, op string, out *string) {
	if r := recover(); r != nil {
		logging.With(ctx, b.log).Error().Str("op", op).Str("panic", fmt.Sprint(r)).Msg("recovered panic in bot command")
		*out = b.t.T("error.generic")
	}
}
