package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"odanna-bot/internal/domain/ports/adapter"
	"odanna-bot/internal/domain/ports/repository"
	"odanna-bot/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":   r.handleStartCommand,
		"help":    r.handleHelpCommand,
		"newchat": r.handleNewChatCommand,
		"skip":    r.handleSkipCommand,
		"chats":   r.handleChatsCommand,
		"rename":  r.handleRenameCommand,
		"delete":  r.handleDeleteCommand,
		"history": r.handleHistoryCommand,
		"summary": r.handleSummaryCommand,
		"gender":  r.handleGenderCommand,
		"empathy": r.handleEmpathyCommand,

		"reload": r.adminOnly(r.handleReloadCommand),
	}
}

func (r *RealTelegramBotAdapter) handleCommand(ctx context.Context, message *tgbotapi.Message) error {
	cmd := message.Command()
	h, ok := r.commandRoutes()[cmd]
	if !ok {
		metrics.IncTelegramCommand("unknown")
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("error.unknown_command"))
	}
	metrics.IncTelegramCommand("/" + cmd)
	if cmd != "skip" {
		// any other command abandons an open prompt
		_ = r.state.ClearState(ctx, message.From.ID)
	}
	return h(ctx, message)
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.isAdmin(message.From.ID) {
			r.log.Warn().Int64("tg_id", message.From.ID).Str("command", message.Command()).Msg("admin command refused")
			return r.SendMessage(ctx, message.Chat.ID, r.translator.T("error.unknown_command"))
		}
		return next(ctx, message)
	}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	text := r.facade.HandleStart(ctx, message.From.ID, message.From.UserName, message.From.FirstName)
	return r.SendMessage(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleHelp())
}

// handleNewChatCommand opens a chat directly when a scenario follows the
// command, otherwise asks for one.
func (r *RealTelegramBotAdapter) handleNewChatCommand(ctx context.Context, message *tgbotapi.Message) error {
	if scenario := strings.TrimSpace(message.CommandArguments()); scenario != "" {
		return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleNewChat(ctx, message.From.ID, scenario))
	}
	r.setPending(ctx, message.From.ID, repository.PendingScenario, "")
	return r.SendMessage(ctx, message.Chat.ID, r.facade.ScenarioPrompt())
}

// handleSkipCommand answers a scenario prompt with "no scenario".
func (r *RealTelegramBotAdapter) handleSkipCommand(ctx context.Context, message *tgbotapi.Message) error {
	st, err := r.state.GetState(ctx, message.From.ID)
	if err != nil || st.Kind != repository.PendingScenario {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("error.unknown_command"))
	}
	_ = r.state.ClearState(ctx, message.From.ID)
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleNewChat(ctx, message.From.ID, ""))
}

func (r *RealTelegramBotAdapter) handleChatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, buttons := r.facade.HandleListChats(ctx, message.From.ID)
	if len(buttons) == 0 {
		return r.SendMessage(ctx, message.Chat.ID, text)
	}
	rows := make([][]adapter.InlineButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []adapter.InlineButton{b})
	}
	return r.SendButtons(ctx, message.Chat.ID, text, rows)
}

func (r *RealTelegramBotAdapter) handleRenameCommand(ctx context.Context, message *tgbotapi.Message) error {
	if title := strings.TrimSpace(message.CommandArguments()); title != "" {
		return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleRename(ctx, message.From.ID, "", title))
	}
	text, chatID, ok := r.facade.RenamePrompt(ctx, message.From.ID)
	if ok {
		r.setPending(ctx, message.From.ID, repository.PendingRename, chatID)
	}
	return r.SendMessage(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleDeleteCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleDelete(ctx, message.From.ID, ""))
}

func (r *RealTelegramBotAdapter) handleHistoryCommand(ctx context.Context, message *tgbotapi.Message) error {
	limit, _ := strconv.Atoi(strings.TrimSpace(message.CommandArguments()))
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleHistory(ctx, message.From.ID, limit))
}

func (r *RealTelegramBotAdapter) handleSummaryCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleSummary(ctx, message.From.ID))
}

func (r *RealTelegramBotAdapter) handleGenderCommand(ctx context.Context, message *tgbotapi.Message) error {
	arg := strings.TrimSpace(message.CommandArguments())
	if arg == "" {
		rows := [][]adapter.InlineButton{{
			{Text: r.translator.T("gender.male"), Data: cbGender + "male"},
			{Text: r.translator.T("gender.female"), Data: cbGender + "female"},
			{Text: r.translator.T("gender.unknown"), Data: cbGender + "unknown"},
		}}
		return r.SendButtons(ctx, message.Chat.ID, r.translator.T("gender.usage"), rows)
	}
	from := message.From
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleGender(ctx, from.ID, from.UserName, from.FirstName, arg))
}

// handleEmpathyCommand shows the level with the preset keyboard, or applies
// the argument directly.
func (r *RealTelegramBotAdapter) handleEmpathyCommand(ctx context.Context, message *tgbotapi.Message) error {
	arg := strings.TrimSpace(message.CommandArguments())
	text := r.facade.HandleEmpathy(ctx, message.From.ID, arg)
	if arg != "" {
		return r.SendMessage(ctx, message.Chat.ID, text)
	}
	row := make([]adapter.InlineButton, 0, 5)
	for _, lvl := range []string{"30", "50", "70", "90"} {
		row = append(row, adapter.InlineButton{Text: lvl + "%", Data: cbEmpathy + lvl})
	}
	row = append(row, adapter.InlineButton{Text: "auto", Data: cbEmpathy + "auto"})
	return r.SendButtons(ctx, message.Chat.ID, text, [][]adapter.InlineButton{row})
}

func (r *RealTelegramBotAdapter) handleReloadCommand(ctx context.Context, message *tgbotapi.Message) error {
	if r.reloadPersona == nil {
		return r.SendMessage(ctx, message.Chat.ID, "persona is embedded, nothing to reload")
	}
	if err := r.reloadPersona(); err != nil {
		r.log.Error().Err(err).Msg("persona reload failed")
		return r.SendMessage(ctx, message.Chat.ID, "reload failed: "+err.Error())
	}
	r.log.Info().Int64("tg_id", message.From.ID).Msg("persona reloaded by admin")
	return r.SendMessage(ctx, message.Chat.ID, "persona reloaded")
}
