// Command demo runs the conversation engine in the terminal over a local
// SQLite file, without Telegram. Lines starting with a slash are commands.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"odanna-bot/internal/application"
	"odanna-bot/internal/config"
	"odanna-bot/internal/engine"
	"odanna-bot/internal/infra/adapters/telegram"
	"odanna-bot/internal/infra/db/sqlite"
	"odanna-bot/internal/infra/i18n"
	"odanna-bot/internal/infra/local"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/persona"
	"odanna-bot/internal/usecase"
)

const demoUser = int64(1)

func main() {
	dbPath := flag.String("db", filepath.Join(os.TempDir(), "odanna-demo.db"), "sqlite file")
	personaPath := flag.String("persona", "", "persona yaml (embedded persona when empty)")
	verbose := flag.Bool("v", false, "debug logging to stderr")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := logging.NewWithWriter(config.LogConfig{Level: level, Format: "console"}, true, os.Stderr)

	p := persona.Default()
	if *personaPath != "" {
		var err error
		if p, err = persona.Load(*personaPath); err != nil {
			logger.Fatal().Err(err).Msg("persona")
		}
	}

	store, err := sqlite.Open(*dbPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("sqlite")
	}
	defer store.Close()

	users := sqlite.NewUserRepo(store)
	tm := sqlite.NewTxManager(store)
	chatUC := usecase.NewChatUseCase(engine.Static(p), usecase.ChatDeps{
		Users:    users,
		Sessions: sqlite.NewChatSessionRepo(store),
		Messages: sqlite.NewMessageRepo(store, nil),
		TM:       tm,
		Locker:   local.NewKeyedMutex(time.Second),
	}, usecase.ChatOptions{Dev: true}, nil, logger)

	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	facade := application.NewBotFacade(usecase.NewUserUseCase(users, tm, logger), chatUC, tr, 4096, logger)
	out := telegram.NewNoopBotAdapter(os.Stdout)

	ctx := context.Background()
	_ = out.SendMessage(ctx, demoUser, facade.HandleStart(ctx, demoUser, "demo", "Гость"))

	// delivery ids must not repeat across runs over the same file
	run := strconv.FormatInt(time.Now().UnixNano(), 36)
	in := bufio.NewScanner(os.Stdin)
	seq := 0
	for fmt.Print("> "); in.Scan(); fmt.Print("> ") {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		seq++
		if !strings.HasPrefix(line, "/") {
			_ = out.SendMessage(ctx, demoUser, facade.HandleChatMessage(ctx, demoUser, "demo", "Гость", line, run+":"+strconv.Itoa(seq)))
			continue
		}
		cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "quit", "exit":
			return
		case "newchat":
			_ = out.SendMessage(ctx, demoUser, facade.HandleNewChat(ctx, demoUser, arg))
		case "chats":
			text, buttons := facade.HandleListChats(ctx, demoUser)
			for _, b := range buttons {
				text += "\n  " + strings.TrimPrefix(b.Data, application.CallbackSelectChat) + "  " + b.Text
			}
			_ = out.SendMessage(ctx, demoUser, text)
		case "select":
			_ = out.SendMessage(ctx, demoUser, facade.HandleSelectChat(ctx, demoUser, arg))
		case "rename":
			_ = out.SendMessage(ctx, demoUser, facade.HandleRename(ctx, demoUser, "", arg))
		case "delete":
			_ = out.SendMessage(ctx, demoUser, facade.HandleDelete(ctx, demoUser, ""))
		case "history":
			n, _ := strconv.Atoi(arg)
			_ = out.SendMessage(ctx, demoUser, facade.HandleHistory(ctx, demoUser, n))
		case "summary":
			_ = out.SendMessage(ctx, demoUser, facade.HandleSummary(ctx, demoUser))
		case "gender":
			_ = out.SendMessage(ctx, demoUser, facade.HandleGender(ctx, demoUser, "demo", "Гость", arg))
		case "empathy":
			_ = out.SendMessage(ctx, demoUser, facade.HandleEmpathy(ctx, demoUser, arg))
		default:
			_ = out.SendMessage(ctx, demoUser, facade.HandleHelp()+"\n/select <id>, /quit")
		}
	}
}
