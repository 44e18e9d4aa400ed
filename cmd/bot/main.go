package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"odanna-bot/internal/application"
	"odanna-bot/internal/config"
	"odanna-bot/internal/domain/ports/adapter"
	"odanna-bot/internal/domain/ports/repository"
	"odanna-bot/internal/engine"
	aiAdapters "odanna-bot/internal/infra/adapters/ai"
	tele "odanna-bot/internal/infra/adapters/telegram"
	pg "odanna-bot/internal/infra/db/postgres"
	"odanna-bot/internal/infra/db/sqlite"
	"odanna-bot/internal/infra/i18n"
	"odanna-bot/internal/infra/local"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/infra/metrics"
	red "odanna-bot/internal/infra/redis"
	"odanna-bot/internal/infra/scheduler"
	"odanna-bot/internal/infra/security"
	"odanna-bot/internal/infra/web"
	"odanna-bot/internal/infra/worker"
	"odanna-bot/internal/persona"
	"odanna-bot/internal/usecase"
)

// set via -ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		boot.Fatal().Err(err).Msg("flags")
	}
	cfg, err := config.Load(flags)
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("development mode: message text is logged unredacted")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Encryption ----
	encSvc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}
	if encSvc == nil {
		logger.Warn().Msg("security.encryption_key not set; message text is stored in clear")
	}

	// ---- Storage ----
	st, err := openStorage(ctx, cfg, encSvc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}
	defer st.close()

	// ---- Redis or in-process coordination ----
	var (
		locker      adapter.Locker
		rateLimiter adapter.RateLimiter
		state       repository.StateRepository
	)
	sessions := st.sessions
	if cfg.Redis.Enabled() {
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer client.Close()
		locker = local.NewLayeredLocker(local.NewKeyedMutex(cfg.Engine.LockTTL), red.NewLocker(client))
		rateLimiter = red.NewRateLimiter(client)
		state = red.NewStateRepo(client)
		sessions = red.NewChatCache(st.sessions, client, cfg.Redis.TTL)
		logger.Info().Msg("redis enabled: distributed locks, rate limit and session cache")
	} else {
		locker = local.NewKeyedMutex(cfg.Engine.LockTTL)
		rateLimiter = local.NewRateLimiter()
		state = local.NewStateRepo()
		logger.Info().Msg("redis disabled: single-instance mode")
	}

	// ---- Persona ----
	p := persona.Default()
	if cfg.Engine.PersonaPath != "" {
		if p, err = persona.Load(cfg.Engine.PersonaPath); err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Engine.PersonaPath).Msg("persona")
		}
	}
	personas := persona.NewStore(p, cfg.Engine.PersonaPath)
	var reloadPersona func() error
	if cfg.Engine.PersonaPath != "" {
		reloadPersona = personas.Reload
		if cfg.Engine.WatchPersona {
			go func() {
				if err := personas.Watch(ctx, logger); err != nil {
					logger.Error().Err(err).Msg("persona watcher stopped")
				}
			}()
		}
	}

	// ---- AI ----
	ai, budget, err := buildAI(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai")
	}

	// ---- Background work ----
	pool := worker.NewPool(cfg.Engine.SummaryWorkers, logger)
	pool.Start(ctx)
	sched := scheduler.NewScheduler(logger, st.jobs...)
	sched.Start(ctx)

	// ---- Use cases ----
	var rnd engine.RandomSource
	if cfg.Engine.RandomSeed != 0 {
		rnd = rand.New(rand.NewSource(cfg.Engine.RandomSeed))
	}
	deps := usecase.ChatDeps{
		Users:    st.users,
		Sessions: sessions,
		Messages: st.messages,
		TM:       st.tm,
		Locker:   locker,
		AI:       ai,
		Budget:   budget,
	}
	if cfg.Engine.SummaryInterval > 0 {
		deps.Summaries = pool
	}
	chatUC := usecase.NewChatUseCase(personas, deps, usecase.ChatOptions{
		HistoryWindow:   cfg.Engine.HistoryWindow,
		SummaryInterval: cfg.Engine.SummaryInterval,
		LockTTL:         cfg.Engine.LockTTL,
		AIModel:         cfg.AI.DefaultModel,
		AITimeout:       cfg.AI.Timeout,
		Dev:             cfg.Runtime.Dev,
	}, rnd, logger)
	userUC := usecase.NewUserUseCase(st.users, st.tm, logger)

	// ---- Facade ----
	translator, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	facade := application.NewBotFacade(userUC, chatUC, translator, cfg.Bot.MaxMessageRunes, logger)

	// ---- Admin HTTP ----
	var admin *web.Server
	if cfg.Admin.Port > 0 {
		admin = web.NewServer(chatUC, userUC, web.NewAuthManager(cfg.Security.AdminJWTSecret, 0), logger)
		go func() {
			if err := admin.Start(cfg.Admin.Port); err != nil {
				logger.Error().Err(err).Msg("admin server stopped")
			}
		}()
	}

	// ---- Telegram ----
	bot, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, facade, state, rateLimiter, translator, reloadPersona, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram")
	}
	if cfg.Bot.Mode != "polling" {
		logger.Warn().Str("mode", cfg.Bot.Mode).Msg("bot mode not implemented; falling back to polling")
	}
	logger.Info().Str("version", version).Str("db", cfg.Database.Driver).Bool("ai", ai != nil).Msg("odanna bot started")
	if err := bot.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("telegram polling stopped")
	}

	// ---- Graceful shutdown ----
	logger.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("admin server shutdown")
		}
	}
	sched.Stop()
	pool.Stop()
}

type storage struct {
	users    repository.UserRepository
	sessions repository.ChatSessionRepository
	messages repository.MessageRepository
	tm       repository.TransactionManager
	jobs     []scheduler.Job
	close    func()
}

func openStorage(ctx context.Context, cfg *config.Config, enc *security.EncryptionService, logger *zerolog.Logger) (*storage, error) {
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Msg("storage: postgres")
		return &storage{
			users:    pg.NewPostgresUserRepo(pool),
			sessions: pg.NewPostgresChatSessionRepo(pool),
			messages: pg.NewPostgresMessageRepo(pool, enc),
			tm:       pg.NewTxManager(pool),
			jobs: []scheduler.Job{{
				Name:     "db_pool_stats",
				Interval: 30 * time.Second,
				Run: func(context.Context) error {
					pg.ReportPoolStats(pool)
					return nil
				},
			}},
			close: pool.Close,
		}, nil
	default:
		store, err := sqlite.Open(cfg.Database.Path, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.Database.Path).Msg("storage: sqlite")
		return &storage{
			users:    sqlite.NewUserRepo(store),
			sessions: sqlite.NewChatSessionRepo(store),
			messages: sqlite.NewMessageRepo(store, enc),
			tm:       sqlite.NewTxManager(store),
			close: func() {
				if err := store.Close(); err != nil {
					logger.Warn().Err(err).Msg("close sqlite")
				}
			},
		}, nil
	}
}

// buildAI returns a nil adapter when generation is off, which keeps replies
// on the deterministic path. Dev mode without a provider uses the noop
// adapter so the fallback is exercised end to end.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, usecase.PromptBudget, error) {
	if !cfg.AI.Enabled {
		if cfg.Runtime.Dev {
			return aiAdapters.NewNoopAIAdapter(logger), nil, nil
		}
		return nil, nil, nil
	}
	byProvider := map[string]adapter.AIServiceAdapter{}
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.DefaultModel)
		if err != nil {
			return nil, nil, err
		}
		byProvider["openai"] = oa
	}
	if cfg.AI.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.DefaultModel, 512)
		if err != nil {
			return nil, nil, err
		}
		byProvider["gemini"] = gm
	}
	logger.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.DefaultModel).Int("providers", len(byProvider)).Msg("ai enabled")
	multi := aiAdapters.NewMultiAIAdapter(cfg.AI.Provider, byProvider, nil)

	budget := aiAdapters.NewTokenBudget(cfg.AI.DefaultModel, cfg.AI.MaxPromptTokens)
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := budget.Warm(wctx); err != nil {
		logger.Warn().Err(err).Msg("token encoder not loaded; prompt sizes are estimated until it is")
	}
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), budget, nil
}
