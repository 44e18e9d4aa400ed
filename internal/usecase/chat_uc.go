// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/adapter"
	"odanna-bot/internal/domain/ports/repository"
	"odanna-bot/internal/engine"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/infra/metrics"
	"odanna-bot/internal/infra/worker"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	// HandleIncoming runs one utterance through forget/recall, classification,
	// empathy and reply selection, and persists the exchange atomically.
	HandleIncoming(ctx context.Context, in Incoming) (*Reply, error)

	StartChat(ctx context.Context, userID int64, title, scenario string) (*model.ChatSession, error)
	CurrentChat(ctx context.Context, userID int64) (*model.ChatSession, error)
	ListChats(ctx context.Context, userID int64) ([]*model.ChatSession, error)
	SelectChat(ctx context.Context, userID int64, chatID string) (*model.ChatSession, error)
	RenameChat(ctx context.Context, userID int64, chatID, title string) (*model.ChatSession, error)
	DeleteChat(ctx context.Context, userID int64, chatID string) error
	// History returns the trailing limit messages of a chat (all when limit <= 0).
	// An empty chatID means the current chat.
	History(ctx context.Context, userID int64, chatID string, limit int, includeIgnored bool) ([]model.Message, error)
	Summary(ctx context.Context, userID int64, chatID string) (string, error)
	// SetEmpathyOverride pins the level of a chat; nil returns it to the computed score.
	SetEmpathyOverride(ctx context.Context, userID int64, chatID string, level *int) (*model.ChatSession, error)

	// AuditMessages is the admin view of a chat log; no ownership check.
	AuditMessages(ctx context.Context, chatID string, includeIgnored bool) ([]model.Message, error)

	// Welcome is the persona greeting shown on /start.
	Welcome() string
}

// Incoming is one user utterance as delivered by a transport.
type Incoming struct {
	UserID   int64
	ChatID   string       // empty routes to the current chat, creating one when needed
	Text     string       // pre-validated by the transport
	Gender   model.Gender // hint; empty or unknown falls back to the stored gender
	DedupKey string       // transport delivery id; a repeat returns the stored reply
}

type ReplyKind string

const (
	ReplyNormal    ReplyKind = "reply"
	ReplyForget    ReplyKind = "forget"
	ReplyRecall    ReplyKind = "recall"
	ReplyDuplicate ReplyKind = "duplicate"
)

type Reply struct {
	ChatID         string
	Text           string
	Kind           ReplyKind
	Classification model.Classification
	Empathy        int
	NewChat        bool // the utterance opened an implicit chat
	Generated      bool // text came from the generative model
}

// PromptBudget trims a generative prompt to the model's token budget.
type PromptBudget interface {
	Trim(msgs []adapter.Message) []adapter.Message
}

// TaskSubmitter queues background work; *worker.Pool satisfies it.
type TaskSubmitter interface {
	Submit(task worker.Task) error
}

// sessionEvicter is implemented by caching session repositories.
type sessionEvicter interface {
	Evict(ctx context.Context, id string)
}

type ChatDeps struct {
	Users    repository.UserRepository
	Sessions repository.ChatSessionRepository
	Messages repository.MessageRepository
	TM       repository.TransactionManager
	Locker   adapter.Locker

	AI        adapter.AIServiceAdapter // nil keeps replies deterministic
	Budget    PromptBudget             // optional
	Summaries TaskSubmitter            // optional; nil disables background summaries
}

type ChatOptions struct {
	HistoryWindow   int
	SummaryInterval int
	LockTTL         time.Duration
	AIModel         string
	AITimeout       time.Duration
	Dev             bool // log message text unredacted
}

type chatUC struct {
	users    repository.UserRepository
	sessions repository.ChatSessionRepository
	messages repository.MessageRepository
	tm       repository.TransactionManager
	locker   adapter.Locker

	ai        adapter.AIServiceAdapter
	budget    PromptBudget
	summaries TaskSubmitter

	classifier *engine.Classifier
	empathy    *engine.EmpathyTracker
	selector   *engine.Selector
	forgetter  *engine.Forgetter
	summarizer *engine.Summarizer
	prompt     *engine.PromptBuilder

	opts ChatOptions
	log  *zerolog.Logger
	now  func() time.Time
}

func NewChatUseCase(src engine.Source, deps ChatDeps, opts ChatOptions, rnd engine.RandomSource, logger *zerolog.Logger) *chatUC {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.AITimeout <= 0 {
		opts.AITimeout = 15 * time.Second
	}
	return &chatUC{
		users:      deps.Users,
		sessions:   deps.Sessions,
		messages:   deps.Messages,
		tm:         deps.TM,
		locker:     deps.Locker,
		ai:         deps.AI,
		budget:     deps.Budget,
		summaries:  deps.Summaries,
		classifier: engine.NewClassifier(src),
		empathy:    engine.NewEmpathyTracker(src),
		selector:   engine.NewSelector(src, rnd),
		forgetter:  engine.NewForgetter(src),
		summarizer: engine.NewSummarizer(src),
		prompt:     engine.NewPromptBuilder(src),
		opts:       opts,
		log:        logger,
		now:        time.Now,
	}
}

func (c *chatUC) HandleIncoming(ctx context.Context, in Incoming) (*Reply, error) {
	defer logging.TraceDuration(c.log, "ChatUC.HandleIncoming")()

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, domain.ErrInvalidArgument
	}
	user, err := c.ensureUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	session, created, err := c.resolveChat(ctx, user, in.ChatID)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithChatID(logging.WithUserID(ctx, user.ID), session.ID)
	log := logging.With(ctx, c.log)

	unlock, err := c.lock(ctx, "chat:"+session.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// re-read under the lock; the pre-lock copy may be stale or cached
	session, err = c.freshSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, domain.ErrChatInactive
	}

	if in.DedupKey != "" {
		if r, err := c.replayDelivery(ctx, session.ID, in.DedupKey); err == nil {
			log.Info().Str("dedup_key", in.DedupKey).Msg("duplicate delivery, returning stored reply")
			return r, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	all, err := c.messages.All(ctx, repository.NoTX, session.ID, true)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %w", domain.ErrStorage, err)
	}

	if d, ok := c.forgetter.TryForget(text, all); ok {
		if err := c.applyDecision(ctx, session.ID, in.DedupKey, ReplyForget, d); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return c.replayDelivery(ctx, session.ID, in.DedupKey)
			}
			return nil, err
		}
		metrics.IncForget(forgetOutcome(d))
		log.Info().Int("marked", len(d.Mark)).Msg("forget command")
		return &Reply{ChatID: session.ID, Text: d.Reply, Kind: ReplyForget, Empathy: session.Empathy, NewChat: created}, nil
	}
	if d, ok := c.forgetter.TryRecall(text, all); ok {
		if err := c.applyDecision(ctx, session.ID, in.DedupKey, ReplyRecall, d); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return c.replayDelivery(ctx, session.ID, in.DedupKey)
			}
			return nil, err
		}
		metrics.IncForget("recalled")
		log.Info().Int("unmarked", len(d.Unmark)).Msg("forgotten message repeated")
		return &Reply{ChatID: session.ID, Text: d.Reply, Kind: ReplyRecall, Empathy: session.Empathy, NewChat: created}, nil
	}

	gender := user.Gender
	if in.Gender != "" && in.Gender != model.GenderUnknown {
		gender = in.Gender
	}

	cls := c.classifier.Classify(text)
	count := session.MessageCount + 1
	if session.EmpathyOverride != nil {
		cls.Empathy = c.empathy.Override(*session.EmpathyOverride)
	} else {
		cls.Empathy = c.empathy.Next(cls, count, gender)
	}

	history := model.Tail(model.Visible(all), c.opts.HistoryWindow)
	replyText := c.selector.Select(history, cls, cls.Empathy, session.Scenario, gender)
	generated := false
	if c.ai != nil {
		replyText, generated = c.generate(ctx, log, history, text, cls, session.Scenario, replyText)
	}

	userMsg := &model.Message{ChatID: session.ID, Role: model.RoleUser, Text: text, Snapshot: cls, DedupKey: in.DedupKey}
	botMsg := &model.Message{ChatID: session.ID, Role: model.RoleAssistant, Text: replyText, Snapshot: cls}
	err = c.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := c.messages.Append(ctx, tx, userMsg, session.MessageCount); err != nil {
			return err
		}
		return c.messages.Append(ctx, tx, botMsg, session.MessageCount)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return c.replayDelivery(ctx, session.ID, in.DedupKey)
		}
		if errors.Is(err, domain.ErrConflict) {
			// whoever cached the session did so with an older count
			c.evict(ctx, session.ID)
		}
		log.Error().Err(err).Msg("failed to persist exchange")
		return nil, fmt.Errorf("%w: append exchange: %w", domain.ErrStorage, err)
	}
	c.evict(ctx, session.ID)

	metrics.IncMessageHandled(string(cls.Category), string(cls.Emotion))
	metrics.ObserveEmpathy(cls.Empathy)
	log.Debug().
		Str("text", logging.Redact(text, c.opts.Dev)).
		Str("category", string(cls.Category)).
		Str("emotion", string(cls.Emotion)).
		Int("empathy", cls.Empathy).
		Int64("count", count).
		Bool("generated", generated).
		Msg("message handled")

	c.maybeScheduleSummary(ctx, session.ID, count)

	return &Reply{
		ChatID:         session.ID,
		Text:           replyText,
		Kind:           ReplyNormal,
		Classification: cls,
		Empathy:        cls.Empathy,
		NewChat:        created,
		Generated:      generated,
	}, nil
}

// generate tries the model path once. Any failure, timeout, panic or empty
// output yields fallback.
func (c *chatUC) generate(ctx context.Context, log *zerolog.Logger, history []model.Message, text string, cls model.Classification, scenario, fallback string) (reply string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncAIFallback("error")
			log.Error().Interface("panic", r).Msg("generative provider panicked")
			reply, ok = fallback, false
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, c.opts.AITimeout)
	defer cancel()

	msgs := c.prompt.Build(history, text, cls, cls.Empathy, scenario)
	if c.budget != nil {
		trimmed, err := c.trim(tctx, msgs)
		if err != nil {
			metrics.IncAIFallback("timeout")
			log.Warn().Err(err).Msg("prompt trimming did not finish in time, using deterministic reply")
			return fallback, false
		}
		msgs = trimmed
	}

	out, err := c.ai.Chat(tctx, c.opts.AIModel, msgs)
	switch {
	case err != nil:
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.IncAIFallback(reason)
		log.Warn().Err(err).Str("provider", c.ai.Name()).Str("reason", reason).Msg("generative reply failed, using deterministic reply")
		return fallback, false
	case strings.TrimSpace(out) == "":
		metrics.IncAIFallback("empty")
		log.Warn().Str("provider", c.ai.Name()).Msg("generative reply empty, using deterministic reply")
		return fallback, false
	}
	return strings.TrimSpace(out), true
}

// trim runs the prompt budget under ctx. A budget that is still loading its
// encoder must not hold the reply past the model timeout.
func (c *chatUC) trim(ctx context.Context, msgs []adapter.Message) ([]adapter.Message, error) {
	done := make(chan []adapter.Message, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().Interface("panic", r).Msg("prompt budget panicked, sending untrimmed prompt")
				done <- msgs
			}
		}()
		done <- c.budget.Trim(msgs)
	}()
	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// freshSession reads the session through a transaction handle, which
// caching repositories pass straight to storage.
func (c *chatUC) freshSession(ctx context.Context, id string) (s *model.ChatSession, err error) {
	err = c.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		s, err = c.sessions.FindByID(ctx, tx, id)
		return err
	})
	return s, err
}

// replayDelivery answers a repeated delivery key from the stored exchange,
// or from the receipt of a forget or recall command.
func (c *chatUC) replayDelivery(ctx context.Context, chatID, key string) (*Reply, error) {
	r, err := c.replayDuplicate(ctx, chatID, key)
	if !errors.Is(err, domain.ErrNotFound) {
		return r, err
	}
	rc, err := c.messages.FindReceipt(ctx, repository.NoTX, chatID, key)
	if err != nil {
		return nil, err
	}
	return &Reply{ChatID: chatID, Text: rc.Reply, Kind: ReplyDuplicate}, nil
}

func (c *chatUC) replayDuplicate(ctx context.Context, chatID, key string) (*Reply, error) {
	orig, err := c.messages.FindByDedupKey(ctx, repository.NoTX, chatID, key)
	if err != nil {
		return nil, err
	}
	reply, err := c.messages.ReplyAfter(ctx, repository.NoTX, chatID, orig.Seq)
	if err != nil {
		return nil, fmt.Errorf("%w: reply of duplicate %s: %w", domain.ErrStorage, key, err)
	}
	return &Reply{
		ChatID:         chatID,
		Text:           reply.Text,
		Kind:           ReplyDuplicate,
		Classification: orig.Snapshot,
		Empathy:        orig.Snapshot.Empathy,
	}, nil
}

// applyDecision flips the ignored flags and, when the delivery carries a
// key, records the reply so a redelivery does not run the command again.
func (c *chatUC) applyDecision(ctx context.Context, chatID, key string, kind ReplyKind, d engine.Decision) error {
	if len(d.Mark) == 0 && len(d.Unmark) == 0 && key == "" {
		return nil
	}
	err := c.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for _, id := range d.Mark {
			if err := c.messages.MarkIgnored(ctx, tx, id); err != nil {
				return err
			}
		}
		for _, id := range d.Unmark {
			if err := c.messages.UnmarkIgnored(ctx, tx, id); err != nil {
				return err
			}
		}
		if key == "" {
			return nil
		}
		return c.messages.SaveReceipt(ctx, tx, &model.Receipt{ChatID: chatID, DedupKey: key, Kind: string(kind), Reply: d.Reply})
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: update ignored flags: %w", domain.ErrStorage, err)
	}
	return nil
}

func forgetOutcome(d engine.Decision) string {
	if len(d.Mark) > 0 {
		return "forgotten"
	}
	return "noop"
}

func (c *chatUC) maybeScheduleSummary(ctx context.Context, chatID string, count int64) {
	if c.summaries == nil || c.opts.SummaryInterval <= 0 || count%int64(c.opts.SummaryInterval) != 0 {
		return
	}
	err := c.summaries.Submit(worker.Task{
		Kind: "summary",
		Run: func(ctx context.Context) error {
			_, err := c.refreshSummary(ctx, chatID)
			return err
		},
	})
	if err != nil {
		logging.With(ctx, c.log).Warn().Err(err).Msg("summary refresh not queued")
	}
}

func (c *chatUC) refreshSummary(ctx context.Context, chatID string) (string, error) {
	msgs, err := c.messages.All(ctx, repository.NoTX, chatID, false)
	if err != nil {
		return "", err
	}
	summary := c.summarizer.Summarize(msgs)
	if err := c.sessions.SetSummary(ctx, repository.NoTX, chatID, summary); err != nil {
		return "", err
	}
	return summary, nil
}

func (c *chatUC) StartChat(ctx context.Context, userID int64, title, scenario string) (*model.ChatSession, error) {
	defer logging.TraceDuration(c.log, "ChatUC.StartChat")()

	scenario = strings.TrimSpace(scenario)
	if utf8.RuneCountInString(scenario) > model.MaxScenarioRunes {
		return nil, fmt.Errorf("%w: scenario longer than %d characters", domain.ErrInvalidArgument, model.MaxScenarioRunes)
	}
	if _, err := c.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	s := model.NewChatSession(uuid.NewString(), userID, title, scenario, c.empathy.Initial(), c.now())
	if err := c.createCurrent(ctx, s); err != nil {
		return nil, err
	}
	metrics.IncChatCreated("explicit")
	logging.With(logging.WithChatID(ctx, s.ID), c.log).Info().Int64("user_id", userID).Bool("scenario", s.HasScenario()).Msg("chat created")
	return s, nil
}

func (c *chatUC) CurrentChat(ctx context.Context, userID int64) (*model.ChatSession, error) {
	u, err := c.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if u.CurrentChatID == "" {
		return nil, domain.ErrNotFound
	}
	s, err := c.owned(ctx, userID, u.CurrentChatID)
	if errors.Is(err, domain.ErrChatInactive) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (c *chatUC) ListChats(ctx context.Context, userID int64) ([]*model.ChatSession, error) {
	defer logging.TraceDuration(c.log, "ChatUC.ListChats")()
	return c.sessions.ListByUser(ctx, repository.NoTX, userID)
}

func (c *chatUC) SelectChat(ctx context.Context, userID int64, chatID string) (*model.ChatSession, error) {
	s, err := c.owned(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if err := c.users.SetCurrentChat(ctx, repository.NoTX, userID, s.ID); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *chatUC) RenameChat(ctx context.Context, userID int64, chatID, title string) (*model.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrInvalidArgument
	}
	s, err := c.owned(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	s.Title = model.Truncate(title, model.MaxTitleRunes)
	if err := c.sessions.Rename(ctx, repository.NoTX, s.ID, s.Title); err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteChat soft-deletes the chat and clears the current pointer when it
// pointed at it. Messages stay for audit.
func (c *chatUC) DeleteChat(ctx context.Context, userID int64, chatID string) error {
	defer logging.TraceDuration(c.log, "ChatUC.DeleteChat")()

	s, err := c.owned(ctx, userID, chatID)
	if err != nil {
		return err
	}
	unlock, err := c.lock(ctx, "chat:"+s.ID)
	if err != nil {
		return err
	}
	defer unlock()

	err = c.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := c.sessions.SoftDelete(ctx, tx, s.ID); err != nil {
			return err
		}
		u, err := c.users.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if u.CurrentChatID == s.ID {
			return c.users.SetCurrentChat(ctx, tx, userID, "")
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.evict(ctx, s.ID)
	return nil
}

func (c *chatUC) History(ctx context.Context, userID int64, chatID string, limit int, includeIgnored bool) ([]model.Message, error) {
	s, err := c.chatOrCurrent(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		return c.messages.Recent(ctx, repository.NoTX, s.ID, limit, includeIgnored)
	}
	return c.messages.All(ctx, repository.NoTX, s.ID, includeIgnored)
}

func (c *chatUC) Summary(ctx context.Context, userID int64, chatID string) (string, error) {
	s, err := c.chatOrCurrent(ctx, userID, chatID)
	if err != nil {
		return "", err
	}
	return c.refreshSummary(ctx, s.ID)
}

func (c *chatUC) SetEmpathyOverride(ctx context.Context, userID int64, chatID string, level *int) (*model.ChatSession, error) {
	s, err := c.chatOrCurrent(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if level != nil {
		v := c.empathy.Override(*level)
		level = &v
	}
	if err := c.sessions.SetEmpathyOverride(ctx, repository.NoTX, s.ID, level); err != nil {
		return nil, err
	}
	s.EmpathyOverride = level
	logging.With(logging.WithChatID(ctx, s.ID), c.log).Info().Str("override", overrideString(level)).Msg("empathy override changed")
	return s, nil
}

func (c *chatUC) AuditMessages(ctx context.Context, chatID string, includeIgnored bool) ([]model.Message, error) {
	if _, err := c.sessions.FindByID(ctx, repository.NoTX, chatID); err != nil {
		return nil, err
	}
	return c.messages.All(ctx, repository.NoTX, chatID, includeIgnored)
}

func (c *chatUC) Welcome() string { return c.selector.Welcome() }

// --- helpers ---

func (c *chatUC) ensureUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := c.users.FindByID(ctx, repository.NoTX, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	u = model.NewUser(userID, "", "")
	if err := c.users.Upsert(ctx, repository.NoTX, u); err != nil {
		return nil, err
	}
	metrics.IncUsersRegistered()
	return u, nil
}

// resolveChat picks the chat an utterance belongs to. Without an explicit
// chat and without a usable current chat it opens an implicit one under a
// per-user lock, so two first messages cannot open two chats.
func (c *chatUC) resolveChat(ctx context.Context, user *model.User, chatID string) (*model.ChatSession, bool, error) {
	if chatID != "" {
		s, err := c.owned(ctx, user.ID, chatID)
		return s, false, err
	}
	if s, err := c.usableCurrent(ctx, user); s != nil || err != nil {
		return s, false, err
	}

	unlock, err := c.lock(ctx, "user:"+strconv.FormatInt(user.ID, 10))
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	fresh, err := c.users.FindByID(ctx, repository.NoTX, user.ID)
	if err != nil {
		return nil, false, err
	}
	if s, err := c.usableCurrent(ctx, fresh); s != nil || err != nil {
		return s, false, err
	}
	s := model.NewChatSession(uuid.NewString(), user.ID, "", "", c.empathy.Initial(), c.now())
	if err := c.createCurrent(ctx, s); err != nil {
		return nil, false, err
	}
	metrics.IncChatCreated("implicit")
	return s, true, nil
}

func (c *chatUC) usableCurrent(ctx context.Context, u *model.User) (*model.ChatSession, error) {
	if u.CurrentChatID == "" {
		return nil, nil
	}
	s, err := c.sessions.FindByID(ctx, repository.NoTX, u.CurrentChatID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	case !s.Active || s.UserID != u.ID:
		return nil, nil
	}
	return s, nil
}

func (c *chatUC) createCurrent(ctx context.Context, s *model.ChatSession) error {
	return c.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := c.sessions.Create(ctx, tx, s); err != nil {
			return err
		}
		return c.users.SetCurrentChat(ctx, tx, s.UserID, s.ID)
	})
}

func (c *chatUC) chatOrCurrent(ctx context.Context, userID int64, chatID string) (*model.ChatSession, error) {
	if chatID == "" {
		return c.CurrentChat(ctx, userID)
	}
	return c.owned(ctx, userID, chatID)
}

func (c *chatUC) owned(ctx context.Context, userID int64, chatID string) (*model.ChatSession, error) {
	s, err := c.sessions.FindByID(ctx, repository.NoTX, chatID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	if !s.Active {
		return nil, domain.ErrChatInactive
	}
	return s, nil
}

// lock takes the per-key lock and returns its release. Release runs on a
// context detached from cancellation so a cancelled request still unlocks.
func (c *chatUC) lock(ctx context.Context, key string) (func(), error) {
	token, err := c.locker.TryLock(ctx, key, c.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := c.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			logging.With(ctx, c.log).Warn().Err(err).Str("key", key).Msg("unlock failed")
		}
	}, nil
}

func (c *chatUC) evict(ctx context.Context, id string) {
	if ev, ok := c.sessions.(sessionEvicter); ok {
		ev.Evict(ctx, id)
	}
}

func overrideString(level *int) string {
	if level == nil {
		return "auto"
	}
	return strconv.Itoa(*level)
}
