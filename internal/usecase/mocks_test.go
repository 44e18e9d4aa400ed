// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/domain/ports/adapter"
	"odanna-bot/internal/domain/ports/repository"
	"odanna-bot/internal/engine"
	"odanna-bot/internal/infra/local"
	"odanna-bot/internal/infra/logging"
	"odanna-bot/internal/infra/worker"
	"odanna-bot/internal/persona"
)

// memStore is one in-memory database shared by the fake repositories.
// WithTx snapshots it and restores the snapshot when fn fails.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]model.User
	sessions map[string]model.ChatSession
	messages map[string][]model.Message
	receipts map[string]model.Receipt // chatID + "|" + key
	seq      int

	appendErr error // returned by the next Append of an assistant message
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]model.User),
		sessions: make(map[string]model.ChatSession),
		messages: make(map[string][]model.Message),
		receipts: make(map[string]model.Receipt),
	}
}

type memSnapshot struct {
	users    map[int64]model.User
	sessions map[string]model.ChatSession
	messages map[string][]model.Message
	receipts map[string]model.Receipt
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		users:    make(map[int64]model.User, len(s.users)),
		sessions: make(map[string]model.ChatSession, len(s.sessions)),
		messages: make(map[string][]model.Message, len(s.messages)),
		receipts: make(map[string]model.Receipt, len(s.receipts)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.sessions {
		snap.sessions[k] = v
	}
	for k, v := range s.messages {
		snap.messages[k] = append([]model.Message(nil), v...)
	}
	for k, v := range s.receipts {
		snap.receipts[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.sessions, s.messages, s.receipts = snap.users, snap.sessions, snap.messages, snap.receipts
}

// --- transaction manager ---

type memTxManager struct{ store *memStore }

func (m memTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	snap := m.store.snapshot()
	if err := fn(ctx, struct{}{}); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// --- users ---

type memUserRepo struct{ *memStore }

func (r memUserRepo) Upsert(_ context.Context, _ any, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.users[u.ID]; ok {
		old.Username, old.FirstName, old.LastActiveAt = u.Username, u.FirstName, u.LastActiveAt
		r.users[u.ID] = old
		return nil
	}
	r.users[u.ID] = *u
	return nil
}

func (r memUserRepo) FindByID(_ context.Context, _ any, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r memUserRepo) SetCurrentChat(_ context.Context, _ any, userID int64, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.CurrentChatID = chatID
	r.users[userID] = u
	return nil
}

func (r memUserRepo) SetGender(_ context.Context, _ any, userID int64, g model.Gender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Gender = g
	r.users[userID] = u
	return nil
}

// --- sessions ---

type memSessionRepo struct{ *memStore }

func (r memSessionRepo) Create(_ context.Context, _ any, s *model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.seq++
	cp := *s
	// keep creation order stable for ListByUser
	cp.CreatedAt = cp.CreatedAt.Add(time.Duration(r.seq) * time.Millisecond)
	r.sessions[s.ID] = cp
	return nil
}

func (r memSessionRepo) FindByID(_ context.Context, _ any, id string) (*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r memSessionRepo) update(id string, fn func(s *model.ChatSession)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.Active {
		return domain.ErrNotFound
	}
	fn(&s)
	r.sessions[id] = s
	return nil
}

func (r memSessionRepo) Rename(_ context.Context, _ any, id, title string) error {
	return r.update(id, func(s *model.ChatSession) { s.Title = title })
}

func (r memSessionRepo) SoftDelete(_ context.Context, _ any, id string) error {
	return r.update(id, func(s *model.ChatSession) { s.Active = false })
}

func (r memSessionRepo) ListByUser(_ context.Context, _ any, userID int64) ([]*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ChatSession
	for _, s := range r.sessions {
		if s.UserID == userID && s.Active {
			cp := s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memSessionRepo) SetEmpathyOverride(_ context.Context, _ any, id string, level *int) error {
	return r.update(id, func(s *model.ChatSession) { s.EmpathyOverride = level })
}

func (r memSessionRepo) SetSummary(_ context.Context, _ any, id, summary string) error {
	return r.update(id, func(s *model.ChatSession) { s.Summary = summary })
}

// --- messages ---

type memMessageRepo struct{ *memStore }

func (r memMessageRepo) Append(_ context.Context, _ any, m *model.Message, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[m.ChatID]
	if !ok {
		return domain.ErrNotFound
	}
	if !s.Active {
		return domain.ErrChatInactive
	}
	if m.Role == model.RoleAssistant && r.appendErr != nil {
		err := r.appendErr
		r.appendErr = nil
		return err
	}
	if m.FromUser() {
		if s.MessageCount != expected {
			return domain.ErrConflict
		}
		if m.DedupKey != "" {
			for _, old := range r.messages[m.ChatID] {
				if old.DedupKey == m.DedupKey {
					return domain.ErrDuplicate
				}
			}
		}
	}
	r.seq++
	if m.ID == "" {
		m.ID = fmt.Sprintf("m%04d", r.seq)
	}
	m.Seq = s.LastSeq + 1
	m.CreatedAt = time.Now().UTC()
	s.LastSeq = m.Seq
	if m.FromUser() {
		s.MessageCount++
		s.Empathy = m.Snapshot.Empathy
	}
	r.sessions[m.ChatID] = s
	r.messages[m.ChatID] = append(r.messages[m.ChatID], *m)
	return nil
}

func (r memMessageRepo) filtered(chatID string, includeIgnored bool) []model.Message {
	var out []model.Message
	for _, m := range r.messages[chatID] {
		if includeIgnored || !m.Ignored {
			out = append(out, m)
		}
	}
	return out
}

func (r memMessageRepo) Recent(_ context.Context, _ any, chatID string, limit int, includeIgnored bool) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.Tail(r.filtered(chatID, includeIgnored), limit), nil
}

func (r memMessageRepo) All(_ context.Context, _ any, chatID string, includeIgnored bool) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filtered(chatID, includeIgnored), nil
}

func (r memMessageRepo) setIgnored(id string, v bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for chatID, msgs := range r.messages {
		for i := range msgs {
			if msgs[i].ID == id {
				r.messages[chatID][i].Ignored = v
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (r memMessageRepo) MarkIgnored(_ context.Context, _ any, id string) error {
	return r.setIgnored(id, true)
}

func (r memMessageRepo) UnmarkIgnored(_ context.Context, _ any, id string) error {
	return r.setIgnored(id, false)
}

func (r memMessageRepo) FindByDedupKey(_ context.Context, _ any, chatID, key string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages[chatID] {
		if key != "" && m.DedupKey == key {
			return &m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memMessageRepo) ReplyAfter(_ context.Context, _ any, chatID string, seq int64) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages[chatID] {
		if m.Seq > seq && m.Role == model.RoleAssistant {
			return &m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memMessageRepo) SaveReceipt(_ context.Context, _ any, rc *model.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := rc.ChatID + "|" + rc.DedupKey
	if _, ok := r.receipts[k]; ok {
		return domain.ErrDuplicate
	}
	rc.CreatedAt = time.Now().UTC()
	r.receipts[k] = *rc
	return nil
}

func (r memMessageRepo) FindReceipt(_ context.Context, _ any, chatID, key string) (*model.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.receipts[chatID+"|"+key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rc, nil
}

// cachedSessions serves reads without a transaction from a frozen copy, the
// way a read-through cache does after a stale fill.
// With inTx set the stale copy also answers transactional reads, which is
// what a concurrent writer looks like to the conversation use case.
type cachedSessions struct {
	memSessionRepo
	inTx    bool
	mu      sync.Mutex
	stale   map[string]model.ChatSession
	evicted []string
}

func (c *cachedSessions) FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error) {
	c.mu.Lock()
	s, ok := c.stale[id]
	c.mu.Unlock()
	if ok && (qx == nil || c.inTx) {
		return &s, nil
	}
	return c.memSessionRepo.FindByID(ctx, qx, id)
}

func (c *cachedSessions) Evict(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stale, id)
	c.evicted = append(c.evicted, id)
}

// blockingBudget stands in for a token counter that is still loading.
type blockingBudget struct{ release chan struct{} }

func (b blockingBudget) Trim(msgs []adapter.Message) []adapter.Message {
	<-b.release
	return msgs
}

// --- adapters ---

type fakeAI struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	calls [][]adapter.Message
}

func (f *fakeAI) Name() string { return "fake" }

func (f *fakeAI) Chat(ctx context.Context, _ string, msgs []adapter.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

type panicAI struct{}

func (panicAI) Name() string { return "panic" }
func (panicAI) Chat(context.Context, string, []adapter.Message) (string, error) {
	panic("provider exploded")
}

// syncSubmitter runs tasks inline so tests observe their effect.
type syncSubmitter struct {
	mu   sync.Mutex
	runs int
}

func (s *syncSubmitter) Submit(task worker.Task) error {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	return task.Run(context.Background())
}

type fixedRand struct{}

func (fixedRand) Intn(int) int     { return 0 }
func (fixedRand) Float64() float64 { return 0.99 }

var errBoom = errors.New("boom")

// --- fixtures ---

type fixture struct {
	store *memStore
	uc    *chatUC
	users *userUC
}

func newFixture(deps ChatDeps, opts ChatOptions) *fixture {
	store := newMemStore()
	deps.Users = memUserRepo{store}
	deps.Sessions = memSessionRepo{store}
	deps.Messages = memMessageRepo{store}
	deps.TM = memTxManager{store}
	if deps.Locker == nil {
		deps.Locker = local.NewKeyedMutex(time.Second)
	}
	log := newTestLogger()
	return &fixture{
		store: store,
		uc:    NewChatUseCase(engine.Static(persona.Default()), deps, opts, fixedRand{}, log),
		users: NewUserUseCase(deps.Users, deps.TM, log),
	}
}

func newTestLogger() *zerolog.Logger { return logging.Nop() }
