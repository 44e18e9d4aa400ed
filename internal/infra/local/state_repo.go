package local

import (
	"context"
	"sync"
	"time"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo keeps pending dialog state in memory with the same 15 minute
// expiry as the Redis implementation.
type StateRepo struct {
	mu    sync.Mutex
	items map[int64]repository.ConversationState
	ttl   time.Duration
	now   func() time.Time
}

func NewStateRepo() *StateRepo {
	return &StateRepo{items: make(map[int64]repository.ConversationState), ttl: 15 * time.Minute, now: time.Now}
}

func (s *StateRepo) SetState(_ context.Context, tgID int64, state *repository.ConversationState) error {
	if state == nil {
		return domain.ErrInvalidArgument
	}
	st := *state
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.items[tgID] = st
	s.mu.Unlock()
	return nil
}

func (s *StateRepo) GetState(_ context.Context, tgID int64) (*repository.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.items[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.now().Sub(st.CreatedAt) > s.ttl {
		delete(s.items, tgID)
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

func (s *StateRepo) ClearState(_ context.Context, tgID int64) error {
	s.mu.Lock()
	delete(s.items, tgID)
	s.mu.Unlock()
	return nil
}
