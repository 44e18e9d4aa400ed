package repository

import (
	"context"

	"odanna-bot/internal/domain/model"
)

// -----------------------------
// Chat Sessions
// -----------------------------

type ChatSessionRepository interface {
	Create(ctx context.Context, qx any, s *model.ChatSession) error
	// FindByID returns soft-deleted sessions too; callers check Active.
	FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error)
	Rename(ctx context.Context, qx any, id, title string) error
	SoftDelete(ctx context.Context, qx any, id string) error
	// ListByUser returns active sessions only, newest first.
	ListByUser(ctx context.Context, qx any, userID int64) ([]*model.ChatSession, error)
	// SetEmpathyOverride pins the empathy level; nil restores the computed one.
	SetEmpathyOverride(ctx context.Context, qx any, id string, level *int) error
	SetSummary(ctx context.Context, qx any, id, summary string) error
}

// -----------------------------
// Messages
// -----------------------------

type MessageRepository interface {
	// Append stores m and assigns its ID (when empty), Seq and CreatedAt.
	// For a user message the owning session's message_count is advanced from
	// expectedCount to expectedCount+1 and its empathy set to
	// m.Snapshot.Empathy in the same transaction; a count mismatch yields
	// domain.ErrConflict and nothing is written. expectedCount is ignored
	// for assistant messages.
	Append(ctx context.Context, qx any, m *model.Message, expectedCount int64) error
	// Recent returns the trailing window of at most limit messages, oldest first.
	Recent(ctx context.Context, qx any, chatID string, limit int, includeIgnored bool) ([]model.Message, error)
	// All returns the full chronological log.
	All(ctx context.Context, qx any, chatID string, includeIgnored bool) ([]model.Message, error)
	MarkIgnored(ctx context.Context, qx any, messageID string) error
	UnmarkIgnored(ctx context.Context, qx any, messageID string) error
	// FindByDedupKey returns the user message stored under key, or domain.ErrNotFound.
	FindByDedupKey(ctx context.Context, qx any, chatID, key string) (*model.Message, error)
	// ReplyAfter returns the first assistant message with Seq greater than seq.
	ReplyAfter(ctx context.Context, qx any, chatID string, seq int64) (*model.Message, error)
	// SaveReceipt stores r.Reply under (r.ChatID, r.DedupKey); an existing
	// key yields domain.ErrDuplicate.
	SaveReceipt(ctx context.Context, qx any, r *model.Receipt) error
	// FindReceipt returns the receipt stored under key, or domain.ErrNotFound.
	FindReceipt(ctx context.Context, qx any, chatID, key string) (*model.Receipt, error)
}
