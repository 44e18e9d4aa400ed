package repository

import (
	"context"
	"time"
)

// PendingKind names the free-text answer a user owes the bot.
type PendingKind string

const (
	PendingScenario PendingKind = "scenario" // /newchat waits for a premise
	PendingRename   PendingKind = "rename"   // rename waits for a title
)

// ConversationState is the short-lived dialog state of one telegram user.
type ConversationState struct {
	Kind      PendingKind `json:"kind"`
	ChatID    string      `json:"chat_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// StateRepository keeps ConversationState between two updates.
// GetState returns domain.ErrNotFound when nothing is pending.
type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *ConversationState) error
	GetState(ctx context.Context, tgID int64) (*ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
}
