package application

import (
	"context"

	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/usecase"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----
// These describe the minimal surface that the facade needs. Using interfaces
// enables tests to pass in light-weight mocks.
type UserUseCaseIface interface {
	RegisterOrFetch(ctx context.Context, tgID int64, username, firstName string) (*model.User, error)
	SetGender(ctx context.Context, tgID int64, g model.Gender) (*model.User, error)
}

type ChatUseCaseIface interface {
	HandleIncoming(ctx context.Context, in usecase.Incoming) (*usecase.Reply, error)
	StartChat(ctx context.Context, userID int64, title, scenario string) (*model.ChatSession, error)
	CurrentChat(ctx context.Context, userID int64) (*model.ChatSession, error)
	ListChats(ctx context.Context, userID int64) ([]*model.ChatSession, error)
	SelectChat(ctx context.Context, userID int64, chatID string) (*model.ChatSession, error)
	RenameChat(ctx context.Context, userID int64, chatID, title string) (*model.ChatSession, error)
	DeleteChat(ctx context.Context, userID int64, chatID string) error
	History(ctx context.Context, userID int64, chatID string, limit int, includeIgnored bool) ([]model.Message, error)
	Summary(ctx context.Context, userID int64, chatID string) (string, error)
	SetEmpathyOverride(ctx context.Context, userID int64, chatID string, level *int) (*model.ChatSession, error)
	Welcome() string
}
