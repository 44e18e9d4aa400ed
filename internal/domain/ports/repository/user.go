package repository

import (
	"context"

	"odanna-bot/internal/domain/model"
)

type UserRepository interface {
	// Upsert creates the user or refreshes username, first name and activity.
	// Gender and the current chat pointer of an existing user are preserved.
	Upsert(ctx context.Context, qx any, u *model.User) error
	FindByID(ctx context.Context, qx any, id int64) (*model.User, error)
	// SetCurrentChat moves the pointer; an empty chatID clears it.
	SetCurrentChat(ctx context.Context, qx any, userID int64, chatID string) error
	SetGender(ctx context.Context, qx any, userID int64, g model.Gender) error
}
