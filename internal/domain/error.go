package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Conversation errors
	ErrChatInactive = errors.New("chat session is not active")
	ErrNotOwner     = errors.New("chat session belongs to another user")
	ErrConflict     = errors.New("concurrent update of chat session")
	ErrStorage      = errors.New("storage failure")
	ErrLocked       = errors.New("chat is busy")
	ErrDuplicate    = errors.New("message already processed")
)
