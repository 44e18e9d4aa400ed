package model

import (
	"strings"
	"time"
)

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// ParseGender accepts english and russian spellings; anything else is unknown.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "м", "муж", "мужской", "мужчина":
		return GenderMale
	case "female", "f", "ж", "жен", "женский", "женщина":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// User is a telegram user known to the bot. CurrentChatID is the chat new
// messages are routed to; empty means the next message opens a new chat.
type User struct {
	ID            int64 // telegram user id
	Username      string
	FirstName     string
	Gender        Gender
	CurrentChatID string
	CreatedAt     time.Time
	LastActiveAt  time.Time
}

func NewUser(id int64, username, firstName string) *User {
	now := time.Now()
	return &User{
		ID:           id,
		Username:     username,
		FirstName:    firstName,
		Gender:       GenderUnknown,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}
