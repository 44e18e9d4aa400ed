package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

const (
	// MaxScenarioRunes bounds the free-form premise a user may attach to a chat.
	MaxScenarioRunes = 500
	// MaxTitleRunes bounds chat titles.
	MaxTitleRunes = 100
)

// Message is one entry of a chat's append-only history.
// Seq is the per-chat total order; the user message of an exchange always
// precedes its reply.
type Message struct {
	ID        string
	ChatID    string
	Seq       int64
	Role      Role
	Text      string
	Ignored   bool
	Snapshot  Classification
	DedupKey  string
	CreatedAt time.Time
}

// FromUser reports whether the message was written by the user.
func (m Message) FromUser() bool { return m.Role == RoleUser }

// Receipt remembers the answer to a delivery that left no message in the
// log (forget and recall commands), keyed like Message.DedupKey.
type Receipt struct {
	ChatID    string
	DedupKey  string
	Kind      string
	Reply     string
	CreatedAt time.Time
}

// ChatSession is the aggregate root for one role-play conversation.
type ChatSession struct {
	ID       string
	UserID   int64
	Title    string
	Scenario string // empty means no premise

	Empathy         int
	EmpathyOverride *int
	MessageCount    int64 // user messages ever appended, never decremented
	LastSeq         int64

	Summary   string
	Active    bool // false once soft-deleted
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewChatSession builds a fresh, active session. Title falls back to a
// scenario-derived or timestamped one when empty.
func NewChatSession(id string, userID int64, title, scenario string, initialEmpathy int, now time.Time) *ChatSession {
	scenario = strings.TrimSpace(scenario)
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(scenario, now)
	}
	return &ChatSession{
		ID:        id,
		UserID:    userID,
		Title:     Truncate(title, MaxTitleRunes),
		Scenario:  scenario,
		Empathy:   initialEmpathy,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DefaultTitle mirrors the titles the bot has always generated.
func DefaultTitle(scenario string, now time.Time) string {
	if scenario == "" {
		return "Авточат от " + now.Format("02.01.2006 15:04")
	}
	if utf8.RuneCountInString(scenario) > 30 {
		return "Чат: " + string([]rune(scenario)[:30]) + "..."
	}
	return "Чат: " + scenario
}

// HasScenario reports whether a premise is attached.
func (s *ChatSession) HasScenario() bool { return strings.TrimSpace(s.Scenario) != "" }

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Visible filters out ignored messages, preserving order.
func Visible(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Ignored {
			out = append(out, m)
		}
	}
	return out
}

// Tail returns the last n messages (all when n <= 0).
func Tail(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
