package adapter

import "context"

// Message represents a chat message sent to a generative model.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// AIServiceAdapter is the port for the optional generative reply mode.
// Implementations must honour ctx cancellation.
type AIServiceAdapter interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Chat returns only the assistant text.
	Chat(ctx context.Context, model string, messages []Message) (string, error)
}
