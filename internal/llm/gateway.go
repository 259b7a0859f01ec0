// Package llm defines the text-generation backend used by the triage client.
package llm

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Gateway sends a chat conversation to a model and returns the raw reply text.
// Implementations must not retry; retry policy belongs to the caller.
type Gateway interface {
	Chat(ctx context.Context, model string, messages []Message, temperature float64) (string, error)
}
