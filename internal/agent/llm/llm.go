// Package llm abstracts the chat-completion provider behind the assistant.
package llm

import "context"

// Message roles understood by chat-completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    string
	Content string
}

// Provider sends a conversation to a model and returns the full response.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
