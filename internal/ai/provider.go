// Package ai talks to chat-completion backends and turns their replies into
// the structured results the concierge needs.
package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider returns the assistant reply for a conversation.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// JSONProvider is an optional interface for providers that can force the
// reply to be a single JSON object.
type JSONProvider interface {
	ChatJSON(ctx context.Context, messages []Message) (string, error)
}

// chatJSON prefers the provider's JSON mode when it has one.
func chatJSON(ctx context.Context, p Provider, messages []Message) (string, error) {
	if jp, ok := p.(JSONProvider); ok {
		return jp.ChatJSON(ctx, messages)
	}
	return p.Chat(ctx, messages)
}
