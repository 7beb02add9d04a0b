package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider returns one completion for an ordered list of role-tagged messages.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Options are the sampling parameters sent with every request.
type Options struct {
	MaxTokens   int
	Temperature float64
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1000
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		o.Temperature = 0.7
	}
	return o
}
