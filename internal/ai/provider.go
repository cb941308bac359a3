// Package ai is the provider gateway: one contract over heterogeneous LLM
// vendor protocols, with one adapter per vendor behind a name-keyed registry.
package ai

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of conversation history in the neutral shape shared by
// all adapters. Adapters translate it to their vendor-native request bodies.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DefaultTemperature is applied when Options.Temperature is zero.
const DefaultTemperature = 0.7

type Options struct {
	Temperature float64
	MaxTokens   int
	// Stream is only honored by adapters implementing StreamingProvider.
	Stream bool
}

func (o Options) temperature() float64 {
	if o.Temperature == 0 {
		return DefaultTemperature
	}
	return o.Temperature
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	Content string
	Model   string
	Usage   Usage
}

type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Provider interface {
	// SendMessage runs one batch completion over the full history.
	// History must be non-empty; roles are user, assistant or system.
	SendMessage(ctx context.Context, history []Message, opts Options) (*Response, error)
	// TestConnection issues a minimal low-cost request to validate the
	// credential without consuming the conversational budget.
	TestConnection(ctx context.Context) TestResult
}

// StreamingProvider is an optional interface. Adapters may implement
// streaming chat; callers detect the capability by type assertion.
type StreamingProvider interface {
	StreamMessage(ctx context.Context, history []Message, opts Options) (*Stream, error)
}
