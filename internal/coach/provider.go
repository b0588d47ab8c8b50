// Package coach is the lightweight chat-completion brain behind speech
// evaluation, writing revision, quiz generation and grading, review notes,
// and concept labeling. It composes an OpenAI provider with an optional
// Gemini fallback behind retry with exponential backoff.
package coach

import "context"

// Provider names used in metrics and error wrapping.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Request is a single chat-completion request.
type Request struct {
	System      string
	User        string
	MaxTokens   int64
	Temperature float64
}

// Provider executes chat completions against one backend.
type Provider interface {
	// Complete returns the raw text of the model's reply.
	Complete(ctx context.Context, req Request) (string, error)

	// Name returns the provider name for metrics and logs.
	Name() string
}
