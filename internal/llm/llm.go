// Package llm defines the boundary between task handlers and the
// language-model endpoint. Handlers depend only on the Client interface;
// the OpenAI-compatible implementation lives under internal/platform.
package llm

import "context"

// Request describes one completion call.
type Request struct {
	// Prompt is the user-role message sent to the model.
	Prompt string

	// SystemPrompt, when set, is sent as the system-role message.
	SystemPrompt string

	// Model overrides the configured default model when non-empty.
	Model string

	// Temperature is the sampling temperature. Nil means the
	// configured default.
	Temperature *float32

	// MaxTokens bounds the completion length. Zero means the
	// configured default.
	MaxTokens int
}

// Client produces completions from an LLM endpoint.
type Client interface {
	// Complete sends the request and returns the model's text output.
	// Failures are classified task errors: rate limits and transport
	// faults are transient, rejected requests are permanent.
	Complete(ctx context.Context, req Request) (string, error)
}
