package llm

import "errors"

// Common errors returned by LLM clients.
var (
	// ErrInvalidConfig is returned when the client configuration is
	// incomplete or inconsistent.
	ErrInvalidConfig = errors.New("invalid llm client configuration")

	// ErrEmptyPrompt is returned when a completion is requested for an
	// empty prompt.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrEmptyCompletion is returned when the endpoint answers without
	// any usable content.
	ErrEmptyCompletion = errors.New("empty completion from language model")
)
