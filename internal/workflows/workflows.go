// Package workflows implements the built-in task kind handlers. Each
// handler decodes its payload, drives one or more completions against
// the LLM endpoint, and returns a JSON result. Payload problems are
// permanent failures; endpoint problems keep the classification the
// client assigned them.
package workflows

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/sokrates-llm/sokq/internal/config"
	"github.com/sokrates-llm/sokq/internal/executor"
	"github.com/sokrates-llm/sokq/internal/llm"
	"github.com/sokrates-llm/sokq/internal/task"
)

// Result is the common output shape persisted as a completed task's
// result.
type Result struct {
	Output string `json:"output"`
	Model  string `json:"model,omitempty"`
}

// base carries the dependencies shared by all handlers.
type base struct {
	client   llm.Client
	cfg      config.LLMConfig
	logger   *slog.Logger
	validate *validator.Validate
}

// Register binds all built-in handlers to their kinds.
func Register(registry *executor.Registry, client llm.Client, cfg config.LLMConfig, logger *slog.Logger) {
	b := base{
		client:   client,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
	}
	registry.Register(task.KindSendPrompt, &SendPromptHandler{base: b})
	registry.Register(task.KindRefine, &RefineHandler{base: b})
	registry.Register(task.KindBreakdown, &BreakdownHandler{base: b})
	registry.Register(task.KindIdeaGeneration, &IdeaGenerationHandler{base: b})
}

// decodePayload unmarshals and validates a handler payload. Unknown
// fields are rejected so a typoed payload fails loudly instead of being
// silently ignored.
func (b *base) decodePayload(payload json.RawMessage, into any) error {
	if len(payload) == 0 {
		return task.Permanentf("empty payload")
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return task.Permanent(fmt.Errorf("decode payload: %w", err))
	}

	if err := b.validate.Struct(into); err != nil {
		return task.Permanent(fmt.Errorf("validate payload: %w", err))
	}
	return nil
}

// marshalResult encodes a handler result for persistence.
func marshalResult(r Result) (json.RawMessage, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, task.Permanent(fmt.Errorf("encode result: %w", err))
	}
	return data, nil
}

// payloadValidator shares the payload-shape check with the operations
// layer so malformed submissions are rejected at add time, not at
// execution time.
var payloadValidator = validator.New()

// ValidatePayload checks that payload is a well-formed payload for the
// given kind.
func ValidatePayload(kind task.Kind, payload json.RawMessage) error {
	b := base{validate: payloadValidator}
	switch kind {
	case task.KindSendPrompt:
		var p SendPromptPayload
		return b.decodePayload(payload, &p)
	case task.KindRefine:
		var p RefinePayload
		return b.decodePayload(payload, &p)
	case task.KindBreakdown:
		var p BreakdownPayload
		return b.decodePayload(payload, &p)
	case task.KindIdeaGeneration:
		var p IdeaGenerationPayload
		return b.decodePayload(payload, &p)
	}
	return task.Permanentf("unsupported task kind %q", kind)
}
