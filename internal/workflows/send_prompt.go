package workflows

import (
	"context"
	"encoding/json"

	"github.com/sokrates-llm/sokq/internal/llm"
)

// SendPromptPayload is the payload for send-prompt tasks.
type SendPromptPayload struct {
	Prompt      string   `json:"prompt" validate:"required"`
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `json:"max_tokens,omitempty" validate:"gte=0"`
}

// SendPromptHandler sends a prompt to the endpoint as-is and records
// the completion.
type SendPromptHandler struct {
	base
}

// Handle implements executor.Handler.
func (h *SendPromptHandler) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p SendPromptPayload
	if err := h.decodePayload(payload, &p); err != nil {
		return nil, err
	}

	model := p.Model
	if model == "" {
		model = h.cfg.Model
	}

	output, err := h.client.Complete(ctx, llm.Request{
		Prompt:      p.Prompt,
		Model:       model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	return marshalResult(Result{Output: output, Model: model})
}
