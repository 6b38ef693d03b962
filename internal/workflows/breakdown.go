package workflows

import (
	"context"
	"encoding/json"

	"github.com/sokrates-llm/sokq/internal/llm"
)

// BreakdownPayload is the payload for breakdown tasks.
type BreakdownPayload struct {
	// Task is the description of the work to decompose.
	Task string `json:"task" validate:"required"`

	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// BreakdownHandler decomposes a task description into ordered
// sub-tasks.
type BreakdownHandler struct {
	base
}

// Handle implements executor.Handler.
func (h *BreakdownHandler) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p BreakdownPayload
	if err := h.decodePayload(payload, &p); err != nil {
		return nil, err
	}

	model := p.Model
	if model == "" {
		model = h.cfg.Model
	}

	output, err := h.client.Complete(ctx, llm.Request{
		Prompt:       p.Task,
		SystemPrompt: breakdownSystemPrompt,
		Model:        model,
		Temperature:  p.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return marshalResult(Result{Output: output, Model: model})
}
