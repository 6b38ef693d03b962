package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sokrates-llm/sokq/internal/llm"
)

// IdeaGenerationPayload is the payload for idea-generation tasks.
type IdeaGenerationPayload struct {
	Topic string `json:"topic" validate:"required"`

	// Count is how many ideas to ask for. Zero means the model's
	// discretion.
	Count int `json:"count,omitempty" validate:"gte=0,lte=100"`

	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// IdeaGenerationHandler produces a list of ideas around a topic.
type IdeaGenerationHandler struct {
	base
}

// Handle implements executor.Handler.
func (h *IdeaGenerationHandler) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p IdeaGenerationPayload
	if err := h.decodePayload(payload, &p); err != nil {
		return nil, err
	}

	model := p.Model
	if model == "" {
		model = h.cfg.Model
	}

	prompt := p.Topic
	if p.Count > 0 {
		prompt = fmt.Sprintf("Generate exactly %d ideas for the following topic.\n\n%s", p.Count, p.Topic)
	}

	output, err := h.client.Complete(ctx, llm.Request{
		Prompt:       prompt,
		SystemPrompt: ideaGenerationSystemPrompt,
		Model:        model,
		Temperature:  p.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return marshalResult(Result{Output: output, Model: model})
}
