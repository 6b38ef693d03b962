package workflows

import (
	"context"
	"encoding/json"

	"github.com/sokrates-llm/sokq/internal/llm"
)

// RefinePayload is the payload for refine tasks.
type RefinePayload struct {
	Prompt string `json:"prompt" validate:"required"`

	// Instructions, when set, replace the default refinement
	// instructions.
	Instructions string `json:"instructions,omitempty"`

	// Execute additionally sends the refined prompt to the model and
	// returns that completion instead of the refined prompt itself
	// (the refine-and-send workflow).
	Execute bool `json:"execute,omitempty"`

	Model          string   `json:"model,omitempty"`
	ExecutionModel string   `json:"execution_model,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// RefineResult extends the common result with the intermediate refined
// prompt when the refine-and-send workflow ran.
type RefineResult struct {
	Result
	RefinedPrompt string `json:"refined_prompt,omitempty"`
}

// RefineHandler improves a raw prompt via a refinement meta-prompt,
// optionally executing the refined prompt afterwards.
type RefineHandler struct {
	base
}

// Handle implements executor.Handler.
func (h *RefineHandler) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p RefinePayload
	if err := h.decodePayload(payload, &p); err != nil {
		return nil, err
	}

	model := p.Model
	if model == "" {
		model = h.cfg.Model
	}
	system := refinementSystemPrompt
	if p.Instructions != "" {
		system = p.Instructions
	}

	refined, err := h.client.Complete(ctx, llm.Request{
		Prompt:       p.Prompt,
		SystemPrompt: system,
		Model:        model,
		Temperature:  p.Temperature,
	})
	if err != nil {
		return nil, err
	}

	if !p.Execute {
		data, err := json.Marshal(RefineResult{Result: Result{Output: refined, Model: model}})
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	executionModel := p.ExecutionModel
	if executionModel == "" {
		executionModel = model
	}

	h.logger.InfoContext(ctx, "executing refined prompt", "model", executionModel)

	output, err := h.client.Complete(ctx, llm.Request{
		Prompt:      refined,
		Model:       executionModel,
		Temperature: p.Temperature,
	})
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(RefineResult{
		Result:        Result{Output: output, Model: executionModel},
		RefinedPrompt: refined,
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
