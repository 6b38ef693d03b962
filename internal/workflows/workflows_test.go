package workflows

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokrates-llm/sokq/internal/config"
	"github.com/sokrates-llm/sokq/internal/executor"
	"github.com/sokrates-llm/sokq/internal/llm"
	"github.com/sokrates-llm/sokq/internal/task"
)

// fakeClient records requests and replays canned completions.
type fakeClient struct {
	requests []llm.Request
	outputs  []string
	err      error
}

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	out := "completion"
	if len(f.outputs) > 0 {
		out = f.outputs[0]
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

func testRegistry(t *testing.T, client llm.Client) *executor.Registry {
	t.Helper()

	registry := executor.NewRegistry()
	cfg := config.LLMConfig{
		APIEndpoint: "http://localhost:1234/v1",
		APIKey:      "notrequired",
		Model:       "qwen/qwen3-8b",
		Temperature: 0.7,
	}
	Register(registry, client, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return registry
}

func handle(t *testing.T, registry *executor.Registry, kind task.Kind, payload string) (json.RawMessage, error) {
	t.Helper()

	h, ok := registry.Lookup(kind)
	require.True(t, ok, "handler for %s must be registered", kind)
	return h.Handle(context.Background(), json.RawMessage(payload))
}

func TestRegister_AllKindsBound(t *testing.T) {
	t.Parallel()

	registry := testRegistry(t, &fakeClient{})
	for _, kind := range task.Kinds() {
		_, ok := registry.Lookup(kind)
		assert.True(t, ok, "kind %s", kind)
	}
}

func TestSendPrompt(t *testing.T) {
	t.Parallel()

	client := &fakeClient{outputs: []string{"the answer"}}
	registry := testRegistry(t, client)

	raw, err := handle(t, registry, task.KindSendPrompt, `{"prompt":"hi"}`)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "the answer", result.Output)
	assert.Equal(t, "qwen/qwen3-8b", result.Model)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "hi", client.requests[0].Prompt)
}

func TestSendPrompt_ModelOverride(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	registry := testRegistry(t, client)

	_, err := handle(t, registry, task.KindSendPrompt, `{"prompt":"hi","model":"llama-3-8b"}`)
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "llama-3-8b", client.requests[0].Model)
}

func TestSendPrompt_MalformedPayloadIsPermanent(t *testing.T) {
	t.Parallel()

	registry := testRegistry(t, &fakeClient{})

	cases := []struct {
		name    string
		payload string
	}{
		{"missing prompt", `{}`},
		{"unknown field", `{"prompt":"hi","promt":"typo"}`},
		{"not json", `prompt`},
		{"empty", ``},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := handle(t, registry, task.KindSendPrompt, tc.payload)
			require.Error(t, err)
			assert.Equal(t, task.ErrorClassPermanent, task.Classify(err))
		})
	}
}

func TestRefine(t *testing.T) {
	t.Parallel()

	client := &fakeClient{outputs: []string{"refined prompt"}}
	registry := testRegistry(t, client)

	raw, err := handle(t, registry, task.KindRefine, `{"prompt":"rough prompt"}`)
	require.NoError(t, err)

	var result RefineResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "refined prompt", result.Output)
	assert.Empty(t, result.RefinedPrompt)

	require.Len(t, client.requests, 1)
	assert.NotEmpty(t, client.requests[0].SystemPrompt)
}

func TestRefine_AndSend(t *testing.T) {
	t.Parallel()

	client := &fakeClient{outputs: []string{"refined prompt", "final answer"}}
	registry := testRegistry(t, client)

	raw, err := handle(t, registry, task.KindRefine,
		`{"prompt":"rough","execute":true,"execution_model":"big-model"}`)
	require.NoError(t, err)

	var result RefineResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "final answer", result.Output)
	assert.Equal(t, "refined prompt", result.RefinedPrompt)
	assert.Equal(t, "big-model", result.Model)

	// Second call executes the refined prompt on the execution model.
	require.Len(t, client.requests, 2)
	assert.Equal(t, "refined prompt", client.requests[1].Prompt)
	assert.Equal(t, "big-model", client.requests[1].Model)
}

func TestBreakdown(t *testing.T) {
	t.Parallel()

	client := &fakeClient{outputs: []string{"- step one\n- step two"}}
	registry := testRegistry(t, client)

	raw, err := handle(t, registry, task.KindBreakdown, `{"task":"build a shed"}`)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Contains(t, result.Output, "step one")

	require.Len(t, client.requests, 1)
	assert.Equal(t, "build a shed", client.requests[0].Prompt)
}

func TestIdeaGeneration_CountInPrompt(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	registry := testRegistry(t, client)

	_, err := handle(t, registry, task.KindIdeaGeneration, `{"topic":"weekend projects","count":5}`)
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Contains(t, client.requests[0].Prompt, "exactly 5 ideas")
	assert.Contains(t, client.requests[0].Prompt, "weekend projects")
}

func TestHandlers_ClientErrorPassesThrough(t *testing.T) {
	t.Parallel()

	client := &fakeClient{err: task.Transientf("rate limited")}
	registry := testRegistry(t, client)

	_, err := handle(t, registry, task.KindSendPrompt, `{"prompt":"hi"}`)
	require.Error(t, err)
	assert.Equal(t, task.ErrorClassTransient, task.Classify(err))
}

func TestValidatePayload(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidatePayload(task.KindSendPrompt, json.RawMessage(`{"prompt":"hi"}`)))
	assert.NoError(t, ValidatePayload(task.KindBreakdown, json.RawMessage(`{"task":"x"}`)))
	assert.NoError(t, ValidatePayload(task.KindIdeaGeneration, json.RawMessage(`{"topic":"x"}`)))

	assert.Error(t, ValidatePayload(task.KindSendPrompt, json.RawMessage(`{}`)))
	assert.Error(t, ValidatePayload(task.KindRefine, json.RawMessage(`{"bogus":true}`)))
	assert.Error(t, ValidatePayload(task.Kind("juggle"), json.RawMessage(`{}`)))
}
