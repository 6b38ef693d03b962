// Package openai implements the llm.Client interface against any
// OpenAI-compatible chat-completion endpoint (LM Studio, vLLM, OpenAI
// itself).
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/sokrates-llm/sokq/internal/config"
	"github.com/sokrates-llm/sokq/internal/llm"
	"github.com/sokrates-llm/sokq/internal/task"
)

// Client calls an OpenAI-compatible chat-completion endpoint.
type Client struct {
	api    *goopenai.Client
	cfg    config.LLMConfig
	logger *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// NewClient creates a Client for the configured endpoint.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIEndpoint == "" {
		return nil, fmt.Errorf("%w: api endpoint cannot be empty", llm.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", llm.ErrInvalidConfig)
	}

	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimSuffix(cfg.APIEndpoint, "/")

	return &Client{
		api:    goopenai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Complete sends the request and returns the model's text output.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", task.Permanent(llm.ErrEmptyPrompt)
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}

	var messages []goopenai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	c.logger.DebugContext(ctx, "sending chat completion request",
		"model", model,
		"prompt_length", len(req.Prompt))

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classifyAPIError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", task.Transient(llm.ErrEmptyCompletion)
	}

	content := resp.Choices[0].Message.Content
	c.logger.DebugContext(ctx, "chat completion received",
		"model", model,
		"completion_length", len(content))

	return content, nil
}

// classifyAPIError maps endpoint failures onto the task error taxonomy:
// rate limits, server faults, and transport errors are transient;
// rejected requests (bad model, malformed input, auth) are permanent.
func classifyAPIError(err error) *task.Error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return task.Transient(err)
		case apiErr.HTTPStatusCode >= 400:
			return task.Permanent(err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return task.Transient(err)
	}

	// Unknown failure modes stay retryable.
	return task.Transient(err)
}
