// Package openai is the remote single-shot language model adapter.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/seehiong/micronaut-optimizer/internal/adapters/invocation"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/logging"
)

// ErrMissingAPIKey is returned at call time when no key is configured.
var ErrMissingAPIKey = errors.New("missing OpenAI API key")

// Config holds the remote model settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client wraps the OpenAI client with the request shape nodes use
type Client struct {
	client      *openai.Client
	apiKey      string
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// NewClient creates a new OpenAI client wrapper. A missing key is not an
// error here; Complete reports it.
func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		client:      openai.NewClientWithConfig(oc),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

// Complete asks the model about payload, following instruction.
func (c *Client) Complete(ctx context.Context, instruction string, payload value.Value) (string, error) {
	return c.Generate(ctx, invocation.ComposePrompt(instruction, payload))
}

// Generate sends prompt as one user message and returns the first choice.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	logger := logging.FromContext(ctx).With("provider", "openai", "model", c.model)
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logger.Debug("requesting chat completion", "prompt_chars", len(prompt))
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		logger.Warn("chat completion failed", "error", err)
		return "", fmt.Errorf("OpenAI request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("invalid OpenAI response: %w", invocation.ErrEmptyResult)
	}

	logger.Debug("chat completion received", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
