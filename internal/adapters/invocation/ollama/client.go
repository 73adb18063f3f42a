// Package ollama is the local single-shot language model adapter. It speaks
// the non-streaming /api/generate envelope.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seehiong/micronaut-optimizer/internal/adapters/invocation"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/logging"
)

var (
	ErrMissingEndpoint = errors.New("missing local LLM endpoint")
	ErrRequestFailed   = errors.New("local LLM request failed")
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string  `json:"model"`
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

// Config holds the local model settings.
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// Client calls a local model server.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

// NewClient builds a client for the full generate endpoint URL.
func NewClient(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
	}
}

// Complete asks the model about payload, following instruction.
func (c *Client) Complete(ctx context.Context, instruction string, payload value.Value) (string, error) {
	return c.Generate(ctx, invocation.ComposePrompt(instruction, payload))
}

// Generate sends prompt and returns the response field of the answer.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	logger := logging.FromContext(ctx).With("provider", "ollama", "model", c.model)
	if strings.TrimSpace(c.endpoint) == "" {
		return "", ErrMissingEndpoint
	}

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("generating text", "prompt_chars", len(prompt))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("local model returned an error", "status", resp.StatusCode)
		return "", fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse local LLM response: %w", err)
	}
	if out.Response == nil {
		return "", fmt.Errorf("local LLM response has no response field: %w", invocation.ErrEmptyResult)
	}
	logger.Debug("received local model response", "done", out.Done)
	return *out.Response, nil
}
