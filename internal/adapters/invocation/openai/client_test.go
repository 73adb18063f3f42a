package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seehiong/micronaut-optimizer/internal/adapters/invocation"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func server(t *testing.T, reply string, check func(r *http.Request, req chatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		require.NoError(t, json.Unmarshal(body, &req))
		if check != nil {
			check(r, req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate(t *testing.T) {
	srv := server(t,
		`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Route looks optimal."},"finish_reason":"stop"}]}`,
		func(r *http.Request, req chatRequest) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			assert.Equal(t, "gpt-4o-mini", req.Model)
			assert.InDelta(t, 0.7, req.Temperature, 1e-6)
			assert.Equal(t, 200, req.MaxTokens)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, "user", req.Messages[0].Role)
			assert.Equal(t, "summarize", req.Messages[0].Content)
		})

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 200})
	got, err := c.Generate(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "Route looks optimal.", got)
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := server(t, `{"id":"1","choices":[]}`, nil)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	_, err := c.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, invocation.ErrEmptyResult)
}

func TestGenerate_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestGenerate_MissingKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL, Model: "m"}).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.False(t, called)
}

func TestComplete_ComposesPrompt(t *testing.T) {
	srv := server(t,
		`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`,
		func(_ *http.Request, req chatRequest) {
			require.Len(t, req.Messages, 1)
			assert.Equal(t, "Explain.\n\nData:\n\n###[\n  1\n]###", req.Messages[0].Content)
		})

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	got, err := c.Complete(context.Background(), "Explain.", value.List(value.Number(1)))
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
