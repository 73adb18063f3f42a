// Package stream posts a node payload to a solver endpoint and reads the
// answer as a server-sent event stream.
//
// PRINCIPLES:
// - Validate before any network call
// - Frames are handed to the caller one at a time, in arrival order
// - A frame that fails to parse ends the stream; earlier frames stay applied
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/seehiong/micronaut-optimizer/internal/core/value"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/logging"
)

var (
	ErrMissingEndpoint = errors.New("invalid API URL")
	ErrInvalidPayload  = errors.New("invalid request data")
	ErrRequestFailed   = errors.New("API request failed")
	ErrInvalidFrame    = errors.New("stream frame is not valid JSON")
)

// DefaultMaxFrameBytes bounds one line of the event stream.
const DefaultMaxFrameBytes = 4 << 20

// EmitFunc receives every parsed frame. Returning an error stops the stream.
type EmitFunc = func(ctx context.Context, frame value.Value) error

// Client issues streaming invocations.
type Client struct {
	httpClient    *http.Client
	maxFrameBytes int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds a whole invocation, stream included. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

// WithMaxFrameBytes sets the longest accepted stream line.
func WithMaxFrameBytes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxFrameBytes = n
		}
	}
}

// NewClient returns a client with no overall timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{}, maxFrameBytes: DefaultMaxFrameBytes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream posts payload as JSON to endpoint and calls emit for every frame of
// the response. It returns the number of frames delivered.
func (c *Client) Stream(ctx context.Context, endpoint string, payload value.Value, emit EmitFunc) (int, error) {
	logger := logging.FromContext(ctx).With("endpoint", endpoint)

	if strings.TrimSpace(endpoint) == "" {
		return 0, ErrMissingEndpoint
	}
	if k := payload.Kind(); k != value.KindList && k != value.KindRecord {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidPayload, k)
	}

	body, err := payload.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")

	logger.Debug("starting stream invocation", "payload_bytes", len(body))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxFrameBytes)))
		logger.Warn("stream invocation rejected", "status", resp.StatusCode)
		return 0, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(text)))
	}

	if isPlainJSON(resp.Header.Get("Content-Type")) {
		return c.readDocument(ctx, resp.Body, emit)
	}
	n, err := c.readFrames(ctx, resp.Body, emit)
	if err != nil {
		logger.Warn("stream ended early", "frames", n, "error", err)
		return n, err
	}
	logger.Debug("stream finished", "frames", n)
	return n, nil
}

func isPlainJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// readDocument handles servers that answer with one ordinary JSON body.
func (c *Client) readDocument(ctx context.Context, r io.Reader, emit EmitFunc) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return 0, nil
	}
	frame, err := value.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	if err := emit(ctx, frame); err != nil {
		return 0, err
	}
	return 1, nil
}

// readFrames splits the body into events at blank lines. Only events that
// start with "data:" carry a frame; the prefix is stripped and empty data is
// skipped.
func (c *Client) readFrames(ctx context.Context, r io.Reader, emit EmitFunc) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), c.maxFrameBytes)

	var (
		event []string
		count int
	)
	flush := func() error {
		if len(event) == 0 {
			return nil
		}
		text := strings.Join(event, "\n")
		event = event[:0]
		if !strings.HasPrefix(text, "data:") {
			return nil
		}
		data := strings.TrimSpace(strings.TrimPrefix(text, "data:"))
		if data == "" {
			return nil
		}
		frame, err := value.ParseString(data)
		if err != nil {
			return fmt.Errorf("%w: frame %d: %w", ErrInvalidFrame, count+1, err)
		}
		if err := emit(ctx, frame); err != nil {
			return err
		}
		count++
		return nil
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if err := flush(); err != nil {
				return count, err
			}
			continue
		}
		event = append(event, line)
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read stream: %w", err)
	}
	return count, flush()
}
