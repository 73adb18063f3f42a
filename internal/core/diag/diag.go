// Package diag carries user-facing diagnostics out of the engine.
//
// PRINCIPLES:
// - Engine operations are total: failures become diagnostics, not panics
// - A Sink decides where diagnostics go (log, event bus, test recorder)
// - Diagnostics are values; sinks must not retain mutable state from them
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Severity ranks a diagnostic.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Level maps the severity onto a slog level.
func (s Severity) Level() slog.Level {
	switch s {
	case Warning:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Diagnostic is one notification raised by a graph operation.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Source   string   `json:"source"`
	Message  string   `json:"message"`
	NodeID   string   `json:"nodeId,omitempty"`
	Err      error    `json:"-"`
}

func (d Diagnostic) String() string {
	if d.NodeID != "" {
		return fmt.Sprintf("[%s] %s (node %s): %s", d.Severity, d.Source, d.NodeID, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Source, d.Message)
}

// New builds a diagnostic with a formatted message.
func New(sev Severity, source, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: sev, Source: source, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches the node the diagnostic is about.
func (d Diagnostic) WithNode(id string) Diagnostic {
	d.NodeID = id
	return d
}

// WithErr attaches the underlying error.
func (d Diagnostic) WithErr(err error) Diagnostic {
	d.Err = err
	return d
}

// Sink receives diagnostics.
type Sink interface {
	Report(ctx context.Context, d Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, d Diagnostic)

func (f SinkFunc) Report(ctx context.Context, d Diagnostic) { f(ctx, d) }

// Discard drops every diagnostic.
var Discard Sink = SinkFunc(func(context.Context, Diagnostic) {})

// Multi fans a diagnostic out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, d Diagnostic) {
		for _, s := range sinks {
			if s != nil {
				s.Report(ctx, d)
			}
		}
	})
}

// LogSink writes diagnostics to a structured logger.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(ctx context.Context, d Diagnostic) {
		attrs := []any{"source", d.Source}
		if d.NodeID != "" {
			attrs = append(attrs, "node_id", d.NodeID)
		}
		if d.Err != nil {
			attrs = append(attrs, "error", d.Err)
		}
		logger.Log(ctx, d.Severity.Level(), d.Message, attrs...)
	})
}

// Recorder keeps every reported diagnostic. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (r *Recorder) Report(_ context.Context, d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, d)
}

// All returns a copy of the recorded diagnostics.
func (r *Recorder) All() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many diagnostics of the given severity were recorded.
func (r *Recorder) Count(sev Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.items {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// Reset clears the recorder.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
