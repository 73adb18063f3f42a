package usecases

import (
	"context"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/propagation"
	"github.com/seehiong/micronaut-optimizer/internal/core/transform"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

// StreamInvoker posts a payload and hands back every frame of the answer
// PRINCIPLES:
// - SRP: transport only, the session decides what a frame does
// - DIP: implemented by the stream adapter
type StreamInvoker interface {
	Stream(ctx context.Context, endpoint string, payload value.Value, emit func(ctx context.Context, frame value.Value) error) (int, error)
}

// Completer is a single-shot language model. It is given the instruction
// text and the payload and returns the model's answer.
type Completer interface {
	Complete(ctx context.Context, instruction string, payload value.Value) (string, error)
}

// Metrics receives counters from a session. Every core observer is part of
// it so one recorder can watch everything.
type Metrics interface {
	transform.Observer
	propagation.Observer
	diag.Sink
	ConnectionAttempted(ok bool)
	InvocationFinished(mode string, ok bool)
	StreamFrameApplied()
}

// SessionStore keeps live sessions
// PRINCIPLES:
// - SRP: Only responsible for session lookup
// - DIP: Used for dependency injection
type SessionStore interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
}

type noopMetrics struct{}

func (noopMetrics) TransformApplied(graph.TransformType, bool) {}
func (noopMetrics) BurstFinished(propagation.Trigger, propagation.BurstStats) {}
func (noopMetrics) Report(context.Context, diag.Diagnostic) {}
func (noopMetrics) ConnectionAttempted(bool) {}
func (noopMetrics) InvocationFinished(string, bool) {}
func (noopMetrics) StreamFrameApplied() {}
