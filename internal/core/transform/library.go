package transform

import (
	"context"
	"errors"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

const source = "transform"

// Observer is told about every transform the library applies.
type Observer interface {
	TransformApplied(kind graph.TransformType, ok bool)
}

// Library dispatches a node's transform type to its function.
// PRINCIPLES:
// - Total: every call returns a value, failures become diagnostics
// - Closed: one switch arm per TransformType
type Library struct {
	sink     diag.Sink
	observer Observer
}

// NewLibrary builds a library reporting to sink. Both arguments may be nil.
func NewLibrary(sink diag.Sink, observer Observer) *Library {
	if sink == nil {
		sink = diag.Discard
	}
	return &Library{sink: sink, observer: observer}
}

// Apply runs node's transform on input. The node's own input slots are read
// by the transforms that combine several inputs.
func (l *Library) Apply(ctx context.Context, node *graph.Node, input value.Value) value.Value {
	out, ok := l.apply(ctx, node, input)
	if l.observer != nil {
		l.observer.TransformApplied(node.TransformType, ok)
	}
	return out
}

func (l *Library) apply(ctx context.Context, node *graph.Node, input value.Value) (value.Value, bool) {
	switch node.TransformType {
	case graph.TransformNone:
		return input, true

	case graph.TransformMatrixOfDoubles:
		m, err := MatrixOfDoubles(input)
		if err != nil {
			l.report(ctx, node, diag.Error, "invalid matrix input: %v", err)
			return value.Null(), false
		}
		return m, true

	case graph.TransformCastToString:
		return CastToString(input), true

	case graph.TransformJSONFormatter:
		var outputType string
		if len(node.OutputTypes) > 0 {
			outputType = node.OutputTypes[0]
		}
		out, err := JSONFormatter(input, outputType, node.FormatterKey)
		if err != nil {
			l.report(ctx, node, diag.Error, "invalid input for JSON formatter: %v", err)
			return out, false
		}
		return out, true

	case graph.TransformJSONAggregator:
		out, skipped := JSONAggregator(node.InputData)
		for _, s := range skipped {
			l.report(ctx, node, diag.Warning, "skipping aggregator input %d: %v", s.Index, s.Err)
		}
		return out, true

	case graph.TransformDumpOutput:
		return DumpOutput(input), true

	case graph.TransformExtractSolverID:
		return ExtractSolverID(input), true

	case graph.TransformExtractByKey:
		out, err := ExtractByKey(node.InputData)
		switch {
		case err == nil:
			return out, true
		case errors.Is(err, ErrMissingArgument):
			// Slots fill one at a time; an incomplete set is expected.
			l.report(ctx, node, diag.Info, "extract by key: %v", err)
		default:
			l.report(ctx, node, diag.Warning, "extract by key: %v", err)
		}
		return value.Null(), false
	}

	l.report(ctx, node, diag.Error, "unknown transform type %q", node.TransformType)
	return input, false
}

func (l *Library) report(ctx context.Context, node *graph.Node, sev diag.Severity, format string, args ...any) {
	l.sink.Report(ctx, diag.New(sev, source, format, args...).WithNode(node.ID))
}
