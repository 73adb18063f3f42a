// Package connection guards edge creation.
//
// PRINCIPLES:
// - Fail closed: every rejected edge leaves the graph untouched
// - One producer per input port
// - Rejections are reported to the sink and returned as sentinel errors
package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/porttype"
)

const source = "connection"

var (
	ErrIncompatibleTypes = errors.New("port types are not compatible")
	ErrInputPortOccupied = errors.New("input port is already connected to another output port")
)

// Option configures a Validator.
type Option func(*Validator)

// WithCycleCheck toggles rejection of edges that close a directed cycle.
func WithCycleCheck(enabled bool) Option {
	return func(v *Validator) { v.rejectCycles = enabled }
}

// Validator enforces connection rules over one graph.
type Validator struct {
	graph        *graph.Graph
	types        *porttype.System
	sink         diag.Sink
	rejectCycles bool
}

// NewValidator builds a validator. Cycle rejection is on unless disabled.
func NewValidator(g *graph.Graph, types *porttype.System, sink diag.Sink, opts ...Option) *Validator {
	if sink == nil {
		sink = diag.Discard
	}
	v := &Validator{graph: g, types: types, sink: sink, rejectCycles: true}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate decides whether an edge from src to dst may be created. The checks
// run in order: endpoints exist, types are compatible, the input is free and,
// when enabled, the edge does not close a cycle.
func (v *Validator) Validate(ctx context.Context, src, dst graph.PortID) error {
	srcPort, ok := v.types.DecodePort(ctx, src)
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrInvalidPortID, src)
	}
	dstPort, ok := v.types.DecodePort(ctx, dst)
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrInvalidPortID, dst)
	}
	if srcPort.Dir != graph.Output {
		return v.reject(ctx, diag.Warning, fmt.Errorf("%w: %s", graph.ErrInvalidSource, src))
	}
	if dstPort.Dir != graph.Input {
		return v.reject(ctx, diag.Warning, fmt.Errorf("%w: %s", graph.ErrInvalidTarget, dst))
	}

	srcNode := v.graph.FindNode(srcPort.NodeID)
	dstNode := v.graph.FindNode(dstPort.NodeID)
	if srcNode == nil || dstNode == nil {
		return v.reject(ctx, diag.Error, fmt.Errorf("source or target node not found: %w", graph.ErrNodeNotFound))
	}

	srcType, err := porttype.TypeOf(src, srcNode)
	if err != nil {
		return v.reject(ctx, diag.Warning, err)
	}
	dstType, err := porttype.TypeOf(dst, dstNode)
	if err != nil {
		return v.reject(ctx, diag.Warning, err)
	}
	if !v.types.IsCompatible(ctx, srcType, dstType) {
		return v.reject(ctx, diag.Warning, fmt.Errorf("%w: %s -> %s", ErrIncompatibleTypes, srcType, dstType))
	}

	if v.graph.IsPortConnected(dst, graph.Input) {
		return v.reject(ctx, diag.Warning, fmt.Errorf("%w: %s", ErrInputPortOccupied, dst))
	}

	if v.rejectCycles && v.graph.Reaches(dstNode.ID, srcNode.ID) {
		return v.reject(ctx, diag.Warning, fmt.Errorf("%w: %s -> %s", graph.ErrCyclicGraph, src, dst))
	}
	return nil
}

// Connect validates and, on success, appends the edge to the graph.
func (v *Validator) Connect(ctx context.Context, src, dst graph.PortID) (*graph.Edge, error) {
	if err := v.Validate(ctx, src, dst); err != nil {
		return nil, err
	}
	edge := graph.NewEdge(src, dst)
	if err := v.graph.AddEdge(edge); err != nil {
		return nil, v.reject(ctx, diag.Warning, err)
	}
	return edge, nil
}

// EdgeExists reports whether a and b are joined in either direction.
func (v *Validator) EdgeExists(a, b graph.PortID) bool {
	return v.graph.EdgeExists(a, b)
}

// IsPortConnected reports whether a port already has an edge in the given
// role.
func (v *Validator) IsPortConnected(port graph.PortID, dir graph.Direction) bool {
	return v.graph.IsPortConnected(port, dir)
}

func (v *Validator) reject(ctx context.Context, sev diag.Severity, err error) error {
	v.sink.Report(ctx, diag.New(sev, source, "%v", err).WithErr(err))
	return err
}
