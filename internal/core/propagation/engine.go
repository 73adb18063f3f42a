// Package propagation pushes values through a graph.
//
// A burst starts from one external trigger (a write, a submit, an invocation
// result) and runs to completion before returning. Pending writes sit in a
// FIFO worklist, so chain length never grows the call stack and a runaway
// chain is cut off by the step bound instead of looping forever.
//
// An Engine is not safe for concurrent use; the owning session serializes
// bursts.
package propagation

import (
	"context"
	"fmt"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/transform"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

const source = "propagation"

// DefaultMaxSteps bounds the writes processed in one burst.
const DefaultMaxSteps = 10000

// Trigger names what started a burst.
type Trigger string

const (
	TriggerWrite     Trigger = "write"
	TriggerTransform Trigger = "transform"
	TriggerFanout    Trigger = "fanout"
	TriggerSubmit    Trigger = "submit"
)

// BurstStats summarizes one burst.
type BurstStats struct {
	Writes     int  `json:"writes"`
	Transforms int  `json:"transforms"`
	Steps      int  `json:"steps"`
	Truncated  bool `json:"truncated"`
}

// Observer is told about every finished burst.
type Observer interface {
	BurstFinished(trigger Trigger, stats BurstStats)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps sets the per-burst step bound. Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithObserver registers a burst observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine drives values along the edges of one graph.
type Engine struct {
	graph      *graph.Graph
	transforms *transform.Library
	sink       diag.Sink
	maxSteps   int
	observer   Observer
}

// NewEngine builds an engine over g.
func NewEngine(g *graph.Graph, transforms *transform.Library, sink diag.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = diag.Discard
	}
	e := &Engine{graph: g, transforms: transforms, sink: sink, maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxSteps returns the per-burst step bound.
func (e *Engine) MaxSteps() int { return e.maxSteps }

type task struct {
	nodeID string
	port   int
	value  value.Value
}

// Write stores v in input slot port of the node. An AUTO node then
// transforms and fans out, cascading through further AUTO nodes.
func (e *Engine) Write(ctx context.Context, nodeID string, port int, v value.Value) (BurstStats, error) {
	if e.graph.FindNode(nodeID) == nil {
		return BurstStats{}, e.missing(ctx, nodeID)
	}
	return e.run(ctx, TriggerWrite, []task{{nodeID: nodeID, port: port, value: v}}, BurstStats{})
}

// TransformAndFanout transforms the value held in input slot port, stores the
// result as the node's output and forwards it downstream.
func (e *Engine) TransformAndFanout(ctx context.Context, nodeID string, port int) (BurstStats, error) {
	node := e.graph.FindNode(nodeID)
	if node == nil {
		return BurstStats{}, e.missing(ctx, nodeID)
	}
	in, _ := node.Input(port)
	node.OutputData = e.transforms.Apply(ctx, node, in)
	stats := BurstStats{Transforms: 1}
	return e.run(ctx, TriggerTransform, e.fanoutTasks(ctx, node), stats)
}

// Fanout forwards the node's current output along every outgoing edge.
func (e *Engine) Fanout(ctx context.Context, nodeID string) (BurstStats, error) {
	node := e.graph.FindNode(nodeID)
	if node == nil {
		return BurstStats{}, e.missing(ctx, nodeID)
	}
	return e.run(ctx, TriggerFanout, e.fanoutTasks(ctx, node), BurstStats{})
}

// Submit forwards out along the node's first outgoing edge only. It reports
// false when the node has no outgoing edge.
func (e *Engine) Submit(ctx context.Context, nodeID string, out value.Value) (BurstStats, bool, error) {
	if e.graph.FindNode(nodeID) == nil {
		return BurstStats{}, false, e.missing(ctx, nodeID)
	}
	edge := e.graph.FirstOutgoingEdge(nodeID)
	if edge == nil {
		return BurstStats{}, false, nil
	}
	t, ok := e.taskFor(ctx, edge, out)
	if !ok {
		return BurstStats{}, false, nil
	}
	stats, err := e.run(ctx, TriggerSubmit, []task{t}, BurstStats{})
	return stats, true, err
}

func (e *Engine) run(ctx context.Context, trigger Trigger, queue []task, stats BurstStats) (BurstStats, error) {
	defer func() {
		if e.observer != nil {
			e.observer.BurstFinished(trigger, stats)
		}
	}()

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			stats.Truncated = true
			return stats, err
		}
		if stats.Steps >= e.maxSteps {
			stats.Truncated = true
			e.sink.Report(ctx, diag.New(diag.Error, source,
				"propagation stopped after %d steps with %d writes pending; the graph may contain a cycle",
				stats.Steps, len(queue)))
			return stats, nil
		}

		t := queue[0]
		queue = queue[1:]
		stats.Steps++

		node := e.graph.FindNode(t.nodeID)
		if node == nil {
			e.sink.Report(ctx, diag.New(diag.Warning, source, "edge points at missing node %s", t.nodeID))
			continue
		}
		node.SetInput(t.port, t.value)
		stats.Writes++

		if node.IsAuto() {
			node.OutputData = e.transforms.Apply(ctx, node, t.value)
			stats.Transforms++
			queue = append(queue, e.fanoutTasks(ctx, node)...)
		}
	}
	return stats, nil
}

func (e *Engine) fanoutTasks(ctx context.Context, node *graph.Node) []task {
	edges := e.graph.OutgoingEdges(node.ID)
	tasks := make([]task, 0, len(edges))
	for _, edge := range edges {
		if t, ok := e.taskFor(ctx, edge, node.OutputData); ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

func (e *Engine) taskFor(ctx context.Context, edge *graph.Edge, v value.Value) (task, bool) {
	port, err := graph.ParsePortID(edge.TargetID)
	if err != nil {
		e.sink.Report(ctx, diag.New(diag.Warning, source, "skipping edge %s: %v", edge, err).WithErr(err))
		return task{}, false
	}
	return task{nodeID: port.NodeID, port: port.Index, value: v}, true
}

func (e *Engine) missing(ctx context.Context, nodeID string) error {
	err := fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	e.sink.Report(ctx, diag.New(diag.Error, source, "node with ID %q not found", nodeID).WithErr(err))
	return err
}
