package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seehiong/micronaut-optimizer/internal/core/connection"
	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/porttype"
	"github.com/seehiong/micronaut-optimizer/internal/core/propagation"
	"github.com/seehiong/micronaut-optimizer/internal/core/transform"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/logging"
	"github.com/seehiong/micronaut-optimizer/pkg/validation"
)

const sessionSource = "session"

// SessionConfig wires a session to its collaborators. Only Catalog is
// required; a missing invoker makes its mode fail with ErrInvokerMissing.
type SessionConfig struct {
	Catalog      *porttype.Catalog
	Stream       StreamInvoker
	RemoteLLM    Completer
	LocalLLM     Completer
	Metrics      Metrics
	Logger       *slog.Logger
	Sink         diag.Sink
	MaxSteps     int
	RejectCycles bool
}

// Session is one editor session: a graph, the id sequence naming its nodes
// and the engine moving values through it.
// PRINCIPLES:
// - Single actor: one mutex serializes every edit and every burst
// - Network I/O never runs under the lock
// - Every invocation result is checked against the node's generation
type Session struct {
	id        string
	createdAt time.Time

	mu          sync.Mutex
	graph       *graph.Graph
	seq         *graph.Sequence
	types       *porttype.System
	validator   *connection.Validator
	engine      *propagation.Engine
	generations map[string]uint64
	lastGen     uint64
	graphOpts   validation.GraphOptions

	stream    StreamInvoker
	remoteLLM Completer
	localLLM  Completer
	metrics   Metrics
	bus       *EventBus
	sink      diag.Sink
	logger    *slog.Logger
}

// NewSession creates an empty session.
func NewSession(cfg SessionConfig) *Session {
	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	s := &Session{
		id:          id,
		createdAt:   time.Now().UTC(),
		graph:       graph.New(),
		seq:         graph.NewSequence(),
		generations: make(map[string]uint64),
		graphOpts:   validation.GraphOptions{CheckCycles: cfg.RejectCycles},
		stream:      cfg.Stream,
		remoteLLM:   cfg.RemoteLLM,
		localLLM:    cfg.LocalLLM,
		metrics:     metrics,
		bus:         NewEventBus(),
		logger:      logger,
	}
	s.sink = diag.Multi(diag.LogSink(logger), s.bus.diagnosticSink(id), metrics, cfg.Sink)

	s.types = porttype.NewSystem(cfg.Catalog, s.sink)
	s.validator = connection.NewValidator(s.graph, s.types, s.sink, connection.WithCycleCheck(cfg.RejectCycles))
	s.engine = propagation.NewEngine(s.graph,
		transform.NewLibrary(s.sink, metrics),
		s.sink,
		propagation.WithMaxSteps(cfg.MaxSteps),
		propagation.WithObserver(burstRelay{s}),
	)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Catalog returns the catalog the session instantiates templates from.
func (s *Session) Catalog() *porttype.Catalog { return s.types.Catalog() }

// Subscribe streams session events until the returned function is called.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	return s.bus.Subscribe(buffer)
}

// Close ends every subscription.
func (s *Session) Close() {
	s.bus.Close()
}

func (s *Session) ctx(ctx context.Context) context.Context {
	return logging.WithLogger(ctx, s.logger)
}

// Snapshot returns a deep copy of the graph.
func (s *Session) Snapshot() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Clone()
}

// Node returns a copy of one node.
func (s *Session) Node(id string) (*graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.findLocked(id)
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// Restore replaces the whole graph with a copy of g. The graph is validated
// first; every outstanding invocation becomes stale.
func (s *Session) Restore(ctx context.Context, g *graph.Graph) error {
	ctx = s.ctx(ctx)
	if err := validation.ValidateGraph(g, s.graphOpts); err != nil {
		s.report(ctx, diag.New(diag.Error, sessionSource, "invalid snapshot: %v", err).WithErr(err))
		return fmt.Errorf("restore: %w", err)
	}
	cp := g.Clone()

	s.mu.Lock()
	s.graph.Nodes = cp.Nodes
	s.graph.Edges = cp.Edges
	s.seq.Resync(s.graph.Nodes)
	clear(s.generations)
	nodes, edges := len(cp.Nodes), len(cp.Edges)
	s.mu.Unlock()

	logging.FromContext(ctx).Debug("graph restored", "nodes", nodes, "edges", edges)
	s.publish(Event{Type: EventGraphChanged})
	return nil
}

// AddNode places a copy of the named catalog template at (x, y) under a
// fresh id.
func (s *Session) AddNode(ctx context.Context, template string, x, y float64) (*graph.Node, error) {
	ctx = s.ctx(ctx)
	tpl, err := s.types.Catalog().Template(template)
	if err != nil {
		s.report(ctx, diag.New(diag.Warning, sessionSource, "%v", err).WithErr(err))
		return nil, err
	}

	s.mu.Lock()
	n := graph.Instantiate(tpl, s.seq, x, y)
	err = s.graph.AddNode(n)
	var out *graph.Node
	if err == nil {
		out = n.Clone()
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug("node added", "node_id", out.ID, "template", template)
	s.publish(Event{Type: EventGraphChanged, NodeID: out.ID})
	return out, nil
}

// AddRestoredNode adds a node decoded from a persisted record. A malformed
// record is reported and rejected; the id sequence is advanced so later
// generated ids cannot collide with it.
func (s *Session) AddRestoredNode(ctx context.Context, raw []byte) (*graph.Node, error) {
	ctx = s.ctx(ctx)
	n := graph.RestoreNode(ctx, raw, s.sink)
	if n == nil {
		return nil, graph.ErrMalformedNode
	}
	if err := validation.Struct(n); err != nil {
		s.report(ctx, diag.New(diag.Error, sessionSource, "invalid node data: %v", err).WithErr(err))
		return nil, fmt.Errorf("%w: %w", graph.ErrMalformedNode, err)
	}

	s.mu.Lock()
	err := s.graph.AddNode(n)
	if err == nil {
		s.seq.Advance([]*graph.Node{n})
	}
	s.mu.Unlock()

	if err != nil {
		s.report(ctx, diag.New(diag.Warning, sessionSource, "%v", err).WithErr(err))
		return nil, err
	}
	s.publish(Event{Type: EventGraphChanged, NodeID: n.ID})
	return n.Clone(), nil
}

// RemoveNode deletes a node and its edges. Invocations still running for it
// become stale.
func (s *Session) RemoveNode(ctx context.Context, id string) error {
	ctx = s.ctx(ctx)
	if id == "" {
		return graph.ErrInvalidNodeID
	}
	s.mu.Lock()
	_, err := s.graph.RemoveNode(id)
	delete(s.generations, id)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	logging.FromContext(ctx).Debug("node removed", "node_id", id)
	s.publish(Event{Type: EventGraphChanged, NodeID: id})
	return nil
}

// Connect validates and adds an edge from an output port to an input port.
func (s *Session) Connect(ctx context.Context, src, dst graph.PortID) (*graph.Edge, error) {
	ctx = s.ctx(ctx)
	s.mu.Lock()
	edge, err := s.validator.Connect(ctx, src, dst)
	s.mu.Unlock()

	s.metrics.ConnectionAttempted(err == nil)
	if err != nil {
		return nil, err
	}
	s.publish(Event{Type: EventGraphChanged})
	cp := *edge
	return &cp, nil
}

// Disconnect removes the edge joining a and b.
func (s *Session) Disconnect(ctx context.Context, a, b graph.PortID) error {
	s.mu.Lock()
	err := s.graph.RemoveEdge(a, b)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.publish(Event{Type: EventGraphChanged})
	return nil
}

// ReplaceEdges swaps the whole edge set after checking it against the
// current nodes. On error the graph is unchanged.
func (s *Session) ReplaceEdges(ctx context.Context, edges []*graph.Edge) error {
	ctx = s.ctx(ctx)
	next := make([]*graph.Edge, len(edges))
	for i, e := range edges {
		if e == nil {
			return fmt.Errorf("edges[%d]: %w", i, graph.ErrNilEdge)
		}
		cp := *e
		next[i] = &cp
	}

	s.mu.Lock()
	err := validation.ValidateGraph(&graph.Graph{Nodes: s.graph.Nodes, Edges: next}, s.graphOpts)
	if err == nil {
		err = s.graph.ReplaceEdges(next)
	}
	s.mu.Unlock()

	if err != nil {
		s.report(ctx, diag.New(diag.Warning, sessionSource, "edges rejected: %v", err).WithErr(err))
		return err
	}
	s.publish(Event{Type: EventGraphChanged})
	return nil
}

// UpdatePosition moves a node.
func (s *Session) UpdatePosition(ctx context.Context, id string, x, y float64) error {
	return s.mutate(id, func(n *graph.Node) { n.UpdatePosition(x, y) })
}

// UpdateDimensions resizes a node.
func (s *Session) UpdateDimensions(ctx context.Context, id string, width, height float64) error {
	if width < 0 || height < 0 {
		return graph.ErrInvalidNodeGeometry
	}
	return s.mutate(id, func(n *graph.Node) { n.UpdateDimensions(width, height) })
}

// UpdateOutputData replaces a node's output without propagating it.
func (s *Session) UpdateOutputData(ctx context.Context, id string, v value.Value) error {
	if err := s.mutate(id, func(n *graph.Node) { n.UpdateOutputData(v) }); err != nil {
		return err
	}
	s.publish(Event{Type: EventNodeOutput, NodeID: id, Output: &v})
	return nil
}

func (s *Session) mutate(id string, fn func(n *graph.Node)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.findLocked(id)
	if err != nil {
		return err
	}
	fn(n)
	return nil
}

// Write stores v in an input slot of a node and runs the resulting burst.
// The slot must be one the node declares.
func (s *Session) Write(ctx context.Context, id string, port int, v value.Value) (propagation.BurstStats, error) {
	ctx = s.ctx(ctx)
	if id == "" {
		return propagation.BurstStats{}, graph.ErrInvalidNodeID
	}
	if port < 0 {
		return propagation.BurstStats{}, fmt.Errorf("%w: %d", graph.ErrInvalidPortIndex, port)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.findLocked(id)
	if err != nil {
		s.report(ctx, diag.New(diag.Error, sessionSource, "%v", err).WithErr(err))
		return propagation.BurstStats{}, err
	}
	if port >= len(node.InputTypes) {
		err := fmt.Errorf("%w: node %s declares %d inputs, got %d", graph.ErrInvalidPortIndex, id, len(node.InputTypes), port)
		s.report(ctx, diag.New(diag.Warning, sessionSource, "%v", err).WithNode(id).WithErr(err))
		return propagation.BurstStats{}, err
	}
	return s.engine.Write(ctx, id, port, v)
}

// Submit sets a node's output and forwards it along its first outgoing
// edge. It reports whether anything was forwarded.
func (s *Session) Submit(ctx context.Context, id string, out value.Value) (propagation.BurstStats, bool, error) {
	ctx = s.ctx(ctx)
	s.mu.Lock()
	node, err := s.findLocked(id)
	if err != nil {
		s.mu.Unlock()
		return propagation.BurstStats{}, false, err
	}
	node.UpdateOutputData(out)
	stats, forwarded, err := s.engine.Submit(ctx, id, out)
	s.mu.Unlock()

	s.publish(Event{Type: EventNodeOutput, NodeID: id, Output: &out})
	if err != nil {
		return stats, forwarded, err
	}
	if forwarded {
		s.report(ctx, diag.New(diag.Success, sessionSource, "Data submitted from node %s", id).WithNode(id))
	} else {
		s.report(ctx, diag.New(diag.Info, sessionSource, "node %s has no outgoing connection", id).WithNode(id))
	}
	return stats, forwarded, nil
}

func (s *Session) findLocked(id string) (*graph.Node, error) {
	if id == "" {
		return nil, graph.ErrInvalidNodeID
	}
	n := s.graph.FindNode(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	return n, nil
}

func (s *Session) report(ctx context.Context, d diag.Diagnostic) {
	s.sink.Report(ctx, d)
}

func (s *Session) publish(e Event) {
	e.SessionID = s.id
	s.bus.Publish(e)
}

// burstRelay forwards finished bursts to metrics and subscribers.
type burstRelay struct{ s *Session }

func (r burstRelay) BurstFinished(trigger propagation.Trigger, stats propagation.BurstStats) {
	r.s.metrics.BurstFinished(trigger, stats)
	r.s.publish(Event{Type: EventBurst, Burst: &stats})
}
