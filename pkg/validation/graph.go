package validation

import (
	"errors"
	"fmt"

	"github.com/seehiong/micronaut-optimizer/internal/core/connection"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
)

// ErrNilGraph is returned for a missing graph.
var ErrNilGraph = errors.New("graph is nil")

// GraphOptions controls optional validation checks.
type GraphOptions struct {
	// CheckCycles rejects graphs with a directed node-level cycle.
	CheckCycles bool
}

// ValidateGraph performs structural validation of a graph that bypassed the
// editing operations, typically one decoded from a snapshot. Field-level
// problems come back as ValidationErrors; graph-level problems wrap the
// graph and connection sentinels.
func ValidateGraph(g *graph.Graph, opts ...GraphOptions) error {
	if g == nil {
		return ErrNilGraph
	}
	var cfg GraphOptions
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var fieldErrs ValidationErrors
	seenNodes := make(map[string]struct{}, len(g.Nodes))
	for i, n := range g.Nodes {
		if n == nil {
			return fmt.Errorf("nodes[%d]: %w", i, graph.ErrNilNode)
		}
		if err := Struct(n); err != nil {
			var ve ValidationErrors
			if !errors.As(err, &ve) {
				return fmt.Errorf("nodes[%d]: %w", i, err)
			}
			fieldErrs = append(fieldErrs, ve.Prefix(fmt.Sprintf("nodes[%d].", i))...)
			continue
		}
		if _, dup := seenNodes[n.ID]; dup {
			return fmt.Errorf("%w: %s", graph.ErrDuplicateNode, n.ID)
		}
		seenNodes[n.ID] = struct{}{}
	}

	for i, e := range g.Edges {
		if e == nil {
			return fmt.Errorf("edges[%d]: %w", i, graph.ErrNilEdge)
		}
		if err := Struct(e); err != nil {
			var ve ValidationErrors
			if !errors.As(err, &ve) {
				return fmt.Errorf("edges[%d]: %w", i, err)
			}
			fieldErrs = append(fieldErrs, ve.Prefix(fmt.Sprintf("edges[%d].", i))...)
		}
	}
	if len(fieldErrs) > 0 {
		return fieldErrs
	}

	occupied := make(map[graph.PortID]struct{}, len(g.Edges))
	type edgeKey struct{ s, t graph.PortID }
	seenEdges := make(map[edgeKey]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if err := checkEndpoint(g, e.SourceID, graph.ErrSourceNodeNotFound); err != nil {
			return err
		}
		if err := checkEndpoint(g, e.TargetID, graph.ErrTargetNodeNotFound); err != nil {
			return err
		}
		k := edgeKey{e.SourceID, e.TargetID}
		if _, dup := seenEdges[k]; dup {
			return fmt.Errorf("%w: %s", graph.ErrDuplicateEdge, e)
		}
		seenEdges[k] = struct{}{}
		if _, taken := occupied[e.TargetID]; taken {
			return fmt.Errorf("%w: %s", connection.ErrInputPortOccupied, e.TargetID)
		}
		occupied[e.TargetID] = struct{}{}
	}

	if cfg.CheckCycles && g.HasCycle() {
		return graph.ErrCyclicGraph
	}
	return nil
}

// checkEndpoint verifies that the port's node exists and declares the port.
func checkEndpoint(g *graph.Graph, id graph.PortID, missing error) error {
	port, err := graph.ParsePortID(id)
	if err != nil {
		return err
	}
	n := g.FindNode(port.NodeID)
	if n == nil {
		return fmt.Errorf("%w: %s", missing, port.NodeID)
	}
	if _, ok := n.PortType(port.Dir, port.Index); !ok {
		return fmt.Errorf("%w: %s", graph.ErrInvalidPortIndex, id)
	}
	return nil
}

// ValidateSnapshot checks the snapshot envelope and its graph.
func ValidateSnapshot(s *snapshot.Snapshot, opts ...GraphOptions) error {
	if s == nil {
		return snapshot.ErrNilGraph
	}
	if err := s.Validate(); err != nil {
		return err
	}
	return ValidateGraph(s.Graph, opts...)
}
