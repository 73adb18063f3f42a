// Package graph provides the core graph domain entities: nodes, their ports,
// the edges between them and the id sequence that names new nodes.
package graph

import (
	"fmt"
	"slices"
)

// Graph holds the node collection and the edge collection of one editor
// session.
// PRINCIPLES:
// - KISS: two ordered slices; iteration order is propagation order
// - SRP: structure only, no type rules and no propagation
// - Not safe for concurrent use: callers serialize access
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{Nodes: []*Node{}, Edges: []*Edge{}}
}

func mustNodeID(id string) {
	if id == "" {
		panic("graph: empty node id")
	}
}

// FindNode returns the node with the given id or nil.
func (g *Graph) FindNode(id string) *Node {
	mustNodeID(id)
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// HasNode reports whether a node with the id exists.
func (g *Graph) HasNode(id string) bool {
	return g.FindNode(id) != nil
}

// AddNode adds a node to the graph
// PRINCIPLES:
// - KISS: Direct and simple implementation
// - SRP: Only adds node, doesn't validate graph
func (g *Graph) AddNode(node *Node) error {
	if node == nil {
		return ErrNilNode
	}
	if err := node.Validate(); err != nil {
		return err
	}
	if g.FindNode(node.ID) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
	}
	g.Nodes = append(g.Nodes, node)
	return nil
}

// RemoveNode deletes a node together with every edge touching it.
func (g *Graph) RemoveNode(id string) (*Node, error) {
	mustNodeID(id)
	idx := slices.IndexFunc(g.Nodes, func(n *Node) bool { return n.ID == id })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	removed := g.Nodes[idx]
	g.Nodes = slices.Delete(g.Nodes, idx, idx+1)
	g.Edges = slices.DeleteFunc(g.Edges, func(e *Edge) bool {
		return e.SourceNode() == id || e.TargetNode() == id
	})
	return removed, nil
}

// AddEdge adds an edge whose endpoints exist in the graph. Type
// compatibility and fan-in are the connection validator's concern.
func (g *Graph) AddEdge(edge *Edge) error {
	if err := g.checkEdge(edge); err != nil {
		return err
	}
	if g.EdgeExists(edge.SourceID, edge.TargetID) {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, edge)
	}
	g.Edges = append(g.Edges, edge)
	return nil
}

func (g *Graph) checkEdge(edge *Edge) error {
	if edge == nil {
		return ErrNilEdge
	}
	if err := edge.Validate(); err != nil {
		return err
	}
	if g.FindNode(edge.SourceNode()) == nil {
		return fmt.Errorf("%w: %s", ErrSourceNodeNotFound, edge.SourceNode())
	}
	if g.FindNode(edge.TargetNode()) == nil {
		return fmt.Errorf("%w: %s", ErrTargetNodeNotFound, edge.TargetNode())
	}
	return nil
}

// RemoveEdge deletes the edge joining a and b, in either direction.
func (g *Graph) RemoveEdge(a, b PortID) error {
	idx := slices.IndexFunc(g.Edges, func(e *Edge) bool { return e.Connects(a, b) })
	if idx < 0 {
		return fmt.Errorf("%w: %s - %s", ErrEdgeNotFound, a, b)
	}
	g.Edges = slices.Delete(g.Edges, idx, idx+1)
	return nil
}

// ReplaceEdges swaps the whole edge set. Either every edge is accepted or the
// graph is left unchanged.
func (g *Graph) ReplaceEdges(edges []*Edge) error {
	next := make([]*Edge, 0, len(edges))
	for _, e := range edges {
		if err := g.checkEdge(e); err != nil {
			return err
		}
		for _, prev := range next {
			if prev.Connects(e.SourceID, e.TargetID) {
				return fmt.Errorf("%w: %s", ErrDuplicateEdge, e)
			}
		}
		next = append(next, e)
	}
	g.Edges = next
	return nil
}

// EdgeExists reports whether a and b are already joined, in either direction.
func (g *Graph) EdgeExists(a, b PortID) bool {
	return slices.ContainsFunc(g.Edges, func(e *Edge) bool { return e.Connects(a, b) })
}

// OutgoingEdges returns, in edge order, every edge leaving the node.
func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	mustNodeID(nodeID)
	var out []*Edge
	for _, e := range g.Edges {
		if e.SourceNode() == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// FirstOutgoingEdge returns the first edge leaving the node or nil.
func (g *Graph) FirstOutgoingEdge(nodeID string) *Edge {
	mustNodeID(nodeID)
	for _, e := range g.Edges {
		if e.SourceNode() == nodeID {
			return e
		}
	}
	return nil
}

// IncomingEdge returns the edge feeding the given input port or nil.
func (g *Graph) IncomingEdge(target PortID) *Edge {
	for _, e := range g.Edges {
		if e.TargetID == target {
			return e
		}
	}
	return nil
}

// IsPortConnected reports whether any edge ends at port in the given role.
func (g *Graph) IsPortConnected(port PortID, dir Direction) bool {
	for _, e := range g.Edges {
		if dir == Input && e.TargetID == port {
			return true
		}
		if dir == Output && e.SourceID == port {
			return true
		}
	}
	return false
}

// ConnectedNodes returns, in node order, the nodes fed by the given node.
func (g *Graph) ConnectedNodes(nodeID string) []*Node {
	mustNodeID(nodeID)
	var out []*Node
	for _, n := range g.Nodes {
		for _, e := range g.Edges {
			if e.SourceNode() == nodeID && e.TargetNode() == n.ID {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Nodes: make([]*Node, len(g.Nodes)),
		Edges: make([]*Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		c.Nodes[i] = n.Clone()
	}
	for i, e := range g.Edges {
		edge := *e
		c.Edges[i] = &edge
	}
	return c
}
