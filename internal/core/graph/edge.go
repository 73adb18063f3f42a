// Package graph provides edge and port definitions
package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction tells input ports from output ports.
type Direction byte

const (
	// Input marks a port that receives values
	Input Direction = 'i'
	// Output marks a port that emits the node's output
	Output Direction = 'o'
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("direction(%q)", byte(d))
	}
}

// PortID addresses a port as "<nodeId>-<i|o><index>", e.g. "n1-i0".
type PortID string

// Port is a decoded PortID.
type Port struct {
	NodeID string
	Dir    Direction
	Index  int
}

// ID encodes the port back into its string form.
func (p Port) ID() PortID {
	return NewPortID(p.NodeID, p.Dir, p.Index)
}

// NewPortID builds the identifier of a node port.
func NewPortID(nodeID string, dir Direction, index int) PortID {
	return PortID(nodeID + "-" + string(rune(dir)) + strconv.Itoa(index))
}

// NodeID returns the node part of the identifier, or "" when there is none.
func (p PortID) NodeID() string {
	i := strings.LastIndexByte(string(p), '-')
	if i < 0 {
		return ""
	}
	return string(p[:i])
}

// ParsePortID decodes a port identifier.
// PRINCIPLES:
// - Fail closed: a malformed ID never yields a guessed index
func ParsePortID(id PortID) (Port, error) {
	s := string(id)
	i := strings.LastIndexByte(s, '-')
	if i <= 0 {
		return Port{}, fmt.Errorf("%w: %q", ErrInvalidPortID, s)
	}
	rest := s[i+1:]
	if len(rest) < 2 {
		return Port{}, fmt.Errorf("%w: %q", ErrInvalidPortID, s)
	}

	dir := Direction(rest[0])
	if dir != Input && dir != Output {
		return Port{}, fmt.Errorf("%w: %q: direction must be i or o", ErrInvalidPortID, s)
	}
	for _, c := range rest[1:] {
		if c < '0' || c > '9' {
			return Port{}, fmt.Errorf("%w: %q: index must be numeric", ErrInvalidPortID, s)
		}
	}
	idx, err := strconv.Atoi(rest[1:])
	if err != nil {
		return Port{}, fmt.Errorf("%w: %q: %v", ErrInvalidPortID, s, err)
	}
	return Port{NodeID: s[:i], Dir: dir, Index: idx}, nil
}

// Edge connects an output port to an input port.
// PRINCIPLES:
// - KISS: two port IDs, nothing else
// - Immutable once accepted into a graph
type Edge struct {
	SourceID PortID `json:"sourceId" validate:"required,port_id"`
	TargetID PortID `json:"targetId" validate:"required,port_id"`
}

// NewEdge is a convenience constructor.
func NewEdge(source, target PortID) *Edge {
	return &Edge{SourceID: source, TargetID: target}
}

// Validate ensures edge integrity
// PRINCIPLES:
// - SRP: structural checks only, graph membership is checked by Graph.AddEdge
func (e *Edge) Validate() error {
	src, err := ParsePortID(e.SourceID)
	if err != nil {
		return err
	}
	if src.Dir != Output {
		return fmt.Errorf("%w: %s", ErrInvalidSource, e.SourceID)
	}
	dst, err := ParsePortID(e.TargetID)
	if err != nil {
		return err
	}
	if dst.Dir != Input {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, e.TargetID)
	}
	return nil
}

// Connects reports whether the edge joins a and b in either direction.
func (e *Edge) Connects(a, b PortID) bool {
	return (e.SourceID == a && e.TargetID == b) || (e.SourceID == b && e.TargetID == a)
}

// SourceNode returns the ID of the producing node.
func (e *Edge) SourceNode() string { return e.SourceID.NodeID() }

// TargetNode returns the ID of the consuming node.
func (e *Edge) TargetNode() string { return e.TargetID.NodeID() }

func (e *Edge) String() string {
	return string(e.SourceID) + " -> " + string(e.TargetID)
}
