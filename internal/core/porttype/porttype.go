// Package porttype decides which port types may be connected.
//
// Primitive labels widen from scalar to 1-D to 2-D arrays and never narrow.
// "any" accepts every source. Labels outside the primitive table are resolved
// against the archetype catalog, and anything still unknown is rejected.
package porttype

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
)

// Any is the universal sink label.
const Any = "any"

const source = "porttype"

var (
	ErrPortOutOfRange = errors.New("port index outside declared types")
	ErrDirection      = errors.New("port direction does not match")
)

var primitives = map[string][]string{
	"double":      {"double", "double[]", "double[][]"},
	"double[]":    {"double[]", "double[][]"},
	"double[][]":  {"double[][]"},
	"int":         {"int", "int[]", "int[][]"},
	"int[]":       {"int[]", "int[][]"},
	"int[][]":     {"int[][]"},
	"boolean":     {"boolean", "boolean[]", "boolean[][]"},
	"boolean[]":   {"boolean[]", "boolean[][]"},
	"boolean[][]": {"boolean[][]"},
	"string":      {"string", "string[]", "string[][]"},
	"string[]":    {"string[]", "string[][]"},
	"string[][]":  {"string[][]"},
	Any:           {Any},
}

// Normalize strips every whitespace rune from a type label.
func Normalize(t string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, t)
}

// TypeOf resolves the normalized declared type of a port on node.
func TypeOf(id graph.PortID, node *graph.Node) (string, error) {
	port, err := graph.ParsePortID(id)
	if err != nil {
		return "", err
	}
	if port.NodeID != node.ID {
		return "", fmt.Errorf("%w: port %s does not belong to node %s", graph.ErrInvalidPortID, id, node.ID)
	}
	t, ok := node.PortType(port.Dir, port.Index)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPortOutOfRange, id)
	}
	return Normalize(t), nil
}

// System answers compatibility questions and reports the ones it cannot
// answer.
type System struct {
	catalog *Catalog
	sink    diag.Sink
}

// NewSystem builds a type system over catalog. A nil sink discards
// diagnostics.
func NewSystem(catalog *Catalog, sink diag.Sink) *System {
	if sink == nil {
		sink = diag.Discard
	}
	return &System{catalog: catalog, sink: sink}
}

// Catalog returns the archetype catalog backing the fallback rule.
func (s *System) Catalog() *Catalog { return s.catalog }

// IsCompatible reports whether a value of sourceType may flow into a port of
// targetType. Unknown source labels fail closed with a Warning.
func (s *System) IsCompatible(ctx context.Context, sourceType, targetType string) bool {
	src, dst := Normalize(sourceType), Normalize(targetType)

	if dst == Any {
		return true
	}
	if targets, ok := primitives[src]; ok {
		return slices.Contains(targets, dst)
	}
	if group, ok := s.catalog.archetypeGroup(src); ok {
		return slices.Contains(group, dst)
	}

	s.sink.Report(ctx, diag.New(diag.Warning, source,
		"no compatibility rules found for types: %s, %s", src, dst))
	return false
}

// DecodePort parses a port id, reporting a Warning when it is malformed.
func (s *System) DecodePort(ctx context.Context, id graph.PortID) (graph.Port, bool) {
	port, err := graph.ParsePortID(id)
	if err != nil {
		s.sink.Report(ctx, diag.New(diag.Warning, source, "invalid port id %q", id).WithErr(err))
		return graph.Port{}, false
	}
	return port, true
}
