// Package graph defines domain-specific errors
package graph

import "errors"

// Domain errors - DRY principle: defined once, used everywhere
var (
	// Node errors
	ErrNilNode             = errors.New("node cannot be nil")
	ErrInvalidNodeID       = errors.New("invalid node ID")
	ErrNodeNotFound        = errors.New("node not found")
	ErrDuplicateNode       = errors.New("duplicate node ID")
	ErrInvalidTrigger      = errors.New("invalid trigger action")
	ErrInvalidTransform    = errors.New("invalid transform type")
	ErrMalformedNode       = errors.New("malformed node record")
	ErrTemplateNotFound    = errors.New("node template not found")
	ErrInvalidPortIndex    = errors.New("port index out of range")
	ErrInvalidNodeGeometry = errors.New("invalid node dimensions")

	// Port and edge errors
	ErrInvalidPortID      = errors.New("invalid port ID")
	ErrNilEdge            = errors.New("edge cannot be nil")
	ErrInvalidSource      = errors.New("edge source must be an output port")
	ErrInvalidTarget      = errors.New("edge target must be an input port")
	ErrSourceNodeNotFound = errors.New("source node not found")
	ErrTargetNodeNotFound = errors.New("target node not found")
	ErrDuplicateEdge      = errors.New("duplicate edge")
	ErrEdgeNotFound       = errors.New("edge not found")
	ErrCyclicGraph        = errors.New("cyclic dependency detected")
)
