package dto

import "errors"

// Request errors
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrAmbiguousNode   = errors.New("request must carry either a template or a node record, not both")
	ErrMissingNodeSource = errors.New("request must carry a template or a node record")
)
