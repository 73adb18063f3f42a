package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/seehiong/micronaut-optimizer/internal/app/usecases"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

// CreateNodeRequest places a node, either from a catalog template or from a
// persisted node record.
type CreateNodeRequest struct {
	Template string          `json:"template,omitempty" validate:"omitempty,max=100"`
	Node     json.RawMessage `json:"node,omitempty"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
}

// Validate ensures exactly one source is given.
func (r CreateNodeRequest) Validate() error {
	switch {
	case r.Template != "" && len(r.Node) > 0:
		return ErrAmbiguousNode
	case r.Template == "" && len(r.Node) == 0:
		return ErrMissingNodeSource
	}
	return nil
}

// ConnectRequest joins two ports. Disconnect accepts the same body and
// ignores the order.
type ConnectRequest struct {
	Source graph.PortID `json:"source" validate:"required,port_id"`
	Target graph.PortID `json:"target" validate:"required,port_id"`
}

// ReplaceEdgesRequest swaps the whole edge set.
type ReplaceEdgesRequest struct {
	Edges []*graph.Edge `json:"edges" validate:"dive,required"`
}

// PositionRequest moves a node.
type PositionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DimensionsRequest resizes a node.
type DimensionsRequest struct {
	Width  float64 `json:"width" validate:"gte=0"`
	Height float64 `json:"height" validate:"gte=0"`
}

// WriteRequest stores a value in an input slot.
type WriteRequest struct {
	Port  int         `json:"port" validate:"gte=0"`
	Value value.Value `json:"value"`
}

// SubmitRequest sets a node's output and forwards it.
type SubmitRequest struct {
	Output value.Value `json:"output"`
}

// OutputRequest replaces a node's output without propagating it.
type OutputRequest struct {
	Output value.Value `json:"output"`
}

// InvokeRequest runs a node through an external service. Async requests
// return at once; the outcome arrives on the session event stream.
type InvokeRequest struct {
	Mode  string `json:"mode" validate:"required,oneof=stream remote-llm local-llm"`
	Async bool   `json:"async"`
}

// InvokeMode returns the typed mode.
func (r InvokeRequest) InvokeMode() usecases.InvokeMode {
	return usecases.InvokeMode(r.Mode)
}

// SaveRequest persists the current graph of a session.
type SaveRequest struct {
	Name string   `json:"name" validate:"max=200"`
	Tags []string `json:"tags" validate:"max=32,dive,min=1,max=64"`
}

// SnapshotQuery filters the snapshot listing. Bound from the query string.
type SnapshotQuery struct {
	SessionID string    `form:"session_id" validate:"omitempty,uuid"`
	Limit     int       `form:"limit" validate:"gte=0,max=1000"`
	Offset    int       `form:"offset" validate:"gte=0"`
	Since     time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Before    time.Time `form:"before" time_format:"2006-01-02T15:04:05Z07:00"`
	Tags      []string  `form:"tag"`
}

// Filter converts the query into a store filter.
func (q SnapshotQuery) Filter() (snapshot.Filter, error) {
	f := snapshot.Filter{SessionID: q.SessionID, Limit: q.Limit, Offset: q.Offset, Tags: q.Tags}
	if !q.Since.IsZero() {
		since := q.Since
		f.Since = &since
	}
	if !q.Before.IsZero() {
		before := q.Before
		f.Before = &before
	}
	if err := f.Validate(); err != nil {
		return snapshot.Filter{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return f, nil
}
