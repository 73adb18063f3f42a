package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

const restoreSource = "graph.restore"

// DecodeNode builds a node from a persisted record. The record must be a JSON
// object; decoding into fresh memory severs every tie to raw.
func DecodeNode(raw []byte) (*Node, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedNode)
	}
	var n Node
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedNode, err)
	}
	return &n, nil
}

// RestoreNode is DecodeNode for untrusted input: a malformed record yields
// nil and an Error diagnostic instead of an error.
func RestoreNode(ctx context.Context, raw []byte, sink diag.Sink) *Node {
	n, err := DecodeNode(raw)
	if err != nil {
		sink.Report(ctx, diag.New(diag.Error, restoreSource, "invalid node data: %v", err).WithErr(err))
		return nil
	}
	return n
}

// Instantiate copies a template under a fresh id from seq and places it at
// (x, y). Runtime state of the template is not carried over.
func Instantiate(template *Node, seq *Sequence, x, y float64) *Node {
	n := template.Clone()
	n.ID = seq.Next()
	n.UpdatePosition(x, y)
	n.InputData = []*value.Value{}
	n.OutputData = value.Text("")
	if n.Width == 0 && n.Height == 0 {
		n.UpdateDimensions(DefaultWidth, DefaultHeight)
	}
	return n
}
