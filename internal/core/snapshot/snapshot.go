// Package snapshot defines the persisted form of an editor graph and the
// interface stores implement to keep it.
package snapshot

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
)

// Version is the snapshot format written by this build.
const Version = "1"

// Snapshot is a saved graph: the {nodes, edges} shape plus bookkeeping.
// PRINCIPLES:
// - KISS: the graph travels as-is, stores never interpret it
// - SRP: only carries data, validation of graph contents lives elsewhere
type Snapshot struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Name      string       `json:"name,omitempty"`
	Graph     *graph.Graph `json:"graph"`
	Metadata  Metadata     `json:"metadata"`
	Timestamp time.Time    `json:"timestamp"`
	Version   string       `json:"version"`
}

// Metadata describes a snapshot without decoding its graph.
type Metadata struct {
	NodeCount int      `json:"node_count"`
	EdgeCount int      `json:"edge_count"`
	Source    string   `json:"source,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// New captures a deep copy of g for sessionID under a fresh id.
func New(sessionID, name string, g *graph.Graph) *Snapshot {
	cp := g.Clone()
	return &Snapshot{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		Graph:     cp,
		Metadata:  Metadata{NodeCount: len(cp.Nodes), EdgeCount: len(cp.Edges)},
		Timestamp: time.Now().UTC(),
		Version:   Version,
	}
}

// Validate checks the envelope. Graph contents are checked by
// pkg/validation.
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return ErrInvalidSnapshotID
	}
	if s.SessionID == "" {
		return ErrInvalidSessionID
	}
	if s.Graph == nil {
		return ErrNilGraph
	}
	return nil
}

// HasTags reports whether the snapshot carries every tag in tags.
func (s *Snapshot) HasTags(tags []string) bool {
	for _, t := range tags {
		if !slices.Contains(s.Metadata.Tags, t) {
			return false
		}
	}
	return true
}
