package dto

import (
	"time"

	"github.com/seehiong/micronaut-optimizer/internal/app/usecases"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/propagation"
	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// SessionResponse describes a live session.
type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
}

// NewSessionResponse summarizes s.
func NewSessionResponse(s *usecases.Session) SessionResponse {
	g := s.Snapshot()
	return SessionResponse{
		ID:        s.ID(),
		CreatedAt: s.CreatedAt(),
		NodeCount: len(g.Nodes),
		EdgeCount: len(g.Edges),
	}
}

// GraphResponse is the {nodes, edges} shape of a session.
type GraphResponse struct {
	SessionID string       `json:"session_id"`
	Graph     *graph.Graph `json:"graph"`
}

// CatalogResponse lists the node templates.
type CatalogResponse struct {
	Templates []*graph.Node `json:"templates"`
}

// BurstResponse reports the work a write or submit caused.
type BurstResponse struct {
	Stats     propagation.BurstStats `json:"stats"`
	Forwarded *bool                  `json:"forwarded,omitempty"`
}

// InvokeAccepted answers an async invocation.
type InvokeAccepted struct {
	NodeID string              `json:"node_id"`
	Mode   usecases.InvokeMode `json:"mode"`
}

// SnapshotSummary describes a stored snapshot without its graph.
type SnapshotSummary struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Name      string            `json:"name,omitempty"`
	Metadata  snapshot.Metadata `json:"metadata"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewSnapshotSummary drops the graph of s.
func NewSnapshotSummary(s *snapshot.Snapshot) SnapshotSummary {
	return SnapshotSummary{
		ID:        s.ID,
		SessionID: s.SessionID,
		Name:      s.Name,
		Metadata:  s.Metadata,
		Timestamp: s.Timestamp,
	}
}
