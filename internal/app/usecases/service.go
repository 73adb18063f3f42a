package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seehiong/micronaut-optimizer/internal/core/porttype"
	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
	"github.com/seehiong/micronaut-optimizer/pkg/validation"
)

// EditorService manages live sessions and their snapshots
// PRINCIPLES:
// - SRP: lifecycle and persistence only, editing lives on Session
// - DIP: depends on SessionStore and snapshot.Saver abstractions
type EditorService struct {
	config   SessionConfig
	sessions SessionStore
	saver    snapshot.Saver
	logger   *slog.Logger
}

// NewEditorService creates a service building sessions from config. A nil
// saver disables snapshot persistence.
func NewEditorService(config SessionConfig, sessions SessionStore, saver snapshot.Saver) *EditorService {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EditorService{config: config, sessions: sessions, saver: saver, logger: logger}
}

// Catalog returns the template catalog sessions are built with.
func (e *EditorService) Catalog() *porttype.Catalog { return e.config.Catalog }

// Create starts an empty session.
func (e *EditorService) Create(ctx context.Context) (*Session, error) {
	s := NewSession(e.config)
	if err := e.sessions.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to register session: %w", err)
	}
	e.logger.Debug("session created", "session_id", s.ID())
	return s, nil
}

// Get returns a live session.
func (e *EditorService) Get(ctx context.Context, id string) (*Session, error) {
	return e.sessions.Get(ctx, id)
}

// List returns every live session.
func (e *EditorService) List(ctx context.Context) ([]*Session, error) {
	return e.sessions.List(ctx)
}

// Close ends a session and forgets it.
func (e *EditorService) Close(ctx context.Context, id string) error {
	s, err := e.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	s.Close()
	return e.sessions.Delete(ctx, id)
}

// Save persists the current graph of a session.
func (e *EditorService) Save(ctx context.Context, sessionID, name string, tags []string) (*snapshot.Snapshot, error) {
	if e.saver == nil {
		return nil, ErrSnapshotRequired
	}
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := snapshot.New(s.ID(), name, s.Snapshot())
	snap.Metadata.Source = "session"
	snap.Metadata.Tags = tags
	if err := e.saver.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	e.logger.Info("snapshot saved", "session_id", sessionID, "snapshot_id", snap.ID,
		"nodes", snap.Metadata.NodeCount, "edges", snap.Metadata.EdgeCount)
	return snap, nil
}

// Snapshot loads a stored snapshot.
func (e *EditorService) Snapshot(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if e.saver == nil {
		return nil, ErrSnapshotRequired
	}
	return e.saver.Load(ctx, id)
}

// Snapshots lists stored snapshots.
func (e *EditorService) Snapshots(ctx context.Context, filter snapshot.Filter) ([]*snapshot.Snapshot, error) {
	if e.saver == nil {
		return nil, ErrSnapshotRequired
	}
	return e.saver.List(ctx, filter)
}

// Open starts a new session holding the graph of a stored snapshot.
func (e *EditorService) Open(ctx context.Context, snapshotID string) (*Session, error) {
	snap, err := e.Snapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateSnapshot(snap); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	s, err := e.Create(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Restore(ctx, snap.Graph); err != nil {
		_ = e.Close(ctx, s.ID())
		return nil, err
	}
	return s, nil
}
