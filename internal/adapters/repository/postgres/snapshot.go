// Package postgres stores snapshots in PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
	"github.com/seehiong/micronaut-optimizer/pkg/serialization"
)

// SnapshotSaver implements snapshot.Saver for PostgreSQL.
type SnapshotSaver struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
	tableName  string
}

// Connect opens a pool for databaseURL and creates the tables.
func Connect(ctx context.Context, databaseURL string, serializer *serialization.Serializer) (*SnapshotSaver, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s := NewSnapshotSaver(pool, serializer)
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewSnapshotSaver wraps a pool. A nil serializer means
// serialization.DefaultSerializer.
func NewSnapshotSaver(pool *pgxpool.Pool, serializer *serialization.Serializer) *SnapshotSaver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &SnapshotSaver{pool: pool, serializer: serializer, tableName: "snapshots"}
}

// WithTableName overrides the table name; pgx.Identifier quotes it.
func (s *SnapshotSaver) WithTableName(name string) *SnapshotSaver {
	if name != "" {
		s.tableName = name
	}
	return s
}

func (s *SnapshotSaver) table() string {
	return pgx.Identifier{s.tableName}.Sanitize()
}

// Save stores a snapshot, replacing one with the same ID.
func (s *SnapshotSaver) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return snapshot.ErrInvalidSnapshotID
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("snapshot validation failed: %w", err)
	}

	data, err := s.serializer.Serialize(snap.Graph)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot graph: %w", err)
	}
	metadataJSON, err := json.Marshal(snap.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, name, graph, metadata, timestamp, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			name = EXCLUDED.name,
			graph = EXCLUDED.graph,
			metadata = EXCLUDED.metadata,
			timestamp = EXCLUDED.timestamp,
			version = EXCLUDED.version
	`, s.table())

	_, err = s.pool.Exec(ctx, query,
		snap.ID, snap.SessionID, snap.Name, data, metadataJSON, snap.Timestamp, snap.Version)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by ID.
func (s *SnapshotSaver) Load(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if id == "" {
		return nil, snapshot.ErrInvalidSnapshotID
	}

	query := fmt.Sprintf(`
		SELECT id, session_id, name, graph, metadata, timestamp, version
		FROM %s
		WHERE id = $1
	`, s.table())

	snap, err := s.scan(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, snapshot.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

// List retrieves snapshots matching the filter, newest first.
func (s *SnapshotSaver) List(ctx context.Context, filter snapshot.Filter) ([]*snapshot.Snapshot, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*snapshot.Snapshot
	for rows.Next() {
		snap, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return out, nil
}

// Delete removes a snapshot by ID.
func (s *SnapshotSaver) Delete(ctx context.Context, id string) error {
	if id == "" {
		return snapshot.ErrInvalidSnapshotID
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table())
	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return snapshot.ErrSnapshotNotFound
	}
	return nil
}

// CreateTables creates the snapshot table and its indexes.
func (s *SnapshotSaver) CreateTables(ctx context.Context) error {
	idx := func(col string) string {
		return pgx.Identifier{"idx_" + s.tableName + "_" + col}.Sanitize()
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id VARCHAR(255) PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			graph BYTEA NOT NULL,
			metadata JSONB,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version VARCHAR(50) NOT NULL DEFAULT '1'
		);

		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (session_id);
		CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s (timestamp);
		CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s USING GIN ((metadata -> 'tags'));
	`, s.table(), idx("session_id"), idx("timestamp"), idx("tags"))

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *SnapshotSaver) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *SnapshotSaver) scan(row pgx.Row) (*snapshot.Snapshot, error) {
	var (
		snap         snapshot.Snapshot
		data         []byte
		metadataJSON []byte
	)
	if err := row.Scan(&snap.ID, &snap.SessionID, &snap.Name, &data, &metadataJSON, &snap.Timestamp, &snap.Version); err != nil {
		return nil, err
	}
	snap.Timestamp = snap.Timestamp.UTC()

	snap.Graph = graph.New()
	if err := s.serializer.Deserialize(data, snap.Graph); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot graph: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &snap.Metadata); err != nil {
			return nil, fmt.Errorf("failed to deserialize metadata: %w", err)
		}
	}
	return &snap, nil
}

// buildListQuery constructs the SQL query for listing snapshots.
func (s *SnapshotSaver) buildListQuery(filter snapshot.Filter) (string, []any) {
	query := fmt.Sprintf("SELECT id, session_id, name, graph, metadata, timestamp, version FROM %s WHERE 1=1", s.table())
	args := make([]any, 0, 6)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SessionID != "" {
		query += " AND session_id = " + next(filter.SessionID)
	}
	if filter.Since != nil {
		query += " AND timestamp > " + next(*filter.Since)
	}
	if filter.Before != nil {
		query += " AND timestamp < " + next(*filter.Before)
	}
	if len(filter.Tags) > 0 {
		tags, _ := json.Marshal(filter.Tags)
		query += " AND metadata -> 'tags' @> " + next(string(tags)) + "::jsonb"
	}

	query += " ORDER BY timestamp DESC, id"

	if filter.Limit > 0 {
		query += " LIMIT " + next(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + next(filter.Offset)
	}
	return query, args
}
