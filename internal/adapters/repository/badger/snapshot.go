// Package badger stores snapshots in an embedded BadgerDB key-value store.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
	"github.com/seehiong/micronaut-optimizer/pkg/serialization"
)

const keyPrefix = "snapshot/"

// Config holds configuration for the store.
type Config struct {
	// Path is the database directory. Empty opens an in-memory store.
	Path string

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// Serializer encodes snapshots. Nil means serialization.DefaultSerializer.
	Serializer *serialization.Serializer
}

// SnapshotSaver implements snapshot.Saver on BadgerDB.
type SnapshotSaver struct {
	db         *badgerdb.DB
	serializer *serialization.Serializer
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Error(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warn(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Info(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debug(fmt.Sprintf(format, args...)) }

// Open opens the store described by cfg.
func Open(cfg Config) (*SnapshotSaver, error) {
	var opts badgerdb.Options
	if cfg.Path == "" {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return NewSnapshotSaver(db, cfg.Serializer), nil
}

// NewSnapshotSaver wraps an open database.
func NewSnapshotSaver(db *badgerdb.DB, serializer *serialization.Serializer) *SnapshotSaver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &SnapshotSaver{db: db, serializer: serializer}
}

func key(id string) []byte { return []byte(keyPrefix + id) }

// Save stores a snapshot, replacing one with the same ID.
func (s *SnapshotSaver) Save(_ context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return snapshot.ErrInvalidSnapshotID
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("snapshot validation failed: %w", err)
	}
	data, err := s.serializer.Serialize(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(snap.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by ID.
func (s *SnapshotSaver) Load(_ context.Context, id string) (*snapshot.Snapshot, error) {
	if id == "" {
		return nil, snapshot.ErrInvalidSnapshotID
	}
	var snap *snapshot.Snapshot
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(data []byte) error {
			snap, err = s.decode(data)
			return err
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, snapshot.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

// List scans every snapshot and applies the filter in memory.
func (s *SnapshotSaver) List(ctx context.Context, filter snapshot.Filter) ([]*snapshot.Snapshot, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}

	var all []*snapshot.Snapshot
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(data []byte) error {
				snap, err := s.decode(data)
				if err != nil {
					return err
				}
				all = append(all, snap)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return filter.Apply(all), nil
}

// Delete removes a snapshot by ID.
func (s *SnapshotSaver) Delete(_ context.Context, id string) error {
	if id == "" {
		return snapshot.ErrInvalidSnapshotID
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(key(id)); err != nil {
			return err
		}
		return txn.Delete(key(id))
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return snapshot.ErrSnapshotNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SnapshotSaver) Close() error {
	return s.db.Close()
}

func (s *SnapshotSaver) decode(data []byte) (*snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	if err := s.serializer.Deserialize(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}
	return &snap, nil
}
