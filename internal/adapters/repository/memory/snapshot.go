// Package memory keeps snapshots in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
	"github.com/seehiong/micronaut-optimizer/pkg/serialization"
)

// SnapshotSaver implements snapshot.Saver with serialized in-memory entries.
// PRINCIPLES:
// - KISS: one map under one mutex
// - Isolation: entries are stored serialized, so callers never share graphs
// - Bounded: optional TTL and a memory cap with LRU eviction
type SnapshotSaver struct {
	mu          sync.Mutex
	entries     map[string]*entry
	defaultTTL  time.Duration
	maxBytes    int64
	currentSize int64
	serializer  *serialization.Serializer
	now         func() time.Time

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// Config holds configuration for SnapshotSaver.
type Config struct {
	DefaultTTL      time.Duration             // zero keeps entries until deleted
	MaxMemoryMB     int64                     // zero means 256MB
	CleanupInterval time.Duration             // zero disables the background sweep
	Serializer      *serialization.Serializer // nil means serialization.DefaultSerializer
}

type entry struct {
	meta       *snapshot.Snapshot // envelope only, Graph is nil
	data       []byte
	expiresAt  time.Time
	accessedAt time.Time
}

// NewSnapshotSaver creates a saver. Close it to stop the cleanup goroutine.
func NewSnapshotSaver(config Config) *SnapshotSaver {
	if config.MaxMemoryMB <= 0 {
		config.MaxMemoryMB = 256
	}
	if config.Serializer == nil {
		config.Serializer = serialization.DefaultSerializer()
	}
	s := &SnapshotSaver{
		entries:     make(map[string]*entry),
		defaultTTL:  config.DefaultTTL,
		maxBytes:    config.MaxMemoryMB * 1024 * 1024,
		serializer:  config.Serializer,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go s.cleanupLoop(config.CleanupInterval)
	}
	return s
}

// Save stores a serialized copy of snap.
func (s *SnapshotSaver) Save(_ context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return snapshot.ErrInvalidSnapshotID
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("snapshot validation failed: %w", err)
	}
	data, err := s.serializer.Serialize(snap)
	if err != nil {
		return fmt.Errorf("snapshot serialization failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(len(data)) > s.maxBytes {
		return fmt.Errorf("memory limit exceeded: snapshot is %d bytes, limit %d", len(data), s.maxBytes)
	}
	s.deleteLocked(snap.ID)
	s.reserveLocked(int64(len(data)))

	meta := *snap
	meta.Graph = nil
	meta.Metadata.Tags = append([]string(nil), snap.Metadata.Tags...)
	now := s.now()
	e := &entry{meta: &meta, data: data, accessedAt: now}
	if s.defaultTTL > 0 {
		e.expiresAt = now.Add(s.defaultTTL)
	}
	s.entries[snap.ID] = e
	s.currentSize += int64(len(data))
	return nil
}

// Load returns a fresh copy of the snapshot.
func (s *SnapshotSaver) Load(_ context.Context, id string) (*snapshot.Snapshot, error) {
	if id == "" {
		return nil, snapshot.ErrInvalidSnapshotID
	}
	s.mu.Lock()
	e, ok := s.liveLocked(id)
	if ok {
		e.accessedAt = s.now()
	}
	s.mu.Unlock()
	if !ok {
		return nil, snapshot.ErrSnapshotNotFound
	}
	return s.decode(e.data)
}

// List returns matching snapshots, newest first.
func (s *SnapshotSaver) List(_ context.Context, filter snapshot.Filter) ([]*snapshot.Snapshot, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}

	s.mu.Lock()
	metas := make([]*snapshot.Snapshot, 0, len(s.entries))
	data := make(map[string][]byte, len(s.entries))
	for id := range s.entries {
		if e, ok := s.liveLocked(id); ok {
			metas = append(metas, e.meta)
			data[id] = e.data
		}
	}
	s.mu.Unlock()

	page := filter.Apply(metas)
	out := make([]*snapshot.Snapshot, 0, len(page))
	for _, m := range page {
		snap, err := s.decode(data[m.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Delete removes a snapshot.
func (s *SnapshotSaver) Delete(_ context.Context, id string) error {
	if id == "" {
		return snapshot.ErrInvalidSnapshotID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(id); !ok {
		return snapshot.ErrSnapshotNotFound
	}
	s.deleteLocked(id)
	return nil
}

// Stats reports memory usage.
type Stats struct {
	Count     int   `json:"count"`
	SizeBytes int64 `json:"size_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// Stats returns current usage.
func (s *SnapshotSaver) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Count: len(s.entries), SizeBytes: s.currentSize, MaxBytes: s.maxBytes}
}

// Close stops the cleanup goroutine.
func (s *SnapshotSaver) Close() error {
	s.cleanupOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *SnapshotSaver) decode(data []byte) (*snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	if err := s.serializer.Deserialize(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot deserialization failed: %w", err)
	}
	return &snap, nil
}

// liveLocked returns the entry for id, dropping it if it has expired.
func (s *SnapshotSaver) liveLocked(id string) (*entry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		s.deleteLocked(id)
		return nil, false
	}
	return e, true
}

func (s *SnapshotSaver) deleteLocked(id string) {
	if e, ok := s.entries[id]; ok {
		s.currentSize -= int64(len(e.data))
		delete(s.entries, id)
	}
}

// reserveLocked evicts least recently used entries until size bytes fit.
func (s *SnapshotSaver) reserveLocked(size int64) {
	if s.currentSize+size <= s.maxBytes {
		return
	}

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.entries[ids[i]].accessedAt.Before(s.entries[ids[j]].accessedAt)
	})
	for _, id := range ids {
		if s.currentSize+size <= s.maxBytes {
			break
		}
		s.deleteLocked(id)
	}
}

func (s *SnapshotSaver) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for id := range s.entries {
				s.liveLocked(id)
			}
			s.mu.Unlock()
		case <-s.stopCleanup:
			return
		}
	}
}
