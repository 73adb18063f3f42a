package flowgraph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seehiong/micronaut-optimizer/internal/config"
	coregraph "github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

func TestRuntime_SubmitSaveOpen(t *testing.T) {
	rt := NewRuntime()
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	ctx := context.Background()

	s, err := rt.NewSession(ctx)
	require.NoError(t, err)
	in, err := s.AddNode(ctx, "Text Input", 0, 0)
	require.NoError(t, err)
	out, err := s.AddNode(ctx, "Text Output", 200, 0)
	require.NoError(t, err)
	_, err = s.Connect(ctx, coregraph.NewPortID(in.ID, coregraph.Output, 0), coregraph.NewPortID(out.ID, coregraph.Input, 0))
	require.NoError(t, err)

	_, forwarded, err := s.Submit(ctx, in.ID, value.Text("hello"))
	require.NoError(t, err)
	assert.True(t, forwarded)

	snap, err := rt.Save(ctx, s.ID(), "greeting", "demo")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Metadata.NodeCount)
	assert.Equal(t, 1, snap.Metadata.EdgeCount)

	reopened, err := rt.Open(ctx, snap.ID)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID(), reopened.ID())
	n, err := reopened.Node(out.ID)
	require.NoError(t, err)
	assert.True(t, value.Text("hello").Equal(n.OutputData))

	sessions, err := rt.Service().List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestRuntime_LoadSession(t *testing.T) {
	rt := NewRuntime()
	t.Cleanup(func() { _ = rt.Close() })
	ctx := context.Background()

	src, err := rt.NewSession(ctx)
	require.NoError(t, err)
	_, err = src.AddNode(ctx, "Text Input", 0, 0)
	require.NoError(t, err)
	_, err = src.AddNode(ctx, "Text Output", 100, 0)
	require.NoError(t, err)
	_, err = src.Connect(ctx, "n0-o0", "n1-i0")
	require.NoError(t, err)

	data, err := json.Marshal(src.Snapshot())
	require.NoError(t, err)
	g, err := DecodeGraph(data, true)
	require.NoError(t, err)

	loaded, err := rt.LoadSession(ctx, g)
	require.NoError(t, err)
	assert.Len(t, loaded.Snapshot().Nodes, 2)
	assert.Len(t, loaded.Snapshot().Edges, 1)

	// the id sequence continues after the restored nodes
	n, err := loaded.AddNode(ctx, "Text Output", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "n2", n.ID)
}

func TestDecodeGraph_Invalid(t *testing.T) {
	_, err := DecodeGraph([]byte(`{"nodes": [`), false)
	assert.ErrorIs(t, err, coregraph.ErrMalformedNode)

	_, err = DecodeGraph([]byte(`{"nodes":[],"edges":[{"sourceId":"n0-o0","targetId":"n1-i0"}]}`), false)
	assert.Error(t, err)
}

func TestNewRuntimeFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite store", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Snapshot.Store = config.StoreSQLite
		cfg.Snapshot.SQLitePath = t.TempDir() + "/snapshots.db"

		rt, err := NewRuntimeFromConfig(ctx, cfg, Options{Metrics: true})
		require.NoError(t, err)
		defer rt.Close()

		s, err := rt.NewSession(ctx)
		require.NoError(t, err)
		snap, err := rt.Save(ctx, s.ID(), "empty")
		require.NoError(t, err)
		listed, err := rt.Service().Snapshots(ctx, SnapshotFilter{})
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, snap.ID, listed[0].ID)
	})

	t.Run("badger in memory", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Snapshot.Store = config.StoreBadger

		rt, err := NewRuntimeFromConfig(ctx, cfg, Options{})
		require.NoError(t, err)
		assert.NoError(t, rt.Close())
	})

	t.Run("unknown store", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Snapshot.Store = "floppy"

		_, err := NewRuntimeFromConfig(ctx, cfg, Options{})
		assert.ErrorContains(t, err, "unknown snapshot store")
	})

	t.Run("session limit", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.App.MaxSessions = 1

		rt, err := NewRuntimeFromConfig(ctx, cfg, Options{})
		require.NoError(t, err)
		defer rt.Close()

		_, err = rt.NewSession(ctx)
		require.NoError(t, err)
		_, err = rt.NewSession(ctx)
		assert.Error(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewRuntimeFromConfig(ctx, nil, Options{})
		assert.Error(t, err)
	})
}
