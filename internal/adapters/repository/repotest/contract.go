// Package repotest holds the behaviour every snapshot.Saver must show, so
// each store's tests run the same checks.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

// Graph builds a small two-node graph with an unset input slot.
func Graph(t testing.TB) *graph.Graph {
	t.Helper()
	g := graph.New()
	src := graph.NewNode("n0", "Text Input")
	src.TriggerAction = graph.TriggerSubmit
	src.OutputTypes = []string{"string"}
	src.OutputData = value.Text("60")

	dst := graph.NewNode("n1", "TSP Input")
	dst.TriggerAction = graph.TriggerAuto
	dst.TransformType = graph.TransformJSONAggregator
	dst.InputTypes = []string{"distanceMatrixConstraint", "solveTimeConstraint"}
	dst.SetInput(1, value.Record(value.Field{Key: "solveTime", Value: value.Number(60)}))

	require.NoError(t, g.AddNode(src))
	require.NoError(t, g.AddNode(dst))
	require.NoError(t, g.AddEdge(graph.NewEdge("n0-o0", "n1-i1")))
	return g
}

// Snapshot builds a snapshot stamped at ts.
func Snapshot(t testing.TB, id, session string, ts time.Time, tags ...string) *snapshot.Snapshot {
	t.Helper()
	s := snapshot.New(session, "snap "+id, Graph(t))
	s.ID = id
	s.Timestamp = ts.UTC().Truncate(time.Second)
	s.Metadata.Tags = tags
	return s
}

// Run exercises the snapshot.Saver contract against saver, which must start
// empty.
func Run(t *testing.T, saver snapshot.Saver) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("save and load", func(t *testing.T) {
		snap := Snapshot(t, "s1", "session-a", base, "tsp")
		require.NoError(t, saver.Save(ctx, snap))

		loaded, err := saver.Load(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, snap.SessionID, loaded.SessionID)
		assert.Equal(t, snap.Name, loaded.Name)
		assert.Equal(t, snap.Metadata, loaded.Metadata)
		assert.True(t, snap.Timestamp.Equal(loaded.Timestamp))
		require.Len(t, loaded.Graph.Nodes, 2)
		require.Len(t, loaded.Graph.Edges, 1)

		dst := loaded.Graph.FindNode("n1")
		_, set := dst.Input(0)
		assert.False(t, set)
		got, set := dst.Input(1)
		require.True(t, set)
		assert.Equal(t, `{"solveTime":60}`, got.JSON())
		assert.Equal(t, graph.TriggerAuto, dst.TriggerAction)
	})

	t.Run("save replaces", func(t *testing.T) {
		snap := Snapshot(t, "s1", "session-a", base, "tsp")
		snap.Name = "renamed"
		require.NoError(t, saver.Save(ctx, snap))

		loaded, err := saver.Load(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "renamed", loaded.Name)
	})

	t.Run("list filters and orders", func(t *testing.T) {
		require.NoError(t, saver.Save(ctx, Snapshot(t, "s2", "session-a", base.Add(time.Hour))))
		require.NoError(t, saver.Save(ctx, Snapshot(t, "s3", "session-b", base.Add(2*time.Hour), "tsp")))

		all, err := saver.List(ctx, snapshot.Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"s3", "s2", "s1"}, ids(all))

		bySession, err := saver.List(ctx, snapshot.Filter{SessionID: "session-a"})
		require.NoError(t, err)
		assert.Equal(t, []string{"s2", "s1"}, ids(bySession))

		byTag, err := saver.List(ctx, snapshot.Filter{Tags: []string{"tsp"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"s3", "s1"}, ids(byTag))

		paged, err := saver.List(ctx, snapshot.Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"s2"}, ids(paged))

		since := base.Add(30 * time.Minute)
		recent, err := saver.List(ctx, snapshot.Filter{Since: &since})
		require.NoError(t, err)
		assert.Equal(t, []string{"s3", "s2"}, ids(recent))

		_, err = saver.List(ctx, snapshot.Filter{Limit: -1})
		assert.ErrorIs(t, err, snapshot.ErrInvalidLimit)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, saver.Delete(ctx, "s2"))
		_, err := saver.Load(ctx, "s2")
		assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
		assert.ErrorIs(t, saver.Delete(ctx, "s2"), snapshot.ErrSnapshotNotFound)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := saver.Load(ctx, "")
		assert.ErrorIs(t, err, snapshot.ErrInvalidSnapshotID)
		_, err = saver.Load(ctx, "missing")
		assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
		assert.Error(t, saver.Save(ctx, nil))
		assert.ErrorIs(t, saver.Save(ctx, &snapshot.Snapshot{ID: "x", SessionID: "s"}), snapshot.ErrNilGraph)
	})
}

func ids(ss []*snapshot.Snapshot) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.ID
	}
	return out
}
