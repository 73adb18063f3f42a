package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
)

func TestNew_CopiesGraph(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddNode(graph.NewNode("n0", "Text Input")))

	s := New("session-1", "draft", g)
	require.NoError(t, s.Validate())
	assert.Equal(t, 1, s.Metadata.NodeCount)
	assert.Equal(t, Version, s.Version)

	g.FindNode("n0").Name = "changed"
	assert.Equal(t, "Text Input", s.Graph.FindNode("n0").Name)
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		snap    Snapshot
		wantErr error
	}{
		{"missing id", Snapshot{SessionID: "s", Graph: graph.New()}, ErrInvalidSnapshotID},
		{"missing session", Snapshot{ID: "x", Graph: graph.New()}, ErrInvalidSessionID},
		{"missing graph", Snapshot{ID: "x", SessionID: "s"}, ErrNilGraph},
		{"ok", Snapshot{ID: "x", SessionID: "s", Graph: graph.New()}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFilter_Validate(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	assert.ErrorIs(t, (&Filter{Limit: -1}).Validate(), ErrInvalidLimit)
	assert.ErrorIs(t, (&Filter{Offset: -1}).Validate(), ErrInvalidOffset)
	assert.ErrorIs(t, (&Filter{Since: &later, Before: &now}).Validate(), ErrInvalidTimeRange)
	assert.NoError(t, (&Filter{Since: &now, Before: &later}).Validate())
}

func TestFilter_Apply(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id, session string, offset int, tags ...string) *Snapshot {
		return &Snapshot{
			ID:        id,
			SessionID: session,
			Graph:     graph.New(),
			Timestamp: base.Add(time.Duration(offset) * time.Minute),
			Metadata:  Metadata{Tags: tags},
		}
	}
	all := []*Snapshot{
		mk("a", "s1", 1, "tsp"),
		mk("b", "s1", 3),
		mk("c", "s2", 2, "tsp", "ga"),
	}
	ids := func(ss []*Snapshot) []string {
		out := make([]string, len(ss))
		for i, s := range ss {
			out[i] = s.ID
		}
		return out
	}

	assert.Equal(t, []string{"b", "c", "a"}, ids((&Filter{}).Apply(all)))
	assert.Equal(t, []string{"b", "a"}, ids((&Filter{SessionID: "s1"}).Apply(all)))
	assert.Equal(t, []string{"c", "a"}, ids((&Filter{Tags: []string{"tsp"}}).Apply(all)))
	assert.Equal(t, []string{"c"}, ids((&Filter{Offset: 1, Limit: 1}).Apply(all)))
	assert.Empty(t, (&Filter{Offset: 5}).Apply(all))

	since := base.Add(90 * time.Second)
	assert.Equal(t, []string{"b", "c"}, ids((&Filter{Since: &since}).Apply(all)))
}
