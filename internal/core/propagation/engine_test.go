package propagation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/transform"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

type fixture struct {
	g      *graph.Graph
	engine *Engine
	rec    *diag.Recorder
	bursts []BurstStats
}

func (f *fixture) BurstFinished(_ Trigger, stats BurstStats) {
	f.bursts = append(f.bursts, stats)
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{g: graph.New(), rec: &diag.Recorder{}}
	opts = append(opts, WithObserver(f))
	f.engine = NewEngine(f.g, transform.NewLibrary(f.rec, nil), f.rec, opts...)
	return f
}

func (f *fixture) add(t *testing.T, id string, trigger graph.TriggerAction, kind graph.TransformType) *graph.Node {
	t.Helper()
	n := graph.NewNode(id, id)
	n.TriggerAction = trigger
	n.TransformType = kind
	require.NoError(t, f.g.AddNode(n))
	return n
}

func (f *fixture) connect(t *testing.T, src, dst graph.PortID) {
	t.Helper()
	require.NoError(t, f.g.AddEdge(graph.NewEdge(src, dst)))
}

func TestWrite_LeavesOtherSlotsUntouched(t *testing.T) {
	f := newFixture(t)
	n := f.add(t, "n1", graph.TriggerNone, graph.TransformNone)
	n.SetInput(0, value.Text("a"))
	n.SetInput(1, value.Text("b"))

	stats, err := f.engine.Write(context.Background(), "n1", 1, value.Text("x"))
	require.NoError(t, err)
	assert.Equal(t, BurstStats{Writes: 1, Steps: 1}, stats)

	first, _ := n.Input(0)
	second, _ := n.Input(1)
	assert.Equal(t, value.Text("a"), first)
	assert.Equal(t, value.Text("x"), second)
	assert.Equal(t, value.Text(""), n.OutputData, "passive node keeps its output")
}

func TestFanout_ChainOfAutoNodes(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a", graph.TriggerSubmit, graph.TransformNone)
	b := f.add(t, "b", graph.TriggerAuto, graph.TransformMatrixOfDoubles)
	c := f.add(t, "c", graph.TriggerAuto, graph.TransformDumpOutput)
	f.connect(t, "a-o0", "b-i0")
	f.connect(t, "b-o0", "c-i0")

	a.OutputData = value.Text("[[1,2],[3,4]]")
	stats, err := f.engine.Fanout(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Transforms, "b and c transform exactly once")
	assert.Equal(t, 2, stats.Writes)
	assert.Equal(t, "[[1,2],[3,4]]", b.OutputData.JSON())
	got, _ := c.OutputData.AsText()
	assert.Equal(t, "[\t[1, 2],\t[3, 4]]", got)
	assert.Len(t, f.bursts, 1)
}

func TestFanout_BreadthFirstOrder(t *testing.T) {
	f := newFixture(t)
	src := f.add(t, "s", graph.TriggerNone, graph.TransformNone)
	f.add(t, "x", graph.TriggerAuto, graph.TransformNone)
	f.add(t, "y", graph.TriggerAuto, graph.TransformNone)
	agg := f.add(t, "z", graph.TriggerAuto, graph.TransformJSONAggregator)
	f.connect(t, "s-o0", "x-i0")
	f.connect(t, "s-o0", "y-i0")
	f.connect(t, "x-o0", "z-i0")
	f.connect(t, "y-o0", "z-i1")

	src.OutputData = value.Text(`{"k":1}`)
	stats, err := f.engine.Fanout(context.Background(), "s")
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Writes)
	assert.Equal(t, 4, stats.Transforms, "z transforms once per arriving input")
	assert.Equal(t, `{"k":1}`, agg.OutputData.JSON())
	assert.Len(t, agg.InputData, 2)
}

func TestWrite_CycleIsTruncated(t *testing.T) {
	f := newFixture(t, WithMaxSteps(25))
	f.add(t, "a", graph.TriggerAuto, graph.TransformNone)
	f.add(t, "b", graph.TriggerAuto, graph.TransformNone)
	f.connect(t, "a-o0", "b-i0")
	f.connect(t, "b-o0", "a-i0")

	stats, err := f.engine.Write(context.Background(), "a", 0, value.Number(1))
	require.NoError(t, err)
	assert.True(t, stats.Truncated)
	assert.Equal(t, 25, stats.Steps)
	assert.Equal(t, 1, f.rec.Count(diag.Error))
}

func TestSubmit_FirstEdgeOnly(t *testing.T) {
	f := newFixture(t)
	f.add(t, "in", graph.TriggerSubmit, graph.TransformNone)
	first := f.add(t, "first", graph.TriggerNone, graph.TransformNone)
	second := f.add(t, "second", graph.TriggerNone, graph.TransformNone)
	f.connect(t, "in-o0", "first-i0")
	f.connect(t, "in-o0", "second-i0")

	stats, forwarded, err := f.engine.Submit(context.Background(), "in", value.Text("60"))
	require.NoError(t, err)
	assert.True(t, forwarded)
	assert.Equal(t, 1, stats.Writes)

	got, ok := first.Input(0)
	require.True(t, ok)
	assert.Equal(t, value.Text("60"), got)
	_, ok = second.Input(0)
	assert.False(t, ok)
}

func TestSubmit_CascadesThroughAuto(t *testing.T) {
	f := newFixture(t)
	f.add(t, "in", graph.TriggerSubmit, graph.TransformNone)
	fmtNode := f.add(t, "fmt", graph.TriggerAuto, graph.TransformJSONFormatter)
	fmtNode.OutputTypes = []string{"solveTimeConstraint"}
	fmtNode.FormatterKey = "solveTime"
	f.connect(t, "in-o0", "fmt-i0")

	_, _, err := f.engine.Submit(context.Background(), "in", value.Text("60"))
	require.NoError(t, err)
	assert.Equal(t, `{"solveTimeConstraint":{"solveTime":"60"}}`, fmtNode.OutputData.JSON())
}

func TestSubmit_NoOutgoingEdge(t *testing.T) {
	f := newFixture(t)
	f.add(t, "lonely", graph.TriggerSubmit, graph.TransformNone)

	_, forwarded, err := f.engine.Submit(context.Background(), "lonely", value.Text("x"))
	require.NoError(t, err)
	assert.False(t, forwarded)
}

func TestTransformAndFanout(t *testing.T) {
	f := newFixture(t)
	n := f.add(t, "n", graph.TriggerAuto, graph.TransformCastToString)
	out := f.add(t, "out", graph.TriggerNone, graph.TransformNone)
	f.connect(t, "n-o0", "out-i0")
	n.SetInput(0, value.List(value.Number(1), value.Number(2)))

	stats, err := f.engine.TransformAndFanout(context.Background(), "n", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Transforms)
	got, _ := out.Input(0)
	assert.Equal(t, value.Text("1 2"), got)
}

func TestMissingNode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Write(ctx, "ghost", 0, value.Null())
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
	_, err = f.engine.Fanout(ctx, "ghost")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
	_, _, err = f.engine.Submit(ctx, "ghost", value.Null())
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
	assert.Equal(t, 3, f.rec.Count(diag.Error))
}

func TestCanceledContextStopsBurst(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a", graph.TriggerAuto, graph.TransformNone)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := f.engine.Write(ctx, "a", 0, value.Number(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, stats.Truncated)
	assert.Zero(t, stats.Writes)
}
