package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

type streamFunc func(ctx context.Context, endpoint string, payload value.Value, emit func(context.Context, value.Value) error) (int, error)

func (f streamFunc) Stream(ctx context.Context, endpoint string, payload value.Value, emit func(context.Context, value.Value) error) (int, error) {
	return f(ctx, endpoint, payload, emit)
}

type completerFunc func(ctx context.Context, instruction string, payload value.Value) (string, error)

func (f completerFunc) Complete(ctx context.Context, instruction string, payload value.Value) (string, error) {
	return f(ctx, instruction, payload)
}

// frames returns a stream invoker emitting every frame in order.
func frames(vs ...value.Value) streamFunc {
	return func(ctx context.Context, _ string, _ value.Value, emit func(context.Context, value.Value) error) (int, error) {
		for i, v := range vs {
			if err := emit(ctx, v); err != nil {
				return i, err
			}
		}
		return len(vs), nil
	}
}

func record(fields ...any) value.Value {
	out := make([]value.Field, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		out = append(out, value.Field{Key: fields[i].(string), Value: value.MustFromAny(fields[i+1])})
	}
	return value.Record(out...)
}

// problemGraph builds a TSP Problem node n0 wired into a Text Output n1 and
// primes the problem's payload.
func problemGraph(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	addNode(t, s, "TSP Problem")
	addNode(t, s, "Text Output")
	_, err := s.Connect(ctx, "n0-o0", "n1-i0")
	require.NoError(t, err)
	_, err = s.Write(ctx, "n0", 0, record("distances", []any{[]any{0.0, 1.0}, []any{1.0, 0.0}}))
	require.NoError(t, err)
}

func TestInvoke_StreamAppliesFramesInOrder(t *testing.T) {
	var gotEndpoint string
	var gotPayload value.Value
	inner := frames(record("a", 1.0), record("a", 2.0))
	s, diags := newTestSession(t, func(c *SessionConfig) {
		c.Stream = streamFunc(func(ctx context.Context, endpoint string, payload value.Value, emit func(context.Context, value.Value) error) (int, error) {
			gotEndpoint, gotPayload = endpoint, payload
			return inner(ctx, endpoint, payload, emit)
		})
	})
	problemGraph(t, s)

	events, unsubscribe := s.Subscribe(64)
	defer unsubscribe()

	res, err := s.Invoke(context.Background(), "n0", ModeStream)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.False(t, res.Stale)
	assert.Equal(t, uint64(1), res.Generation)
	assert.Equal(t, "http://solver.test/solve/tsp", gotEndpoint)
	assert.Equal(t, `{"distances":[[0,1],[1,0]]}`, gotPayload.JSON())

	problem, err := s.Node("n0")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, problem.OutputData.JSON())

	sink, err := s.Node("n1")
	require.NoError(t, err)
	in, ok := sink.Input(0)
	require.True(t, ok)
	assert.Equal(t, `{"a":2}`, in.JSON())
	assert.Equal(t, value.Text("{\n  \"a\": 2\n}"), sink.OutputData)

	var fanouts, outputs int
	for len(events) > 0 {
		ev := <-events
		switch {
		case ev.Type == EventBurst:
			fanouts++
		case ev.Type == EventNodeOutput && ev.NodeID == "n0":
			outputs++
		}
	}
	assert.Equal(t, 2, fanouts)
	assert.Equal(t, 2, outputs)
	assert.Equal(t, 1, diags.Count(diag.Success))
}

func TestInvoke_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown mode", func(t *testing.T) {
		s, _ := newTestSession(t)
		_, err := s.Invoke(ctx, "n0", InvokeMode("batch"))
		assert.ErrorIs(t, err, ErrUnknownMode)
	})

	t.Run("invoker missing", func(t *testing.T) {
		s, diags := newTestSession(t)
		problemGraph(t, s)
		_, err := s.Invoke(ctx, "n0", ModeRemoteLLM)
		assert.ErrorIs(t, err, ErrInvokerMissing)
		assert.Equal(t, 1, diags.Count(diag.Error))
	})

	t.Run("missing payload", func(t *testing.T) {
		called := false
		s, diags := newTestSession(t, func(c *SessionConfig) {
			c.Stream = streamFunc(func(context.Context, string, value.Value, func(context.Context, value.Value) error) (int, error) {
				called = true
				return 0, nil
			})
		})
		addNode(t, s, "TSP Problem")

		_, err := s.Invoke(ctx, "n0", ModeStream)
		assert.ErrorIs(t, err, ErrMissingPayload)
		assert.False(t, called)
		assert.Equal(t, 1, diags.Count(diag.Warning))
		assert.Zero(t, s.Generation("n0"))
	})

	t.Run("null payload", func(t *testing.T) {
		s, _ := newTestSession(t, func(c *SessionConfig) { c.Stream = frames() })
		addNode(t, s, "TSP Problem")
		_, err := s.Write(ctx, "n0", 0, value.Null())
		require.NoError(t, err)

		_, err = s.Invoke(ctx, "n0", ModeStream)
		assert.ErrorIs(t, err, ErrMissingPayload)
	})

	t.Run("missing node", func(t *testing.T) {
		s, _ := newTestSession(t, func(c *SessionConfig) { c.Stream = frames() })
		_, err := s.Invoke(ctx, "n3", ModeStream)
		assert.Error(t, err)
	})
}

func TestInvoke_FailureLeavesOutput(t *testing.T) {
	boom := errors.New("connection refused")
	s, diags := newTestSession(t, func(c *SessionConfig) {
		c.Stream = streamFunc(func(context.Context, string, value.Value, func(context.Context, value.Value) error) (int, error) {
			return 0, boom
		})
	})
	problemGraph(t, s)

	res, err := s.Invoke(context.Background(), "n0", ModeStream)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, boom.Error(), res.Error)
	assert.Zero(t, res.Applied)

	n, err := s.Node("n0")
	require.NoError(t, err)
	assert.Equal(t, value.Text(""), n.OutputData)

	all := diags.All()
	require.NotEmpty(t, all)
	last := all[len(all)-1]
	assert.Equal(t, diag.Error, last.Severity)
	assert.Contains(t, last.Message, "API request failed")
}

// gatedStream blocks the first call until release is closed; later calls
// emit immediately.
type gatedStream struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	first   value.Value
	later   value.Value
}

func newGatedStream(first, later value.Value) *gatedStream {
	return &gatedStream{started: make(chan struct{}), release: make(chan struct{}), first: first, later: later}
}

func (g *gatedStream) Stream(ctx context.Context, _ string, _ value.Value, emit func(context.Context, value.Value) error) (int, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()

	if call > 1 {
		return 1, emit(ctx, g.later)
	}
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return 1, emit(ctx, g.first)
}

func runInvoke(s *Session, nodeID string) <-chan InvocationResult {
	done := make(chan InvocationResult, 1)
	go func() {
		res, _ := s.Invoke(context.Background(), nodeID, ModeStream)
		done <- res
	}()
	return done
}

func waitResult(t *testing.T, done <-chan InvocationResult) InvocationResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("invocation did not finish")
		return InvocationResult{}
	}
}

func TestInvoke_SupersededByNewerInvocation(t *testing.T) {
	gate := newGatedStream(record("solver", "old"), record("solver", "new"))
	s, diags := newTestSession(t, func(c *SessionConfig) { c.Stream = gate })
	problemGraph(t, s)

	done := runInvoke(s, "n0")
	<-gate.started

	newer, err := s.Invoke(context.Background(), "n0", ModeStream)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), newer.Generation)

	close(gate.release)
	older := waitResult(t, done)
	assert.True(t, older.Stale)
	assert.Zero(t, older.Applied)
	assert.Equal(t, 1, diags.Count(diag.Info))

	n, err := s.Node("n0")
	require.NoError(t, err)
	assert.Equal(t, `{"solver":"new"}`, n.OutputData.JSON())
}

func TestInvoke_StaleAfterNodeRemoved(t *testing.T) {
	gate := newGatedStream(record("solver", "late"), value.Null())
	s, _ := newTestSession(t, func(c *SessionConfig) { c.Stream = gate })
	problemGraph(t, s)

	done := runInvoke(s, "n0")
	<-gate.started
	require.NoError(t, s.RemoveNode(context.Background(), "n0"))
	close(gate.release)

	res := waitResult(t, done)
	assert.True(t, res.Stale)
	assert.Zero(t, s.Generation("n0"))
	assert.Len(t, s.Snapshot().Nodes, 1)
}

func TestInvoke_StaleAfterRestore(t *testing.T) {
	gate := newGatedStream(record("solver", "late"), value.Null())
	s, _ := newTestSession(t, func(c *SessionConfig) { c.Stream = gate })
	problemGraph(t, s)
	saved := s.Snapshot()

	done := runInvoke(s, "n0")
	<-gate.started
	require.NoError(t, s.Restore(context.Background(), saved))
	close(gate.release)

	res := waitResult(t, done)
	assert.True(t, res.Stale)
	n, err := s.Node("n0")
	require.NoError(t, err)
	assert.Equal(t, value.Text(""), n.OutputData)
}

func TestInvoke_LanguageModels(t *testing.T) {
	tests := []struct {
		name    string
		mode    InvokeMode
		success string
	}{
		{"remote", ModeRemoteLLM, "LLM processed the data successfully!"},
		{"local", ModeLocalLLM, "Local LLM processed the data successfully!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotInstruction string
			var gotPayload value.Value
			llm := completerFunc(func(_ context.Context, instruction string, payload value.Value) (string, error) {
				gotInstruction, gotPayload = instruction, payload
				return "The tour is optimal.", nil
			})
			s, diags := newTestSession(t, func(c *SessionConfig) {
				c.RemoteLLM = llm
				c.LocalLLM = llm
			})
			ctx := context.Background()
			addNode(t, s, "TSP Chart Output")
			_, err := s.Write(ctx, "n0", 0, record("route", []any{0.0, 1.0}))
			require.NoError(t, err)
			_, err = s.Write(ctx, "n0", 1, value.Text("Summarize the route."))
			require.NoError(t, err)

			res, err := s.Invoke(ctx, "n0", tt.mode)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Applied)
			assert.Equal(t, "Summarize the route.", gotInstruction)
			assert.Equal(t, `{"route":[0,1]}`, gotPayload.JSON())

			n, err := s.Node("n0")
			require.NoError(t, err)
			assert.Equal(t, value.Text("The tour is optimal."), n.OutputData)

			all := diags.All()
			require.NotEmpty(t, all)
			assert.Equal(t, tt.success, all[len(all)-1].Message)
		})
	}
}

func TestInvokeMode_Valid(t *testing.T) {
	for _, m := range InvokeModes {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, InvokeMode("").Valid())
}
