package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seehiong/micronaut-optimizer/internal/adapters/repository/memory"
	sessionrepo "github.com/seehiong/micronaut-optimizer/internal/adapters/repository/session"
	"github.com/seehiong/micronaut-optimizer/internal/app/dto"
	"github.com/seehiong/micronaut-optimizer/internal/app/usecases"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/porttype"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type streamFunc func(ctx context.Context, endpoint string, payload value.Value, emit func(context.Context, value.Value) error) (int, error)

func (f streamFunc) Stream(ctx context.Context, endpoint string, payload value.Value, emit func(context.Context, value.Value) error) (int, error) {
	return f(ctx, endpoint, payload, emit)
}

type fixture struct {
	api     *API
	router  *gin.Engine
	service *usecases.EditorService
}

func newFixture(t *testing.T, stream usecases.StreamInvoker) *fixture {
	t.Helper()
	saver := memory.NewSnapshotSaver(memory.Config{})
	t.Cleanup(func() { _ = saver.Close() })

	cfg := usecases.SessionConfig{
		Catalog:      porttype.MustDefaultCatalog(porttype.CatalogVars{SolverBaseURL: "http://solver.test"}),
		Logger:       logging.Discard(),
		RejectCycles: true,
	}
	if stream != nil {
		cfg.Stream = stream
	}
	svc := usecases.NewEditorService(cfg, sessionrepo.NewInMemoryRegistry(0), saver)
	api := New(svc, logging.Discard(), Options{Metrics: http.NotFoundHandler()})
	t.Cleanup(func() { _ = api.Shutdown(context.Background()) })
	return &fixture{api: api, router: api.Router(), service: svc}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp dto.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndCatalog(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = f.do(t, http.MethodGet, "/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cat := decode[dto.CatalogResponse](t, w)
	names := make([]string, len(cat.Templates))
	for i, n := range cat.Templates {
		names[i] = n.Name
	}
	assert.Contains(t, names, "TSP Problem")
	assert.Contains(t, names, "Text Input")
}

func TestEditingFlow(t *testing.T) {
	f := newFixture(t, nil)
	id := f.newSession(t)
	base := "/sessions/" + id

	w := f.do(t, http.MethodPost, base+"/nodes", dto.CreateNodeRequest{Template: "Text Input", X: 10, Y: 20})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "n0", decode[graph.Node](t, w).ID)

	w = f.do(t, http.MethodPost, base+"/nodes", dto.CreateNodeRequest{Template: "Text Output"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, base+"/nodes",
		`{"node":{"id":"n5","name":"Text Input","outputTypes":["string"],"triggerAction":"S"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, base+"/edges", dto.ConnectRequest{Source: "n0-o0", Target: "n1-i0"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, base+"/edges", dto.ConnectRequest{Source: "n5-o0", Target: "n1-i0"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, base+"/nodes/n0/submit", `{"output":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	burst := decode[dto.BurstResponse](t, w)
	require.NotNil(t, burst.Forwarded)
	assert.True(t, *burst.Forwarded)
	assert.Equal(t, 1, burst.Stats.Writes)

	w = f.do(t, http.MethodGet, base+"/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	g := decode[dto.GraphResponse](t, w).Graph
	require.Len(t, g.Nodes, 3)
	assert.Equal(t, value.Text("hello"), g.FindNode("n1").OutputData)
	assert.Len(t, g.Edges, 1)

	w = f.do(t, http.MethodPatch, base+"/nodes/n1/position", dto.PositionRequest{X: 300, Y: 40})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 300.0, decode[graph.Node](t, w).X)

	w = f.do(t, http.MethodPatch, base+"/nodes/n1/dimensions", `{"width":-5,"height":10}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, base+"/edges", dto.ConnectRequest{Source: "n0-o0", Target: "n1-i0"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodDelete, base+"/edges", dto.ConnectRequest{Source: "n0-o0", Target: "n1-i0"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodDelete, base+"/nodes/n1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodDelete, base+"/nodes/n1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t, nil)
	id := f.newSession(t)
	base := "/sessions/" + id
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, base+"/nodes", dto.CreateNodeRequest{Template: "Text Output"}).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown session", http.MethodGet, "/sessions/nope/snapshot", nil, http.StatusNotFound},
		{"unknown template", http.MethodPost, base + "/nodes", dto.CreateNodeRequest{Template: "Teleporter"}, http.StatusNotFound},
		{"ambiguous node", http.MethodPost, base + "/nodes", `{"template":"Text Input","node":{"id":"n3"}}`, http.StatusBadRequest},
		{"malformed node", http.MethodPost, base + "/nodes", `{"node":{"id":""}}`, http.StatusBadRequest},
		{"not json", http.MethodPost, base + "/edges", `{`, http.StatusBadRequest},
		{"bad port id", http.MethodPost, base + "/edges", dto.ConnectRequest{Source: "n0o0", Target: "n1-i0"}, http.StatusBadRequest},
		{"missing node edge", http.MethodPost, base + "/edges", dto.ConnectRequest{Source: "n8-o0", Target: "n9-i0"}, http.StatusNotFound},
		{"negative port", http.MethodPost, base + "/nodes/n0/write", `{"port":-1,"value":1}`, http.StatusBadRequest},
		{"undeclared port", http.MethodPost, base + "/nodes/n0/write", `{"port":2000000000,"value":1}`, http.StatusBadRequest},
		{"unknown mode", http.MethodPost, base + "/nodes/n0/invoke", `{"mode":"batch"}`, http.StatusBadRequest},
		{"no invoker", http.MethodPost, base + "/nodes/n0/invoke", `{"mode":"local-llm"}`, http.StatusServiceUnavailable},
		{"unknown snapshot", http.MethodGet, "/snapshots/none", nil, http.StatusNotFound},
		{"bad filter", http.MethodGet, "/snapshots?limit=-1", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[dto.ErrorResponse](t, w).Error)
		})
	}
}

func problemSession(t *testing.T, f *fixture) string {
	t.Helper()
	id := f.newSession(t)
	base := "/sessions/" + id
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, base+"/nodes", dto.CreateNodeRequest{Template: "TSP Problem"}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/nodes/n0/write", `{"port":0,"value":{"distances":[[0,1],[1,0]]}}`).Code)
	return base
}

func TestInvoke(t *testing.T) {
	var fail bool
	stream := streamFunc(func(ctx context.Context, endpoint string, _ value.Value, emit func(context.Context, value.Value) error) (int, error) {
		if fail {
			return 0, errors.New("solver unreachable")
		}
		return 1, emit(ctx, value.MustFromAny(map[string]any{"endpoint": endpoint}))
	})
	f := newFixture(t, stream)
	base := problemSession(t, f)

	w := f.do(t, http.MethodPost, base+"/nodes/n0/invoke", dto.InvokeRequest{Mode: "stream"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[usecases.InvocationResult](t, w)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, "n0", res.NodeID)

	w = f.do(t, http.MethodGet, base+"/snapshot", nil)
	g := decode[dto.GraphResponse](t, w).Graph
	assert.Equal(t, `{"endpoint":"http://solver.test/solve/tsp"}`, g.FindNode("n0").OutputData.JSON())

	fail = true
	w = f.do(t, http.MethodPost, base+"/nodes/n0/invoke", dto.InvokeRequest{Mode: "stream"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode[usecases.InvocationResult](t, w).Error, "solver unreachable")

	w = f.do(t, http.MethodPost, base+"/nodes", dto.CreateNodeRequest{Template: "TSP Problem"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = f.do(t, http.MethodPost, base+"/nodes/n1/invoke", dto.InvokeRequest{Mode: "stream"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoke_Async(t *testing.T) {
	stream := streamFunc(func(ctx context.Context, _ string, _ value.Value, emit func(context.Context, value.Value) error) (int, error) {
		return 1, emit(ctx, value.Text("solved"))
	})
	f := newFixture(t, stream)
	base := problemSession(t, f)

	w := f.do(t, http.MethodPost, base+"/nodes/n9/invoke", dto.InvokeRequest{Mode: "stream", Async: true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, base+"/nodes/n0/invoke", dto.InvokeRequest{Mode: "stream", Async: true})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, usecases.ModeStream, decode[dto.InvokeAccepted](t, w).Mode)

	s, err := f.service.Get(context.Background(), strings.TrimPrefix(base, "/sessions/"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		n, err := s.Node("n0")
		return err == nil && n.OutputData.Equal(value.Text("solved"))
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInvoke_AsyncAfterShutdown(t *testing.T) {
	called := false
	stream := streamFunc(func(context.Context, string, value.Value, func(context.Context, value.Value) error) (int, error) {
		called = true
		return 0, nil
	})
	f := newFixture(t, stream)
	base := problemSession(t, f)

	require.NoError(t, f.api.Shutdown(context.Background()))

	w := f.do(t, http.MethodPost, base+"/nodes/n0/invoke", dto.InvokeRequest{Mode: "stream", Async: true})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decode[dto.ErrorResponse](t, w).Error, "shutting down")
	assert.False(t, called)
}

func TestSaveAndOpen(t *testing.T) {
	f := newFixture(t, nil)
	id := f.newSession(t)
	base := "/sessions/" + id
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, base+"/nodes", dto.CreateNodeRequest{Template: "Text Input"}).Code)

	w := f.do(t, http.MethodPost, base+"/save", dto.SaveRequest{Name: "demo", Tags: []string{"tsp"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	summary := decode[dto.SnapshotSummary](t, w)
	assert.Equal(t, 1, summary.Metadata.NodeCount)

	w = f.do(t, http.MethodGet, "/snapshots?session_id="+id+"&tag=tsp", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]dto.SnapshotSummary](t, w), 1)

	w = f.do(t, http.MethodGet, "/snapshots/"+summary.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/snapshots/"+summary.ID+"/open", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	opened := decode[dto.SessionResponse](t, w)
	assert.NotEqual(t, id, opened.ID)
	assert.Equal(t, 1, opened.NodeCount)

	w = f.do(t, http.MethodPut, "/sessions/"+opened.ID+"/snapshot", `{"nodes":[],"edges":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[dto.GraphResponse](t, w).Graph.Nodes)

	w = f.do(t, http.MethodGet, "/sessions", nil)
	assert.Len(t, decode[[]dto.SessionResponse](t, w), 2)

	w = f.do(t, http.MethodDelete, "/sessions/"+opened.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestEvents(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()
	id := f.newSession(t)

	resp, err := http.Get(srv.URL + "/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s, err := f.service.Get(context.Background(), id)
	require.NoError(t, err)
	_, err = s.AddNode(context.Background(), "Text Input", 0, 0)
	require.NoError(t, err)
	require.NoError(t, f.service.Close(context.Background(), id))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "graph_changed")
	assert.Contains(t, string(body), `"node_id":"n0"`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusConflict, statusFor(usecases.ErrStaleInvocation))
	assert.Equal(t, http.StatusNotFound, statusFor(errors.Join(errors.New("x"), graph.ErrNodeNotFound)))
}
