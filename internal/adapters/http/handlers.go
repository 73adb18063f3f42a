package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seehiong/micronaut-optimizer/internal/app/dto"
	"github.com/seehiong/micronaut-optimizer/internal/app/usecases"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/pkg/validation"
)

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) catalog(c *gin.Context) {
	c.JSON(http.StatusOK, dto.CatalogResponse{Templates: a.service.Catalog().Templates()})
}

// bindJSON decodes the body into req and runs its validation rules.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err)
		return false
	}
	if err := validation.Struct(req); err != nil {
		abort(c, err)
		return false
	}
	return true
}

func (a *API) session(c *gin.Context) (*usecases.Session, bool) {
	s, err := a.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return nil, false
	}
	return s, true
}

func (a *API) listSessions(c *gin.Context) {
	all, err := a.service.List(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	out := make([]dto.SessionResponse, len(all))
	for i, s := range all {
		out[i] = dto.NewSessionResponse(s)
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) createSession(c *gin.Context) {
	s, err := a.service.Create(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSessionResponse(s))
}

func (a *API) closeSession(c *gin.Context) {
	if err := a.service.Close(c.Request.Context(), c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) getGraph(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.GraphResponse{SessionID: s.ID(), Graph: s.Snapshot()})
}

func (a *API) restoreGraph(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var g graph.Graph
	if err := c.ShouldBindJSON(&g); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.Restore(c.Request.Context(), &g); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GraphResponse{SessionID: s.ID(), Graph: s.Snapshot()})
}

func (a *API) addNode(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.CreateNodeRequest
	if !bindJSON(c, &req) {
		return
	}

	var (
		n   *graph.Node
		err error
	)
	if len(req.Node) > 0 {
		n, err = s.AddRestoredNode(c.Request.Context(), req.Node)
	} else {
		n, err = s.AddNode(c.Request.Context(), req.Template, req.X, req.Y)
	}
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (a *API) removeNode(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	if err := s.RemoveNode(c.Request.Context(), c.Param("node")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) updatePosition(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.PositionRequest
	if !bindJSON(c, &req) {
		return
	}
	a.nodeChanged(c, s, s.UpdatePosition(c.Request.Context(), c.Param("node"), req.X, req.Y))
}

func (a *API) updateDimensions(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.DimensionsRequest
	if !bindJSON(c, &req) {
		return
	}
	a.nodeChanged(c, s, s.UpdateDimensions(c.Request.Context(), c.Param("node"), req.Width, req.Height))
}

func (a *API) updateOutput(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.OutputRequest
	if !bindJSON(c, &req) {
		return
	}
	a.nodeChanged(c, s, s.UpdateOutputData(c.Request.Context(), c.Param("node"), req.Output))
}

// nodeChanged answers a node edit with the node's new state.
func (a *API) nodeChanged(c *gin.Context, s *usecases.Session, err error) {
	if err != nil {
		abort(c, err)
		return
	}
	n, err := s.Node(c.Param("node"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (a *API) write(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.WriteRequest
	if !bindJSON(c, &req) {
		return
	}
	stats, err := s.Write(c.Request.Context(), c.Param("node"), req.Port, req.Value)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.BurstResponse{Stats: stats})
}

func (a *API) submit(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.SubmitRequest
	if !bindJSON(c, &req) {
		return
	}
	stats, forwarded, err := s.Submit(c.Request.Context(), c.Param("node"), req.Output)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.BurstResponse{Stats: stats, Forwarded: &forwarded})
}

func (a *API) invoke(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.InvokeRequest
	if !bindJSON(c, &req) {
		return
	}
	nodeID, mode := c.Param("node"), req.InvokeMode()

	if req.Async {
		if _, err := s.Node(nodeID); err != nil {
			abort(c, err)
			return
		}
		if err := a.invokeAsync(s, nodeID, mode); err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusAccepted, dto.InvokeAccepted{NodeID: nodeID, Mode: mode})
		return
	}

	res, err := s.Invoke(c.Request.Context(), nodeID, mode)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case res.ID == "":
		abort(c, err)
	case res.Stale:
		c.JSON(http.StatusConflict, res)
	default:
		c.JSON(http.StatusBadGateway, res)
	}
}

// invokeAsync runs an invocation detached from the request. The outcome
// reaches clients through the session event stream.
func (a *API) invokeAsync(s *usecases.Session, nodeID string, mode usecases.InvokeMode) error {
	if err := a.track(); err != nil {
		return err
	}
	go func() {
		defer a.wg.Done()
		ctx := a.baseCtx
		if a.opts.InvokeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.opts.InvokeTimeout)
			defer cancel()
		}
		if _, err := s.Invoke(ctx, nodeID, mode); err != nil {
			a.logger.Debug("async invocation ended with error",
				"session_id", s.ID(), "node_id", nodeID, "mode", string(mode), "error", err)
		}
	}()
	return nil
}

func (a *API) connect(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.ConnectRequest
	if !bindJSON(c, &req) {
		return
	}
	edge, err := s.Connect(c.Request.Context(), req.Source, req.Target)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, edge)
}

func (a *API) disconnect(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.ConnectRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.Disconnect(c.Request.Context(), req.Source, req.Target); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) replaceEdges(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	var req dto.ReplaceEdgesRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.ReplaceEdges(c.Request.Context(), req.Edges); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GraphResponse{SessionID: s.ID(), Graph: s.Snapshot()})
}

func (a *API) save(c *gin.Context) {
	var req dto.SaveRequest
	if !bindJSON(c, &req) {
		return
	}
	snap, err := a.service.Save(c.Request.Context(), c.Param("id"), req.Name, req.Tags)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSnapshotSummary(snap))
}

func (a *API) listSnapshots(c *gin.Context) {
	var q dto.SnapshotQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if err := validation.Struct(q); err != nil {
		abort(c, err)
		return
	}
	filter, err := q.Filter()
	if err != nil {
		abort(c, err)
		return
	}
	all, err := a.service.Snapshots(c.Request.Context(), filter)
	if err != nil {
		abort(c, err)
		return
	}
	out := make([]dto.SnapshotSummary, len(all))
	for i, s := range all {
		out[i] = dto.NewSnapshotSummary(s)
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) getSnapshot(c *gin.Context) {
	snap, err := a.service.Snapshot(c.Request.Context(), c.Param("sid"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *API) openSnapshot(c *gin.Context) {
	s, err := a.service.Open(c.Request.Context(), c.Param("sid"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSessionResponse(s))
}
