package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	sessionrepo "github.com/seehiong/micronaut-optimizer/internal/adapters/repository/session"
	"github.com/seehiong/micronaut-optimizer/internal/app/dto"
	"github.com/seehiong/micronaut-optimizer/internal/app/usecases"
	"github.com/seehiong/micronaut-optimizer/internal/core/connection"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/porttype"
	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
	"github.com/seehiong/micronaut-optimizer/pkg/validation"
)

var statusByError = []struct {
	err    error
	status int
}{
	{usecases.ErrSessionNotFound, http.StatusNotFound},
	{graph.ErrNodeNotFound, http.StatusNotFound},
	{graph.ErrEdgeNotFound, http.StatusNotFound},
	{graph.ErrTemplateNotFound, http.StatusNotFound},
	{snapshot.ErrSnapshotNotFound, http.StatusNotFound},

	{connection.ErrIncompatibleTypes, http.StatusConflict},
	{connection.ErrInputPortOccupied, http.StatusConflict},
	{graph.ErrCyclicGraph, http.StatusConflict},
	{graph.ErrDuplicateNode, http.StatusConflict},
	{graph.ErrDuplicateEdge, http.StatusConflict},
	{usecases.ErrStaleInvocation, http.StatusConflict},

	{dto.ErrInvalidRequest, http.StatusBadRequest},
	{dto.ErrAmbiguousNode, http.StatusBadRequest},
	{dto.ErrMissingNodeSource, http.StatusBadRequest},
	{usecases.ErrUnknownMode, http.StatusBadRequest},
	{usecases.ErrMissingPayload, http.StatusBadRequest},
	{graph.ErrMalformedNode, http.StatusBadRequest},
	{graph.ErrInvalidNodeID, http.StatusBadRequest},
	{graph.ErrInvalidPortID, http.StatusBadRequest},
	{graph.ErrInvalidPortIndex, http.StatusBadRequest},
	{graph.ErrInvalidNodeGeometry, http.StatusBadRequest},
	{graph.ErrInvalidSource, http.StatusBadRequest},
	{graph.ErrInvalidTarget, http.StatusBadRequest},
	{graph.ErrSourceNodeNotFound, http.StatusBadRequest},
	{graph.ErrTargetNodeNotFound, http.StatusBadRequest},
	{graph.ErrNilEdge, http.StatusBadRequest},
	{porttype.ErrPortOutOfRange, http.StatusBadRequest},
	{validation.ErrNilGraph, http.StatusBadRequest},

	{usecases.ErrInvokerMissing, http.StatusServiceUnavailable},
	{sessionrepo.ErrRegistryFull, http.StatusServiceUnavailable},
	{ErrShuttingDown, http.StatusServiceUnavailable},
	{usecases.ErrSnapshotRequired, http.StatusNotImplemented},
}

// statusFor maps an error to the HTTP status a client can act on.
func statusFor(err error) int {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest
	}
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, err error) {
	status := statusFor(err)
	resp := dto.ErrorResponse{Error: err.Error()}
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Details = verrs
	}
	if status == http.StatusInternalServerError {
		loggerFor(c).Error("request failed", "error", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	abort(c, errors.Join(dto.ErrInvalidRequest, err))
}
