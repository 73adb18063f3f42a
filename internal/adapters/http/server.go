// Package httpapi exposes editor sessions over HTTP. Session events are
// pushed to clients as server-sent events.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seehiong/micronaut-optimizer/internal/app/usecases"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/logging"
)

const loggerKey = "logger"

// ErrShuttingDown is returned for work that would outlive the API.
var ErrShuttingDown = errors.New("server is shutting down")

// Options tunes the API.
type Options struct {
	// InvokeTimeout bounds async invocations; zero means none.
	InvokeTimeout time.Duration
	// KeepAlive is the SSE comment interval; zero means 15s.
	KeepAlive time.Duration
	// Metrics serves /metrics; nil means the default Prometheus registry.
	Metrics http.Handler
}

// API holds the handlers and the background invocations they started.
type API struct {
	service *usecases.EditorService
	logger  *slog.Logger
	opts    Options

	// async invocations outlive their request but not the API
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex // guards closing and wg.Add
	closing bool
}

// New builds the API over service.
func New(service *usecases.EditorService, logger *slog.Logger, opts Options) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	return &API{service: service, logger: logger, opts: opts, baseCtx: ctx, cancel: cancel}
}

// Router registers every route on a fresh gin engine.
//
//	GET    /healthz
//	GET    /metrics
//	GET    /catalog
//	GET    /sessions
//	POST   /sessions
//	DELETE /sessions/:id
//	GET    /sessions/:id/snapshot
//	PUT    /sessions/:id/snapshot
//	POST   /sessions/:id/nodes
//	DELETE /sessions/:id/nodes/:node
//	PATCH  /sessions/:id/nodes/:node/position
//	PATCH  /sessions/:id/nodes/:node/dimensions
//	PUT    /sessions/:id/nodes/:node/output
//	POST   /sessions/:id/nodes/:node/write
//	POST   /sessions/:id/nodes/:node/submit
//	POST   /sessions/:id/nodes/:node/invoke
//	POST   /sessions/:id/edges
//	DELETE /sessions/:id/edges
//	PUT    /sessions/:id/edges
//	GET    /sessions/:id/events
//	POST   /sessions/:id/save
//	GET    /snapshots
//	GET    /snapshots/:sid
//	POST   /snapshots/:sid/open
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())

	r.GET("/healthz", a.health)
	r.GET("/metrics", gin.WrapH(a.opts.Metrics))
	r.GET("/catalog", a.catalog)

	r.GET("/sessions", a.listSessions)
	r.POST("/sessions", a.createSession)

	s := r.Group("/sessions/:id")
	{
		s.DELETE("", a.closeSession)
		s.GET("/snapshot", a.getGraph)
		s.PUT("/snapshot", a.restoreGraph)
		s.GET("/events", a.events)
		s.POST("/save", a.save)

		s.POST("/nodes", a.addNode)
		s.DELETE("/nodes/:node", a.removeNode)
		s.PATCH("/nodes/:node/position", a.updatePosition)
		s.PATCH("/nodes/:node/dimensions", a.updateDimensions)
		s.PUT("/nodes/:node/output", a.updateOutput)
		s.POST("/nodes/:node/write", a.write)
		s.POST("/nodes/:node/submit", a.submit)
		s.POST("/nodes/:node/invoke", a.invoke)

		s.POST("/edges", a.connect)
		s.DELETE("/edges", a.disconnect)
		s.PUT("/edges", a.replaceEdges)
	}

	r.GET("/snapshots", a.listSnapshots)
	r.GET("/snapshots/:sid", a.getSnapshot)
	r.POST("/snapshots/:sid/open", a.openSnapshot)
	return r
}

// Shutdown cancels running async invocations and waits for them, or for ctx.
func (a *API) Shutdown(ctx context.Context) error {
	a.stop()
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop refuses new async work and cancels the running work.
func (a *API) stop() {
	a.mu.Lock()
	a.closing = true
	a.mu.Unlock()
	a.cancel()
}

// track registers one unit of async work unless the API is stopping.
func (a *API) track() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing {
		return ErrShuttingDown
	}
	a.wg.Add(1)
	return nil
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully within timeout.
func (a *API) Serve(ctx context.Context, addr string, timeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.logger.Info("http server shutting down")
	// event streams only end once the base context is gone
	a.stop()
	err := srv.Shutdown(shutdownCtx)
	if serr := a.Shutdown(shutdownCtx); err == nil {
		err = serr
	}
	return err
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)
		logger := a.logger.With("request_id", reqID)
		c.Set(loggerKey, logger)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))

		c.Next()

		logger.Debug("request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func loggerFor(c *gin.Context) *slog.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if logger, ok := l.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}
