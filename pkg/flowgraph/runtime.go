package flowgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/seehiong/micronaut-optimizer/internal/adapters/invocation/ollama"
	"github.com/seehiong/micronaut-optimizer/internal/adapters/invocation/openai"
	"github.com/seehiong/micronaut-optimizer/internal/adapters/invocation/stream"
	"github.com/seehiong/micronaut-optimizer/internal/adapters/repository/badger"
	"github.com/seehiong/micronaut-optimizer/internal/adapters/repository/memory"
	"github.com/seehiong/micronaut-optimizer/internal/adapters/repository/postgres"
	sessionrepo "github.com/seehiong/micronaut-optimizer/internal/adapters/repository/session"
	"github.com/seehiong/micronaut-optimizer/internal/adapters/repository/sqlite"
	"github.com/seehiong/micronaut-optimizer/internal/app/usecases"
	"github.com/seehiong/micronaut-optimizer/internal/config"
	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	coregraph "github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/porttype"
	"github.com/seehiong/micronaut-optimizer/internal/core/snapshot"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/metrics"
	"github.com/seehiong/micronaut-optimizer/pkg/serialization"
	"github.com/seehiong/micronaut-optimizer/pkg/validation"
)

// Re-export core types for convenience
type (
	Graph            = coregraph.Graph
	Node             = coregraph.Node
	Edge             = coregraph.Edge
	PortID           = coregraph.PortID
	Value            = value.Value
	Diagnostic       = diag.Diagnostic
	Session          = usecases.Session
	Event            = usecases.Event
	InvokeMode       = usecases.InvokeMode
	InvocationResult = usecases.InvocationResult
	Snapshot         = snapshot.Snapshot
	SnapshotFilter   = snapshot.Filter
)

// Invocation modes
const (
	ModeStream    = usecases.ModeStream
	ModeRemoteLLM = usecases.ModeRemoteLLM
	ModeLocalLLM  = usecases.ModeLocalLLM
)

// Options tunes a Runtime built by NewRuntimeFromConfig.
type Options struct {
	Logger *slog.Logger
	// Sink additionally receives every diagnostic of every session.
	Sink diag.Sink
	// Saver overrides the store selected by the configuration.
	Saver snapshot.Saver
	// Metrics enables the Prometheus recorder.
	Metrics bool
}

// Runtime owns an editor service and the resources behind it. Close it when
// done.
type Runtime struct {
	service *usecases.EditorService
	saver   snapshot.Saver
	config  *config.Config
	closers []io.Closer
}

// NewRuntime constructs a runtime with default configuration values and an
// in-memory snapshot store. The environment is not consulted.
func NewRuntime() *Runtime {
	rt, err := NewRuntimeFromConfig(context.Background(), config.Defaults(), Options{})
	if err != nil {
		panic(fmt.Sprintf("flowgraph: default runtime: %v", err))
	}
	return rt
}

// NewRuntimeFromConfig wires the catalog, invocation adapters, session
// registry and snapshot store described by cfg.
func NewRuntimeFromConfig(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("flowgraph: nil configuration")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := porttype.DefaultCatalog(porttype.CatalogVars{SolverBaseURL: cfg.Solver.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("load node catalog: %w", err)
	}

	rt := &Runtime{config: cfg}
	saver := opts.Saver
	if saver == nil {
		saver, err = OpenSaver(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if c, ok := saver.(io.Closer); ok {
			rt.closers = append(rt.closers, c)
		}
	}
	rt.saver = saver

	sessionCfg := usecases.SessionConfig{
		Catalog: catalog,
		Stream:  stream.NewClient(stream.WithTimeout(cfg.Solver.StreamTimeout)),
		RemoteLLM: openai.NewClient(openai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKey:      cfg.OpenAI.APIKey,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     cfg.OpenAI.Timeout,
		}),
		LocalLLM: ollama.NewClient(ollama.Config{
			Endpoint: cfg.LocalLLM.Endpoint,
			Model:    cfg.LocalLLM.Model,
			Timeout:  cfg.LocalLLM.Timeout,
		}),
		Logger:       logger,
		Sink:         opts.Sink,
		MaxSteps:     cfg.Propagation.MaxSteps,
		RejectCycles: cfg.Propagation.RejectCycles,
	}
	if opts.Metrics {
		sessionCfg.Metrics = metrics.Recorder{}
	}

	rt.service = usecases.NewEditorService(sessionCfg, sessionrepo.NewInMemoryRegistry(cfg.App.MaxSessions), saver)
	return rt, nil
}

// OpenSaver opens the snapshot store selected by cfg.Snapshot.Store.
func OpenSaver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (snapshot.Saver, error) {
	serializer, err := cfg.Serializer()
	if err != nil {
		return nil, fmt.Errorf("snapshot serializer: %w", err)
	}
	logger = logger.With("store", cfg.Snapshot.Store, "serializer", serializer.Name())

	var saver snapshot.Saver
	switch cfg.Snapshot.Store {
	case config.StoreSQLite:
		saver, err = sqlite.Open(ctx, cfg.Snapshot.SQLitePath, serializer)
	case config.StorePostgres:
		saver, err = postgres.Connect(ctx, cfg.Snapshot.DatabaseURL, serializer)
	case config.StoreBadger:
		saver, err = badger.Open(badger.Config{Path: cfg.Snapshot.BadgerPath, Logger: logger, Serializer: serializer})
	case config.StoreMemory, "":
		saver = memory.NewSnapshotSaver(memory.Config{Serializer: serializer})
	default:
		return nil, fmt.Errorf("unknown snapshot store %q", cfg.Snapshot.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s snapshot store: %w", cfg.Snapshot.Store, err)
	}
	logger.Debug("snapshot store opened")
	return saver, nil
}

// Service returns the editor service.
func (rt *Runtime) Service() *usecases.EditorService { return rt.service }

// Config returns the configuration the runtime was built from.
func (rt *Runtime) Config() *config.Config { return rt.config }

// NewSession starts an empty session.
func (rt *Runtime) NewSession(ctx context.Context) (*Session, error) {
	return rt.service.Create(ctx)
}

// LoadSession starts a session holding g after validating it.
func (rt *Runtime) LoadSession(ctx context.Context, g *Graph) (*Session, error) {
	s, err := rt.service.Create(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Restore(ctx, g); err != nil {
		_ = rt.service.Close(ctx, s.ID())
		return nil, err
	}
	return s, nil
}

// Save persists the graph of a session.
func (rt *Runtime) Save(ctx context.Context, sessionID, name string, tags ...string) (*Snapshot, error) {
	return rt.service.Save(ctx, sessionID, name, tags)
}

// Open starts a session from a stored snapshot.
func (rt *Runtime) Open(ctx context.Context, snapshotID string) (*Session, error) {
	return rt.service.Open(ctx, snapshotID)
}

// Close ends every live session and releases the snapshot store.
func (rt *Runtime) Close() error {
	ctx := context.Background()
	var errs []error
	sessions, err := rt.service.List(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, s := range sessions {
		if err := rt.service.Close(ctx, s.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DecodeGraph parses the {nodes, edges} JSON form and validates it.
func DecodeGraph(data []byte, checkCycles bool) (*Graph, error) {
	var g coregraph.Graph
	if err := serialization.NewJSONCodec().Decode(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %w", coregraph.ErrMalformedNode, err)
	}
	if err := validation.ValidateGraph(&g, validation.GraphOptions{CheckCycles: checkCycles}); err != nil {
		return nil, err
	}
	return &g, nil
}
