// Package main runs the pipeline editor backend: the HTTP API over live
// editing sessions, their event streams and the snapshot store.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	httpapi "github.com/seehiong/micronaut-optimizer/internal/adapters/http"
	"github.com/seehiong/micronaut-optimizer/internal/config"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/logging"
	"github.com/seehiong/micronaut-optimizer/pkg/flowgraph"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.App.LogLevel, cfg.App.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := flowgraph.NewRuntimeFromConfig(ctx, cfg, flowgraph.Options{
		Logger:  logger,
		Metrics: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("runtime close failed", "error", err)
		}
	}()

	logger.Info("starting flowgraph server",
		"addr", cfg.App.ServerAddr,
		"snapshot_store", cfg.Snapshot.Store,
		"solver", cfg.Solver.BaseURL)

	api := httpapi.New(rt.Service(), logger, httpapi.Options{InvokeTimeout: cfg.Solver.StreamTimeout})
	return api.Serve(ctx, cfg.App.ServerAddr, cfg.App.ShutdownTimeout)
}
