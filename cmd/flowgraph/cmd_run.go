package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seehiong/micronaut-optimizer/internal/config"
	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/logging"
	"github.com/seehiong/micronaut-optimizer/pkg/flowgraph"
)

type runOptions struct {
	submits []string
	invokes []string
	out     string
	save    string
	timeout time.Duration
	verbose bool
}

// submission is one --submit flag: a node and the value it emits.
type submission struct {
	nodeID string
	value  value.Value
}

// invocation is one --invoke flag.
type invocation struct {
	nodeID string
	mode   flowgraph.InvokeMode
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Load a graph, submit values, invoke nodes and print the result",
		Long: `run loads FILE into a fresh session, applies every --submit in order,
then runs every --invoke concurrently and waits for them. The final graph is
written to --out or stdout. Diagnostics go to stderr.

  flowgraph run pipeline.json --submit n0='[[0,1],[1,0]]' --invoke n2:stream`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.submits, "submit", nil, "submit NODE=VALUE from a SUBMIT node; VALUE is JSON or plain text")
	cmd.Flags().StringArrayVar(&opts.invokes, "invoke", nil, "invoke NODE:MODE where MODE is stream, remote-llm or local-llm")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the resulting graph to this file")
	cmd.Flags().StringVar(&opts.save, "save", "", "store the resulting graph as a snapshot with this name")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort invocations after this long")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "also write structured logs to stderr")
	return cmd
}

func runGraph(ctx context.Context, stdout, stderr io.Writer, path string, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	submissions, err := parseSubmissions(opts.submits)
	if err != nil {
		return err
	}
	invocations, err := parseInvocations(opts.invokes)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// diagnostics are printed by the sink; the log only adds detail on request
	logger := logging.Discard()
	if opts.verbose {
		logger = logging.New(cfg.App.LogLevel, cfg.App.LogFormat, stderr)
	}
	ctx = logging.WithLogger(ctx, logger)

	rt, err := flowgraph.NewRuntimeFromConfig(ctx, cfg, flowgraph.Options{
		Logger: logger,
		Sink:   printSink(stderr),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			logger.Warn("runtime close failed", "error", cerr)
		}
	}()

	g, err := readGraph(path, cfg.Propagation.RejectCycles)
	if err != nil {
		return err
	}
	s, err := rt.LoadSession(ctx, g)
	if err != nil {
		return err
	}

	for _, sub := range submissions {
		if _, _, err := s.Submit(ctx, sub.nodeID, sub.value); err != nil {
			return fmt.Errorf("submit %s: %w", sub.nodeID, err)
		}
	}

	invokeErr := invokeAll(ctx, s, invocations, opts.timeout, stderr)

	if opts.save != "" {
		snap, err := rt.Save(ctx, s.ID(), opts.save, "cli")
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "saved snapshot %s\n", snap.ID)
	}
	if err := writeGraph(stdout, opts.out, s.Snapshot()); err != nil {
		return err
	}
	return invokeErr
}

// invokeAll runs every invocation concurrently. A failure does not cancel
// the others; the first error is returned once all have finished.
func invokeAll(ctx context.Context, s *flowgraph.Session, invocations []invocation, timeout time.Duration, stderr io.Writer) error {
	if len(invocations) == 0 {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for _, inv := range invocations {
		inv := inv
		g.Go(func() error {
			res, err := s.Invoke(ctx, inv.nodeID, inv.mode)
			mu.Lock()
			fmt.Fprintf(stderr, "invoke %s (%s): applied=%d stale=%t duration=%s\n",
				inv.nodeID, inv.mode, res.Applied, res.Stale, res.Duration.Round(time.Millisecond))
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("invoke %s: %w", inv.nodeID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func writeGraph(stdout io.Writer, path string, g *flowgraph.Graph) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}

func printSink(w io.Writer) diag.Sink {
	var mu sync.Mutex
	return diag.SinkFunc(func(_ context.Context, d diag.Diagnostic) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, d.String())
	})
}

func parseSubmissions(flags []string) ([]submission, error) {
	out := make([]submission, 0, len(flags))
	for _, f := range flags {
		nodeID, raw, ok := strings.Cut(f, "=")
		if !ok || nodeID == "" {
			return nil, fmt.Errorf("--submit %q: want NODE=VALUE", f)
		}
		v, err := value.ParseString(raw)
		if err != nil {
			v = value.Text(raw)
		}
		out = append(out, submission{nodeID: nodeID, value: v})
	}
	return out, nil
}

func parseInvocations(flags []string) ([]invocation, error) {
	out := make([]invocation, 0, len(flags))
	for _, f := range flags {
		nodeID, mode, ok := strings.Cut(f, ":")
		if !ok || nodeID == "" {
			return nil, fmt.Errorf("--invoke %q: want NODE:MODE", f)
		}
		m := flowgraph.InvokeMode(mode)
		if !m.Valid() {
			return nil, errors.New("--invoke " + f + ": mode must be stream, remote-llm or local-llm")
		}
		out = append(out, invocation{nodeID: nodeID, mode: m})
	}
	return out, nil
}
