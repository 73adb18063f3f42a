package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seehiong/micronaut-optimizer/internal/config"
	"github.com/seehiong/micronaut-optimizer/internal/core/porttype"
	"github.com/seehiong/micronaut-optimizer/pkg/flowgraph"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowgraph",
		Short: "Edit and run TSP solver pipelines from the command line",
		Long: `flowgraph loads a saved pipeline graph, pushes values through it
and runs its solver and language model nodes, printing the resulting graph.`,
		SilenceUsage: true,
	}
	root.AddCommand(newVersionCmd(), newCatalogCmd(), newValidateCmd(), newRunCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "FlowGraph %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
		},
	}
}

func newCatalogCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the node templates available to a pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			catalog, err := porttype.DefaultCatalog(porttype.CatalogVars{SolverBaseURL: cfg.Solver.BaseURL})
			if err != nil {
				return err
			}
			templates := catalog.Templates()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(templates)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTRIGGER\tTRANSFORM\tINPUTS\tOUTPUTS")
			for _, t := range templates {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Name,
					orDash(string(t.TriggerAction)), orDash(string(t.TransformType)),
					orDash(strings.Join(t.InputTypes, ",")), orDash(strings.Join(t.OutputTypes, ",")))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the templates as JSON")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var allowCycles bool
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check that a graph file is well formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readGraph(args[0], !allowCycles)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d nodes, %d edges)\n", args[0], len(g.Nodes), len(g.Edges))
			return nil
		},
	}
	cmd.Flags().BoolVar(&allowCycles, "allow-cycles", false, "accept graphs containing directed cycles")
	return cmd
}

func readGraph(path string, checkCycles bool) (*flowgraph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	g, err := flowgraph.DecodeGraph(data, checkCycles)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
