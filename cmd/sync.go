// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
	"github.com/bonial-oss/insightvm-graph-connector/internal/output"
	"github.com/bonial-oss/insightvm-graph-connector/internal/steps"
	"github.com/bonial-oss/insightvm-graph-connector/internal/vulncache"
)

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the full ingestion and print a summary or the collected graph",
		RunE:  runSync,
	}

	flags := cmd.Flags()
	flags.String("vulnerability-severities", "", "Comma-separated severities to ingest: Critical, Severe, Moderate (default: all)")
	flags.String("vulnerability-states", "", "Comma-separated finding states to ingest: vulnerable, invulnerable, no-results (default: all)")
	flags.String("format", "table", "Output format: table, json")
	flags.StringP("output", "o", "", "Write to file instead of stdout")
	flags.String("cache-dir", "", "Directory for the vulnerability cache (default: a temp dir removed after the run)")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown output format %q", format)}
	}

	severityFilter, err := cfg.SeverityFilter()
	if err != nil {
		return err
	}
	stateFilter, err := cfg.StateFilter()
	if err != nil {
		return err
	}

	client := insightvm.NewClient(cfg, logger)
	if err := client.VerifyAuthentication(ctx); err != nil {
		return &ExitError{Code: 3, Message: err.Error()}
	}

	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	if cacheDir == "" {
		dir, err := os.MkdirTemp("", "insightvm-vulncache-*")
		if err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		defer os.RemoveAll(dir)
		cacheDir = dir
	}
	cache, err := vulncache.Open(cacheDir)
	if err != nil {
		return fmt.Errorf("opening vulnerability cache: %w", err)
	}
	defer cache.Close()

	state := graph.NewInMemory()
	ec := &steps.ExecutionContext{
		Logger:         logger,
		Client:         client,
		JobState:       state,
		VulnCache:      cache,
		SeverityFilter: severityFilter,
		StateFilter:    stateFilter,
	}

	start := time.Now()
	if err := steps.Run(ctx, ec, steps.All()); err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "json" {
		return output.WriteJSON(w, output.NewExport(state))
	}
	return output.WriteSummary(w, output.NewSummary(state, time.Since(start)), output.IsOutputToTerminal(w))
}
