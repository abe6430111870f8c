// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cgrag/pkg/logging"
	"github.com/AleutianAI/cgrag/services/cgrag"
	"github.com/AleutianAI/cgrag/services/cgrag/graph"
)

var (
	analyzeThreshold float64
	analyzeJSON      bool

	analyzeCmd = &cobra.Command{
		Use:   "analyze [project root]",
		Short: "Build a code graph offline and report dead-code candidates",
		Long: `Parses a project directory, builds the code graph in memory, and
prints review candidates: symbols with no incoming reference above the
confidence threshold. Entry points are never flagged.`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyze,
	}
)

func init() {
	analyzeCmd.Flags().Float64Var(&analyzeThreshold, "threshold", graph.DefaultDeadCodeThreshold,
		"Minimum incoming reference confidence that counts as a real use")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Emit the full report as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.LogLevel),
		Service: "cgrag",
	})
	defer logger.Close()

	store := graph.NewStore(graph.NewBuilder())
	svcConfig := cgrag.DefaultServiceConfig()
	svcConfig.PatternConfigPath = config.PatternConfig
	svc, err := cgrag.NewService(svcConfig, store, nil,
		cgrag.WithServiceLogger(logger.Slog()))
	if err != nil {
		return err
	}

	stats, err := svc.BuildRepository(cmd.Context(), "local", args[0])
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	report, err := svc.DeadCode(cmd.Context(), "local", analyzeThreshold)
	if err != nil {
		return err
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Parsed %d files (%d skipped): %d symbols, %d references, %d unresolved\n",
		stats.FilesParsed, stats.FilesSkipped, stats.Nodes, stats.Edges, stats.Unresolved)
	if report.Total == 0 {
		fmt.Println("No review candidates found.")
		return nil
	}

	fmt.Printf("%d review candidates (threshold %.2f):\n", report.Total, report.Threshold)
	kinds := make([]string, 0, len(report.Groups))
	for kind := range report.Groups {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("\n%s:\n", kind)
		for _, c := range report.Groups[kind] {
			fmt.Printf("  %s (%s:%d) - %s\n", c.Name, c.FilePath, c.Line, c.Reason)
		}
	}
	return nil
}
