// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command cgrag runs the code-graph retrieval service and its offline
// tooling.
//
// Usage:
//
//	# Start the HTTP server
//	cgrag serve --config config.yaml
//
//	# Build a graph offline and report dead-code candidates
//	cgrag analyze /path/to/project
//
//	# Print the build version
//	cgrag version
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	configPath string
	config     Config

	rootCmd = &cobra.Command{
		Use:   "cgrag",
		Short: "Code-graph construction and graph-augmented retrieval",
		Long: `cgrag parses source trees into code graphs and answers retrieval
queries by expanding vector-search seeds through the graph.`,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		config = cfg
		return nil
	}
}
