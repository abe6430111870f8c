// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DefaultDeadCodeThreshold is the incoming-edge confidence below which
// a symbol's callers do not count as evidence of use.
const DefaultDeadCodeThreshold = 0.7

// ReviewCandidate is a symbol with no confident incoming reference.
//
// The finding is advisory. Static extraction cannot see reflective or
// dynamic dispatch, so candidates are presented for human review, never
// as proof of removability.
type ReviewCandidate struct {
	// SymbolID identifies the candidate node.
	SymbolID string `json:"symbol_id"`

	// Name is the symbol name.
	Name string `json:"name"`

	// Kind is the symbol kind name.
	Kind string `json:"kind"`

	// FilePath and Line locate the definition.
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`

	// IncomingCount is the number of incoming edges, recursive
	// self-calls included.
	IncomingCount int `json:"incoming_count"`

	// BestConfidence is the highest incoming edge confidence, 0 when
	// there are no incoming edges.
	BestConfidence float64 `json:"best_confidence"`

	// Reason explains why the symbol was flagged.
	Reason string `json:"reason"`
}

// DeadCodeReport is the outcome of one analysis pass, grouped by
// symbol kind.
type DeadCodeReport struct {
	// SnapshotVersion records which snapshot was analyzed.
	SnapshotVersion string `json:"snapshot_version"`

	// Threshold is the confidence threshold the pass ran with.
	Threshold float64 `json:"threshold"`

	// Total is the number of review candidates across all groups.
	Total int `json:"total"`

	// Groups maps kind name to its candidates, each group sorted by
	// symbol ID.
	Groups map[string][]ReviewCandidate `json:"groups"`
}

// DeadCodeAnalyzer finds symbols without confident incoming references.
// Read-only over snapshots; safe for concurrent use.
type DeadCodeAnalyzer struct {
	logger *slog.Logger
}

// NewDeadCodeAnalyzer creates an analyzer.
func NewDeadCodeAnalyzer(logger *slog.Logger) *DeadCodeAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadCodeAnalyzer{logger: logger}
}

// Analyze flags every eligible symbol that has no incoming edge with
// confidence at or above the threshold.
//
// Eligible symbols are callable or class-like. Entry points are exempt
// regardless of incoming edges; runtime-invoked names (main, dunder
// methods, test conventions) arrive already flagged as entry points by
// the extractor. A recursive self-call counts like any other incoming
// edge.
func (a *DeadCodeAnalyzer) Analyze(ctx context.Context, snapshot *Snapshot, threshold float64) (*DeadCodeReport, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidThreshold, threshold)
	}

	ctx, span := startAnalysisSpan(ctx, snapshot.Version(), threshold)
	defer span.End()
	start := time.Now()

	groups := make(map[string][]ReviewCandidate)
	total := 0

	for _, id := range snapshot.NodeIDs() {
		node := snapshot.Node(id)
		sym := node.Symbol
		if !sym.Kind.IsCallable() && !sym.Kind.IsClassLike() {
			continue
		}
		if sym.IsEntryPoint {
			continue
		}

		// The scan always completes so IncomingCount and BestConfidence
		// describe the whole in-edge set, not a prefix of it.
		incoming := 0
		best := 0.0
		confident := false
		for _, edge := range snapshot.Incoming(id) {
			incoming++
			if edge.Confidence > best {
				best = edge.Confidence
			}
			if edge.Confidence >= threshold {
				confident = true
			}
		}
		if confident {
			continue
		}

		reason := "no incoming references"
		if incoming > 0 {
			reason = fmt.Sprintf("best incoming confidence %.2f below threshold %.2f", best, threshold)
		}
		kind := sym.Kind.String()
		groups[kind] = append(groups[kind], ReviewCandidate{
			SymbolID:       sym.ID,
			Name:           sym.Name,
			Kind:           kind,
			FilePath:       sym.FilePath,
			Line:           sym.StartLine,
			IncomingCount:  incoming,
			BestConfidence: best,
			Reason:         reason,
		})
		total++
	}

	// NodeIDs iteration is sorted, so groups are already ordered by ID.
	for kind := range groups {
		sort.Slice(groups[kind], func(i, j int) bool {
			return groups[kind][i].SymbolID < groups[kind][j].SymbolID
		})
	}

	duration := time.Since(start)
	recordDeadCodeMetrics(ctx, duration, total)
	a.logger.Debug("dead-code analysis complete",
		"snapshot_version", snapshot.Version(),
		"threshold", threshold,
		"candidates", total,
		"duration_ms", duration.Milliseconds())

	return &DeadCodeReport{
		SnapshotVersion: snapshot.Version(),
		Threshold:       threshold,
		Total:           total,
		Groups:          groups,
	}, nil
}
