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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

func buildSnapshot(t *testing.T, symbols []*ast.Symbol, refs []ast.Reference) *Snapshot {
	t.Helper()
	result, err := NewBuilder().Build(context.Background(), "repo", symbols, refs)
	require.NoError(t, err)
	return result.Snapshot
}

func analyze(t *testing.T, snap *Snapshot, threshold float64) *DeadCodeReport {
	t.Helper()
	report, err := NewDeadCodeAnalyzer(nil).Analyze(context.Background(), snap, threshold)
	require.NoError(t, err)
	return report
}

func candidateIDs(report *DeadCodeReport) []string {
	var ids []string
	for _, group := range report.Groups {
		for _, c := range group {
			ids = append(ids, c.SymbolID)
		}
	}
	return ids
}

func TestUncalledFunctionIsFlagged(t *testing.T) {
	orphan := sym("svc/util.py", 3, "leftover_helper", ast.SymbolKindFunction)
	snap := buildSnapshot(t, []*ast.Symbol{orphan}, nil)

	report := analyze(t, snap, DefaultDeadCodeThreshold)
	require.Equal(t, 1, report.Total)

	group := report.Groups["function"]
	require.Len(t, group, 1)
	assert.Equal(t, orphan.ID, group[0].SymbolID)
	assert.Equal(t, 0, group[0].IncomingCount)
	assert.Equal(t, "no incoming references", group[0].Reason)
}

func TestConfidentIncomingEdgeExempts(t *testing.T) {
	caller := sym("svc/api.py", 1, "handler", ast.SymbolKindFunction)
	callee := sym("svc/db.py", 1, "fetch", ast.SymbolKindFunction)
	refs := []ast.Reference{
		{FromID: caller.ID, TargetName: "fetch", Type: ast.RefCalls, Confidence: 0.8, Line: 2},
	}
	snap := buildSnapshot(t, []*ast.Symbol{caller, callee}, refs)

	report := analyze(t, snap, DefaultDeadCodeThreshold)
	assert.NotContains(t, candidateIDs(report), callee.ID)
	// The caller itself has no callers, so it is flagged instead.
	assert.Contains(t, candidateIDs(report), caller.ID)
}

func TestLowConfidenceEdgeDoesNotExempt(t *testing.T) {
	caller := sym("svc/api.py", 1, "handler", ast.SymbolKindFunction)
	callee := sym("svc/db.py", 1, "fetch", ast.SymbolKindFunction)
	refs := []ast.Reference{
		{FromID: caller.ID, TargetName: "fetch", Type: ast.RefCalls, Confidence: 0.5, Line: 2},
	}
	snap := buildSnapshot(t, []*ast.Symbol{caller, callee}, refs)

	report := analyze(t, snap, DefaultDeadCodeThreshold)
	assert.Contains(t, candidateIDs(report), callee.ID)

	group := report.Groups["function"]
	for _, c := range group {
		if c.SymbolID == callee.ID {
			assert.Equal(t, 1, c.IncomingCount)
			assert.Equal(t, 0.5, c.BestConfidence)
		}
	}
}

func TestEntryPointIsNeverFlagged(t *testing.T) {
	handler := sym("svc/api.py", 1, "list_items", ast.SymbolKindFunction)
	handler.IsEntryPoint = true
	snap := buildSnapshot(t, []*ast.Symbol{handler}, nil)

	report := analyze(t, snap, DefaultDeadCodeThreshold)
	assert.Equal(t, 0, report.Total)
}

func TestNameAloneDoesNotExempt(t *testing.T) {
	// Runtime-invoked names are exempt only when extraction flagged
	// them as entry points; the analyzer never skips by name.
	for _, name := range []string{"main", "__init__", "test_helper"} {
		s := sym("svc/x.py", 1, name, ast.SymbolKindFunction)
		snap := buildSnapshot(t, []*ast.Symbol{s}, nil)
		report := analyze(t, snap, DefaultDeadCodeThreshold)
		assert.Equal(t, 1, report.Total, "name %q", name)
	}
}

func TestConfidentSelfReferenceExempts(t *testing.T) {
	recursive := sym("svc/walk.py", 1, "descend", ast.SymbolKindFunction)
	refs := []ast.Reference{
		{FromID: recursive.ID, TargetName: "descend", Type: ast.RefCalls, Confidence: 0.9, Line: 4},
	}
	snap := buildSnapshot(t, []*ast.Symbol{recursive}, refs)

	report := analyze(t, snap, DefaultDeadCodeThreshold)
	assert.Equal(t, 0, report.Total)
}

func TestLowConfidenceSelfReferenceIsCounted(t *testing.T) {
	recursive := sym("svc/walk.py", 1, "descend", ast.SymbolKindFunction)
	refs := []ast.Reference{
		{FromID: recursive.ID, TargetName: "descend", Type: ast.RefCalls, Confidence: 0.5, Line: 4},
	}
	snap := buildSnapshot(t, []*ast.Symbol{recursive}, refs)

	report := analyze(t, snap, DefaultDeadCodeThreshold)
	group := report.Groups["function"]
	require.Len(t, group, 1)
	assert.Equal(t, 1, group[0].IncomingCount)
	assert.Equal(t, 0.5, group[0].BestConfidence)
}

func TestCandidateAggregatesAllIncomingEdges(t *testing.T) {
	callerA := sym("svc/a.py", 1, "caller_a", ast.SymbolKindFunction)
	callerB := sym("svc/b.py", 1, "caller_b", ast.SymbolKindFunction)
	callerC := sym("svc/c.py", 1, "caller_c", ast.SymbolKindFunction)
	target := sym("svc/t.py", 1, "maybe_used", ast.SymbolKindFunction)
	refs := []ast.Reference{
		{FromID: callerA.ID, TargetName: "maybe_used", Type: ast.RefCalls, Confidence: 0.2, Line: 2},
		{FromID: callerB.ID, TargetName: "maybe_used", Type: ast.RefCalls, Confidence: 0.65, Line: 3},
		{FromID: callerC.ID, TargetName: "maybe_used", Type: ast.RefCalls, Confidence: 0.4, Line: 4},
	}
	snap := buildSnapshot(t, []*ast.Symbol{callerA, callerB, callerC, target}, refs)

	report := analyze(t, snap, DefaultDeadCodeThreshold)
	var found *ReviewCandidate
	for _, c := range report.Groups["function"] {
		if c.SymbolID == target.ID {
			found = &c
			break
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 3, found.IncomingCount)
	assert.Equal(t, 0.65, found.BestConfidence)
}

func TestVariablesAreNotEligible(t *testing.T) {
	v := sym("svc/cfg.py", 1, "UNUSED_SETTING", ast.SymbolKindVariable)
	snap := buildSnapshot(t, []*ast.Symbol{v}, nil)

	report := analyze(t, snap, DefaultDeadCodeThreshold)
	assert.Equal(t, 0, report.Total)
}

func TestGroupsAreKeyedByKind(t *testing.T) {
	fn := sym("svc/a.py", 1, "orphan_fn", ast.SymbolKindFunction)
	cls := sym("svc/b.py", 1, "OrphanClass", ast.SymbolKindClass)
	snap := buildSnapshot(t, []*ast.Symbol{fn, cls}, nil)

	report := analyze(t, snap, DefaultDeadCodeThreshold)
	assert.Len(t, report.Groups["function"], 1)
	assert.Len(t, report.Groups["class"], 1)
	assert.Equal(t, 2, report.Total)
}

func TestInvalidThreshold(t *testing.T) {
	snap := buildSnapshot(t, nil, nil)
	_, err := NewDeadCodeAnalyzer(nil).Analyze(context.Background(), snap, 1.5)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = NewDeadCodeAnalyzer(nil).Analyze(context.Background(), snap, -0.1)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}
