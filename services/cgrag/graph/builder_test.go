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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

func sym(file string, line int, name string, kind ast.SymbolKind) *ast.Symbol {
	return &ast.Symbol{
		ID:        ast.GenerateID(file, line, name),
		Name:      name,
		Kind:      kind,
		FilePath:  file,
		StartLine: line,
		EndLine:   line + 5,
		Language:  "python",
	}
}

func TestBuildResolvesReferences(t *testing.T) {
	caller := sym("svc/api.py", 10, "handler", ast.SymbolKindFunction)
	callee := sym("svc/db.py", 3, "fetch_items", ast.SymbolKindFunction)

	refs := []ast.Reference{
		{FromID: caller.ID, TargetName: "fetch_items", Type: ast.RefCalls, Confidence: 0.8, Line: 12},
		{FromID: caller.ID, TargetName: "not_defined_here", Type: ast.RefCalls, Confidence: 0.8, Line: 13},
	}

	result, err := NewBuilder().Build(context.Background(), "repo", []*ast.Symbol{caller, callee}, refs)
	require.NoError(t, err)

	snap := result.Snapshot
	assert.Equal(t, 2, snap.NodeCount())
	require.Equal(t, 1, snap.EdgeCount())
	assert.Equal(t, 1, result.UnresolvedCount)

	edge := snap.Edges()[0]
	assert.Equal(t, caller.ID, edge.FromID)
	assert.Equal(t, callee.ID, edge.ToID)
	assert.Equal(t, ast.RefCalls, edge.Type)
	assert.Equal(t, 0.8, edge.Confidence)

	assert.Len(t, snap.Outgoing(caller.ID), 1)
	assert.Len(t, snap.Incoming(callee.ID), 1)
}

func TestBuildIsDeterministicAcrossInputOrder(t *testing.T) {
	var symbols []*ast.Symbol
	var refs []ast.Reference
	for i := 0; i < 20; i++ {
		s := sym(fmt.Sprintf("pkg/f%d.py", i), 1, fmt.Sprintf("func_%d", i), ast.SymbolKindFunction)
		symbols = append(symbols, s)
	}
	for i := 1; i < 20; i++ {
		refs = append(refs, ast.Reference{
			FromID:     symbols[i].ID,
			TargetName: symbols[i-1].Name,
			Type:       ast.RefCalls,
			Confidence: 0.8,
			Line:       2,
		})
	}

	reversedSymbols := make([]*ast.Symbol, len(symbols))
	for i, s := range symbols {
		reversedSymbols[len(symbols)-1-i] = s
	}
	reversedRefs := make([]ast.Reference, len(refs))
	for i, r := range refs {
		reversedRefs[len(refs)-1-i] = r
	}

	b := NewBuilder()
	r1, err := b.Build(context.Background(), "repo", symbols, refs)
	require.NoError(t, err)
	r2, err := b.Build(context.Background(), "repo", reversedSymbols, reversedRefs)
	require.NoError(t, err)

	assert.Equal(t, r1.Snapshot.NodeIDs(), r2.Snapshot.NodeIDs())
	require.Equal(t, r1.Snapshot.EdgeCount(), r2.Snapshot.EdgeCount())
	for i, e1 := range r1.Snapshot.Edges() {
		e2 := r2.Snapshot.Edges()[i]
		assert.Equal(t, *e1, *e2)
	}
	assert.NotEqual(t, r1.Snapshot.Version(), r2.Snapshot.Version(),
		"each build gets its own version")
}

func TestResolutionPrefersSameFileThenSmallestID(t *testing.T) {
	// Three symbols named "helper": one in the referencing file, two
	// elsewhere. The same-file definition must win.
	caller := sym("svc/api.py", 5, "handler", ast.SymbolKindFunction)
	local := sym("svc/api.py", 40, "helper", ast.SymbolKindFunction)
	otherA := sym("svc/a.py", 1, "helper", ast.SymbolKindFunction)
	otherB := sym("svc/b.py", 1, "helper", ast.SymbolKindFunction)

	ref := ast.Reference{FromID: caller.ID, TargetName: "helper", Type: ast.RefCalls, Confidence: 0.8, Line: 6}

	result, err := NewBuilder().Build(context.Background(), "repo",
		[]*ast.Symbol{caller, local, otherA, otherB}, []ast.Reference{ref})
	require.NoError(t, err)
	require.Equal(t, 1, result.Snapshot.EdgeCount())
	assert.Equal(t, local.ID, result.Snapshot.Edges()[0].ToID)

	// Without a same-file candidate, the smallest ID wins.
	result, err = NewBuilder().Build(context.Background(), "repo",
		[]*ast.Symbol{caller, otherA, otherB}, []ast.Reference{ref})
	require.NoError(t, err)
	require.Equal(t, 1, result.Snapshot.EdgeCount())
	assert.Equal(t, otherA.ID, result.Snapshot.Edges()[0].ToID)
}

func TestBuildRejectsDuplicateSymbolIDs(t *testing.T) {
	s := sym("svc/api.py", 10, "handler", ast.SymbolKindFunction)
	dup := *s

	_, err := NewBuilder().Build(context.Background(), "repo", []*ast.Symbol{s, &dup}, nil)
	assert.ErrorIs(t, err, ErrDuplicateSymbol)
}

func TestBuildRejectsEmptyRepository(t *testing.T) {
	_, err := NewBuilder().Build(context.Background(), "", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyRepository)
}

func TestBuildDropsReferenceFromUnknownSymbol(t *testing.T) {
	target := sym("svc/db.py", 3, "fetch", ast.SymbolKindFunction)
	refs := []ast.Reference{
		{FromID: "svc/gone.py:1:ghost", TargetName: "fetch", Type: ast.RefCalls, Confidence: 0.8, Line: 2},
	}

	result, err := NewBuilder().Build(context.Background(), "repo", []*ast.Symbol{target}, refs)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Snapshot.EdgeCount())
	assert.Equal(t, 1, result.UnresolvedCount)
}

func TestBuildClampsConfidence(t *testing.T) {
	a := sym("a.py", 1, "a", ast.SymbolKindFunction)
	b := sym("b.py", 1, "b", ast.SymbolKindFunction)
	refs := []ast.Reference{
		{FromID: a.ID, TargetName: "b", Type: ast.RefCalls, Confidence: 1.7, Line: 2},
	}

	result, err := NewBuilder().Build(context.Background(), "repo", []*ast.Symbol{a, b}, refs)
	require.NoError(t, err)
	require.Equal(t, 1, result.Snapshot.EdgeCount())
	assert.Equal(t, 1.0, result.Snapshot.Edges()[0].Confidence)
}

func TestBuildHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := sym("a.py", 1, "a", ast.SymbolKindFunction)
	refs := []ast.Reference{
		{FromID: a.ID, TargetName: "a", Type: ast.RefCalls, Confidence: 0.8, Line: 2},
	}
	_, err := NewBuilder().Build(ctx, "repo", []*ast.Symbol{a}, refs)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIDFile(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"svc/api.py:10:handler", "svc/api.py"},
		{"C:/code/api.py:10:handler", "C:/code/api.py"},
		{"noseparators", "noseparators"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, idFile(tt.id), "id %q", tt.id)
	}
}

func TestWithEmbeddingsLeavesOriginalUntouched(t *testing.T) {
	a := sym("a.py", 1, "a", ast.SymbolKindFunction)
	result, err := NewBuilder().Build(context.Background(), "repo", []*ast.Symbol{a}, nil)
	require.NoError(t, err)

	orig := result.Snapshot
	withEmb := orig.WithEmbeddings(map[string][]float32{a.ID: {0.1, 0.2}})

	assert.Nil(t, orig.Node(a.ID).Embedding)
	assert.Equal(t, []float32{0.1, 0.2}, withEmb.Node(a.ID).Embedding)
	assert.Equal(t, orig.Version(), withEmb.Version())
}
