// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
	"github.com/AleutianAI/cgrag/services/cgrag/graph"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"nil query", nil, []float32{1, 0}, 0},
		{"nil embedding", []float32{1, 0}, nil, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestPrioritizeOrdersBySimilarityAndCentrality(t *testing.T) {
	// hub has degree 2, relevant matches the query exactly, spoke has
	// neither going for it.
	hub := sym("hub.py", 1, "hub_fn")
	relevant := sym("rel.py", 1, "relevant_fn")
	spoke := sym("spoke.py", 1, "spoke_fn")
	refs := []ast.Reference{
		{FromID: hub.ID, TargetName: "relevant_fn", Type: ast.RefCalls, Confidence: 0.9, Line: 2},
		{FromID: hub.ID, TargetName: "spoke_fn", Type: ast.RefCalls, Confidence: 0.9, Line: 3},
	}
	result, err := graph.NewBuilder().Build(context.Background(), "repo",
		[]*ast.Symbol{hub, relevant, spoke}, refs)
	require.NoError(t, err)

	snap := result.Snapshot.WithEmbeddings(map[string][]float32{
		relevant.ID: {1, 0},
		spoke.ID:    {0, 1},
	})
	sub, err := Expand(context.Background(), snap, []string{hub.ID}, ExpandOptions{Hops: 1, MinEdgeConfidence: 0.5})
	require.NoError(t, err)

	ranked := Prioritize(sub, []float32{1, 0}, DefaultRankWeights)
	require.Len(t, ranked, 3)

	// relevant: sim 1.0, centrality 0.5 -> 0.85
	// hub: sim 0 (no embedding), centrality 1.0 -> 0.3
	// spoke: sim 0, centrality 0.5 -> 0.15
	assert.Equal(t, relevant.ID, ranked[0].Node.ID())
	assert.Equal(t, hub.ID, ranked[1].Node.ID())
	assert.Equal(t, spoke.ID, ranked[2].Node.ID())

	assert.InDelta(t, 0.85, ranked[0].Score, 1e-9)
	assert.InDelta(t, 0.3, ranked[1].Score, 1e-9)
	assert.InDelta(t, 0.15, ranked[2].Score, 1e-9)
}

func TestPrioritizeTieBreaksOnID(t *testing.T) {
	a := sym("a.py", 1, "fa")
	b := sym("b.py", 1, "fb")
	result, err := graph.NewBuilder().Build(context.Background(), "repo", []*ast.Symbol{a, b}, nil)
	require.NoError(t, err)

	sub, err := Expand(context.Background(), result.Snapshot, []string{a.ID, b.ID}, ExpandOptions{Hops: 0, MinEdgeConfidence: 0.5})
	require.NoError(t, err)

	ranked := Prioritize(sub, nil, DefaultRankWeights)
	require.Len(t, ranked, 2)
	assert.Equal(t, a.ID, ranked[0].Node.ID())
	assert.Equal(t, b.ID, ranked[1].Node.ID())
}
