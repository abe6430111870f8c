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
	"math"
	"sort"

	"github.com/AleutianAI/cgrag/services/cgrag/graph"
)

// RankWeights combine the ranking signals. Weights need not sum to 1;
// ranking only depends on their ratio.
type RankWeights struct {
	// Similarity weights cosine similarity to the query embedding.
	Similarity float64

	// Centrality weights normalized degree within the subgraph.
	Centrality float64
}

// DefaultRankWeights favor query relevance over structural importance.
var DefaultRankWeights = RankWeights{Similarity: 0.7, Centrality: 0.3}

// RankedNode is a subgraph node with its ranking breakdown.
type RankedNode struct {
	// Node is the underlying graph node.
	Node *graph.Node

	// Score is the combined ranking score.
	Score float64

	// Similarity is cosine similarity to the query, 0 when either side
	// has no embedding.
	Similarity float64

	// Centrality is degree within the subgraph, normalized to [0, 1]
	// by the subgraph's maximum degree.
	Centrality float64
}

// Prioritize orders subgraph nodes by weighted similarity and
// centrality, descending. Ties break on ascending node ID, so the
// ordering is fully deterministic for a given subgraph and query.
func Prioritize(sub *graph.Subgraph, queryEmbedding []float32, weights RankWeights) []RankedNode {
	maxDegree := 0
	for _, id := range sub.NodeIDs {
		if d := sub.Degree(id); d > maxDegree {
			maxDegree = d
		}
	}

	ranked := make([]RankedNode, 0, len(sub.NodeIDs))
	for _, id := range sub.NodeIDs {
		node := sub.Node(id)
		sim := cosineSimilarity(queryEmbedding, node.Embedding)
		cent := 0.0
		if maxDegree > 0 {
			cent = float64(sub.Degree(id)) / float64(maxDegree)
		}
		ranked = append(ranked, RankedNode{
			Node:       node,
			Score:      weights.Similarity*sim + weights.Centrality*cent,
			Similarity: sim,
			Centrality: cent,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Node.ID() < ranked[j].Node.ID()
	})
	return ranked
}

// cosineSimilarity returns 0 when either vector is missing, empty, or
// zero-normed, so unembedded nodes rank purely on centrality.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
