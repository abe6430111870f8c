// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval implements graph-augmented retrieval over code
// snapshots: vector search seeds a hop-bounded subgraph expansion,
// nodes are ranked by similarity and centrality, and a token-budgeted
// context is assembled. A confidence gate classifies how trustworthy
// the retrieval evidence is; the classification is advisory and never
// blocks a request.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/cgrag/services/cgrag/graph"
)

// Expansion defaults.
const (
	// DefaultHops bounds the BFS frontier. Two hops reaches callers of
	// callers, which covers most cross-file relationships without
	// pulling in half the graph.
	DefaultHops = 2

	// DefaultMinEdgeConfidence filters out attribute-call heuristics
	// during expansion while keeping direct evidence.
	DefaultMinEdgeConfidence = 0.5
)

// ExpandOptions tune subgraph expansion.
type ExpandOptions struct {
	// Hops is the BFS bound. Zero means seeds only.
	Hops int

	// MinEdgeConfidence is the floor an edge must meet to be traversed
	// or included.
	MinEdgeConfidence float64
}

// DefaultExpandOptions returns the standard expansion parameters.
func DefaultExpandOptions() ExpandOptions {
	return ExpandOptions{
		Hops:              DefaultHops,
		MinEdgeConfidence: DefaultMinEdgeConfidence,
	}
}

// Expand grows a subgraph around seed nodes with a bidirectional,
// hop-bounded BFS.
//
// Edges are traversed in both directions, so callers of a seed are as
// reachable as its callees. Seed IDs missing from the snapshot are
// skipped; duplicate seeds are deduplicated. The result includes every
// edge between member nodes that meets the confidence floor, not only
// the edges the BFS walked.
func Expand(ctx context.Context, snapshot *graph.Snapshot, seedIDs []string, opts ExpandOptions) (*graph.Subgraph, error) {
	if opts.Hops < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHops, opts.Hops)
	}
	if opts.MinEdgeConfidence < 0 || opts.MinEdgeConfidence > 1 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidConfidence, opts.MinEdgeConfidence)
	}

	ctx, span := startExpandSpan(ctx, len(seedIDs), opts.Hops)
	defer span.End()

	seeds := make([]string, 0, len(seedIDs))
	members := make(map[string]struct{}, len(seedIDs))
	for _, id := range seedIDs {
		if snapshot.Node(id) == nil {
			continue
		}
		if _, seen := members[id]; seen {
			continue
		}
		members[id] = struct{}{}
		seeds = append(seeds, id)
	}

	frontier := append([]string(nil), seeds...)
	for hop := 0; hop < opts.Hops && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []string
		for _, id := range frontier {
			for _, edge := range snapshot.Outgoing(id) {
				if edge.Confidence < opts.MinEdgeConfidence {
					continue
				}
				if _, seen := members[edge.ToID]; !seen {
					members[edge.ToID] = struct{}{}
					next = append(next, edge.ToID)
				}
			}
			for _, edge := range snapshot.Incoming(id) {
				if edge.Confidence < opts.MinEdgeConfidence {
					continue
				}
				if _, seen := members[edge.FromID]; !seen {
					members[edge.FromID] = struct{}{}
					next = append(next, edge.FromID)
				}
			}
		}
		frontier = next
	}

	memberIDs := make([]string, 0, len(members))
	for id := range members {
		memberIDs = append(memberIDs, id)
	}
	sort.Strings(memberIDs)

	// Edge collection is a second pass so that edges between two nodes
	// discovered on the same hop are not missed.
	var edges []*graph.Edge
	for _, id := range memberIDs {
		for _, edge := range snapshot.Outgoing(id) {
			if edge.Confidence < opts.MinEdgeConfidence {
				continue
			}
			if _, ok := members[edge.ToID]; ok {
				edges = append(edges, edge)
			}
		}
	}

	return graph.NewSubgraph(snapshot, seeds, memberIDs, edges, opts.Hops), nil
}
