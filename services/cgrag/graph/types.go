// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds and serves immutable code-graph snapshots.
//
// Symbols become nodes, resolved references become typed weighted edges.
// A snapshot is assembled privately by the builder, then published
// through the store; after publication nothing mutates it, so readers
// never take a lock. Rebuilds replace the whole snapshot atomically.
package graph

import (
	"sort"
	"time"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

// Node is a symbol plus retrieval metadata inside one snapshot.
type Node struct {
	// Symbol is the underlying code symbol. Treated as immutable.
	Symbol *ast.Symbol

	// Embedding is an optional dense vector for similarity ranking.
	// Nil when the symbol has not been embedded.
	Embedding []float32
}

// ID returns the node's symbol ID.
func (n *Node) ID() string {
	return n.Symbol.ID
}

// Edge is a resolved, confidence-weighted relationship between two
// nodes. Both endpoints are guaranteed to exist in the owning snapshot.
type Edge struct {
	// FromID is the source node ID (the usage site).
	FromID string `json:"from_id"`

	// ToID is the target node ID (the definition).
	ToID string `json:"to_id"`

	// Type classifies the relationship.
	Type ast.ReferenceType `json:"type"`

	// Confidence is the extraction confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Line is the 1-indexed line of the usage site.
	Line int `json:"line"`
}

// Snapshot is an immutable code graph for one repository at one build.
//
// All exported methods are safe for unsynchronized concurrent use
// because nothing mutates a snapshot after the builder returns it.
type Snapshot struct {
	version    string
	generation uint64
	repository string
	builtAt    time.Time

	nodes    map[string]*Node
	edges    []*Edge
	outgoing map[string][]*Edge
	incoming map[string][]*Edge

	// byName maps symbol name to sorted node IDs. Retained after the
	// build for retrieval-time seed lookup by name.
	byName map[string][]string
}

// Version returns the snapshot's unique version identifier.
func (s *Snapshot) Version() string { return s.version }

// Generation returns the per-repository monotonic build counter.
// Zero until the snapshot is committed to a store.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Repository returns the repository this snapshot was built for.
func (s *Snapshot) Repository() string { return s.repository }

// BuiltAt returns the build completion time.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// NodeCount returns the number of nodes.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges.
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// Node returns the node with the given ID, or nil.
func (s *Snapshot) Node(id string) *Node {
	return s.nodes[id]
}

// NodeIDs returns all node IDs in sorted order.
func (s *Snapshot) NodeIDs() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edges returns all edges. Callers must not modify the slice.
func (s *Snapshot) Edges() []*Edge {
	return s.edges
}

// Outgoing returns edges whose source is the given node.
func (s *Snapshot) Outgoing(id string) []*Edge {
	return s.outgoing[id]
}

// Incoming returns edges whose target is the given node.
func (s *Snapshot) Incoming(id string) []*Edge {
	return s.incoming[id]
}

// OutDegree returns the number of outgoing edges for a node.
func (s *Snapshot) OutDegree(id string) int {
	return len(s.outgoing[id])
}

// InDegree returns the number of incoming edges for a node.
func (s *Snapshot) InDegree(id string) int {
	return len(s.incoming[id])
}

// Degree returns the total degree of a node.
func (s *Snapshot) Degree(id string) int {
	return len(s.outgoing[id]) + len(s.incoming[id])
}

// NodesByName returns the IDs of all nodes whose symbol name matches,
// in sorted order. Used for seed resolution when a caller retrieves by
// name instead of ID.
func (s *Snapshot) NodesByName(name string) []string {
	return s.byName[name]
}

// WithEmbeddings returns a copy of the snapshot in which the listed
// nodes carry embeddings. The original snapshot is unchanged; node and
// edge values are shared.
//
// Embeddings arrive after a build (from an external indexer), so they
// attach by snapshot replacement rather than mutation.
func (s *Snapshot) WithEmbeddings(embeddings map[string][]float32) *Snapshot {
	cp := &Snapshot{
		version:    s.version,
		generation: s.generation,
		repository: s.repository,
		builtAt:    s.builtAt,
		nodes:      make(map[string]*Node, len(s.nodes)),
		edges:      s.edges,
		outgoing:   s.outgoing,
		incoming:   s.incoming,
		byName:     s.byName,
	}
	for id, node := range s.nodes {
		if emb, ok := embeddings[id]; ok {
			cp.nodes[id] = &Node{Symbol: node.Symbol, Embedding: emb}
		} else {
			cp.nodes[id] = node
		}
	}
	return cp
}

// Subgraph is a hop-bounded, confidence-filtered view over one
// snapshot, produced by retrieval expansion. It references the parent
// snapshot's nodes and edges without copying them.
type Subgraph struct {
	snapshot *Snapshot

	// SeedIDs are the starting node IDs, in request order.
	SeedIDs []string

	// NodeIDs are all member IDs, seeds included, in sorted order.
	NodeIDs []string

	// Edges are the snapshot edges with both endpoints in the subgraph
	// that satisfied the expansion's confidence floor.
	Edges []*Edge

	// Hops is the hop bound the expansion ran with.
	Hops int

	members map[string]struct{}
	degrees map[string]int
}

// NewSubgraph assembles a subgraph view. Member IDs are deduplicated
// and sorted; degrees are computed over the included edges only.
func NewSubgraph(snapshot *Snapshot, seedIDs, nodeIDs []string, edges []*Edge, hops int) *Subgraph {
	members := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		members[id] = struct{}{}
	}
	sorted := make([]string, 0, len(members))
	for id := range members {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	degrees := make(map[string]int, len(members))
	for _, e := range edges {
		degrees[e.FromID]++
		degrees[e.ToID]++
	}

	return &Subgraph{
		snapshot: snapshot,
		SeedIDs:  seedIDs,
		NodeIDs:  sorted,
		Edges:    edges,
		Hops:     hops,
		members:  members,
		degrees:  degrees,
	}
}

// Snapshot returns the parent snapshot.
func (g *Subgraph) Snapshot() *Snapshot { return g.snapshot }

// Contains reports whether a node is part of the subgraph.
func (g *Subgraph) Contains(id string) bool {
	_, ok := g.members[id]
	return ok
}

// Node returns a member node, or nil when the ID is not a member.
func (g *Subgraph) Node(id string) *Node {
	if !g.Contains(id) {
		return nil
	}
	return g.snapshot.Node(id)
}

// Degree returns the node's degree within the subgraph.
func (g *Subgraph) Degree(id string) int {
	return g.degrees[id]
}

// Size returns the number of member nodes.
func (g *Subgraph) Size() int { return len(g.NodeIDs) }

// Expanded reports whether expansion added anything beyond the seeds.
// False means graph context contributed nothing for this query.
func (g *Subgraph) Expanded() bool {
	return len(g.NodeIDs) > len(g.SeedIDs)
}
