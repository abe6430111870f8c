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
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

// SnapshotData is the serializable form of a snapshot: symbols and
// edges only. Adjacency and name indexes are derived on import, so the
// persisted form stays small and stable across index changes.
type SnapshotData struct {
	Version    string               `json:"version"`
	Generation uint64               `json:"generation"`
	Repository string               `json:"repository"`
	BuiltAt    time.Time            `json:"built_at"`
	Symbols    []*ast.Symbol        `json:"symbols"`
	Edges      []*Edge              `json:"edges"`
	Embeddings map[string][]float32 `json:"embeddings,omitempty"`
}

// Export converts a snapshot to its serializable form.
func (s *Snapshot) Export() *SnapshotData {
	data := &SnapshotData{
		Version:    s.version,
		Generation: s.generation,
		Repository: s.repository,
		BuiltAt:    s.builtAt,
		Symbols:    make([]*ast.Symbol, 0, len(s.nodes)),
		Edges:      s.edges,
	}
	for _, id := range s.NodeIDs() {
		node := s.nodes[id]
		data.Symbols = append(data.Symbols, node.Symbol)
		if node.Embedding != nil {
			if data.Embeddings == nil {
				data.Embeddings = make(map[string][]float32)
			}
			data.Embeddings[id] = node.Embedding
		}
	}
	return data
}

// ImportSnapshot reconstructs a snapshot from its serializable form,
// rebuilding all indexes and validating edge endpoints.
func ImportSnapshot(data *SnapshotData) (*Snapshot, error) {
	nodes := make(map[string]*Node, len(data.Symbols))
	byName := make(map[string][]string)
	for _, sym := range data.Symbols {
		if _, exists := nodes[sym.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, sym.ID)
		}
		nodes[sym.ID] = &Node{Symbol: sym, Embedding: data.Embeddings[sym.ID]}
		byName[sym.Name] = append(byName[sym.Name], sym.ID)
	}

	for name := range byName {
		sort.Strings(byName[name])
	}

	outgoing := make(map[string][]*Edge)
	incoming := make(map[string][]*Edge)
	for _, edge := range data.Edges {
		if _, ok := nodes[edge.FromID]; !ok {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, edge.FromID)
		}
		if _, ok := nodes[edge.ToID]; !ok {
			return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, edge.ToID)
		}
		outgoing[edge.FromID] = append(outgoing[edge.FromID], edge)
		incoming[edge.ToID] = append(incoming[edge.ToID], edge)
	}

	return &Snapshot{
		version:    data.Version,
		generation: data.Generation,
		repository: data.Repository,
		builtAt:    data.BuiltAt,
		nodes:      nodes,
		edges:      data.Edges,
		outgoing:   outgoing,
		incoming:   incoming,
		byName:     byName,
	}, nil
}
