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

	"github.com/google/uuid"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
)

// checkInterval is how many references are processed between context
// cancellation checks.
const checkInterval = 1024

// BuildResult is the outcome of a successful build.
type BuildResult struct {
	// Snapshot is the assembled graph, not yet committed to a store.
	Snapshot *Snapshot

	// UnresolvedCount is the number of references dropped because their
	// target name matched no symbol. Expected to be nonzero on real
	// code (standard library and third-party targets).
	UnresolvedCount int

	// Duration is the wall-clock build time.
	Duration time.Duration
}

// Builder assembles snapshots from extracted symbols and references.
//
// Builds are deterministic: the same symbols and references produce the
// same nodes and the same edges regardless of input order. Inputs are
// sorted by ID before insertion and name resolution breaks ties by
// preferring a symbol in the referencing file, then the
// lexicographically smallest ID.
type Builder struct {
	logger *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuildLogger sets the structured logger.
func WithBuildLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles a snapshot for a repository.
//
// All-or-nothing: any error leaves no partial snapshot behind. Duplicate
// symbol IDs are an input error. Unresolved references are dropped
// silently and counted; an edge is never created against a missing
// endpoint.
func (b *Builder) Build(ctx context.Context, repository string, symbols []*ast.Symbol, references []ast.Reference) (*BuildResult, error) {
	if repository == "" {
		return nil, ErrEmptyRepository
	}

	ctx, span := startBuildSpan(ctx, repository, len(symbols), len(references))
	defer span.End()
	start := time.Now()

	snapshot, unresolved, err := b.assemble(ctx, repository, symbols, references)
	duration := time.Since(start)
	if err != nil {
		recordBuildMetrics(ctx, duration, 0, 0, 0, false)
		span.RecordError(err)
		return nil, err
	}

	setBuildSpanResult(span, snapshot.NodeCount(), snapshot.EdgeCount(), unresolved)
	recordBuildMetrics(ctx, duration, snapshot.NodeCount(), snapshot.EdgeCount(), unresolved, true)

	b.logger.Info("snapshot built",
		"repository", repository,
		"version", snapshot.Version(),
		"nodes", snapshot.NodeCount(),
		"edges", snapshot.EdgeCount(),
		"unresolved", unresolved,
		"duration_ms", duration.Milliseconds())

	return &BuildResult{
		Snapshot:        snapshot,
		UnresolvedCount: unresolved,
		Duration:        duration,
	}, nil
}

func (b *Builder) assemble(ctx context.Context, repository string, symbols []*ast.Symbol, references []ast.Reference) (*Snapshot, int, error) {
	// Sort a copy of the symbols so insertion order never depends on
	// extraction order.
	sortedSymbols := make([]*ast.Symbol, len(symbols))
	copy(sortedSymbols, symbols)
	sort.Slice(sortedSymbols, func(i, j int) bool {
		return sortedSymbols[i].ID < sortedSymbols[j].ID
	})

	nodes := make(map[string]*Node, len(sortedSymbols))
	byName := make(map[string][]string)
	for _, sym := range sortedSymbols {
		if _, exists := nodes[sym.ID]; exists {
			return nil, 0, fmt.Errorf("%w: %s", ErrDuplicateSymbol, sym.ID)
		}
		nodes[sym.ID] = &Node{Symbol: sym}
		byName[sym.Name] = append(byName[sym.Name], sym.ID)
	}
	// Symbol insertion is ID-sorted, so each byName bucket is already
	// sorted; resolution relies on that.

	sortedRefs := make([]ast.Reference, len(references))
	copy(sortedRefs, references)
	sort.Slice(sortedRefs, func(i, j int) bool {
		ri, rj := sortedRefs[i], sortedRefs[j]
		if ri.FromID != rj.FromID {
			return ri.FromID < rj.FromID
		}
		if ri.TargetName != rj.TargetName {
			return ri.TargetName < rj.TargetName
		}
		if ri.Type != rj.Type {
			return ri.Type < rj.Type
		}
		if ri.Line != rj.Line {
			return ri.Line < rj.Line
		}
		return ri.Confidence < rj.Confidence
	})

	edges := make([]*Edge, 0, len(sortedRefs))
	outgoing := make(map[string][]*Edge)
	incoming := make(map[string][]*Edge)
	unresolved := 0

	for i, ref := range sortedRefs {
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}

		from, ok := nodes[ref.FromID]
		if !ok {
			unresolved++
			continue
		}
		toID, ok := resolveName(byName, ref.TargetName, from.Symbol.FilePath)
		if !ok {
			unresolved++
			continue
		}

		edge := &Edge{
			FromID:     ref.FromID,
			ToID:       toID,
			Type:       ref.Type,
			Confidence: clampConfidence(ref.Confidence),
			Line:       ref.Line,
		}
		edges = append(edges, edge)
		outgoing[ref.FromID] = append(outgoing[ref.FromID], edge)
		incoming[toID] = append(incoming[toID], edge)
	}

	return &Snapshot{
		version:  uuid.NewString(),
		builtAt:  time.Now().UTC(),
		nodes:    nodes,
		edges:    edges,
		outgoing: outgoing,
		incoming: incoming,
		byName:   byName,

		repository: repository,
	}, unresolved, nil
}

// resolveName picks the edge target for a reference. Candidates in the
// referencing file win over candidates elsewhere; within either group
// the smallest ID wins. The candidate list is sorted, so the first
// same-file hit is the same-file minimum.
func resolveName(byName map[string][]string, target, fromFile string) (string, bool) {
	candidates := byName[target]
	if len(candidates) == 0 {
		return "", false
	}
	for _, id := range candidates {
		if idFile(id) == fromFile {
			return id, true
		}
	}
	return candidates[0], true
}

// idFile extracts the file path component of a symbol ID
// ("path:line:name").
func idFile(id string) string {
	// The name may itself not contain ':', but the path may on odd
	// platforms, so strip the two known trailing components.
	last := -1
	secondLast := -1
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == ':' {
			if last == -1 {
				last = i
			} else {
				secondLast = i
				break
			}
		}
	}
	if secondLast == -1 {
		return id
	}
	return id[:secondLast]
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
