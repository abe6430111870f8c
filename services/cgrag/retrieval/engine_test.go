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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cgrag/services/cgrag/ast"
	"github.com/AleutianAI/cgrag/services/cgrag/graph"
)

type fakeSearcher struct {
	results []SearchResult
	err     error
	calls   int
}

func (f *fakeSearcher) Search(ctx context.Context, embedding []float32, limit int) ([]SearchResult, error) {
	f.calls++
	return f.results, f.err
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

func engineFixture(t *testing.T, searcher VectorSearcher) (*Engine, *graph.Store, []*ast.Symbol) {
	t.Helper()
	store := graph.NewStore(graph.NewBuilder())

	a := sym("a.py", 1, "fa")
	b := sym("b.py", 1, "fb")
	refs := []ast.Reference{
		{FromID: a.ID, TargetName: "fb", Type: ast.RefCalls, Confidence: 0.9, Line: 2},
	}
	_, err := store.Rebuild(context.Background(), "repo", []*ast.Symbol{a, b}, refs)
	require.NoError(t, err)

	engine := NewEngine(store, searcher, &fakeEmbedder{vector: []float32{1, 0}})
	return engine, store, []*ast.Symbol{a, b}
}

func TestRetrieveEndToEnd(t *testing.T) {
	var seeds []SearchResult
	engine, _, symbols := engineFixture(t, &fakeSearcher{})
	seeds = []SearchResult{
		{SymbolID: symbols[0].ID, Distance: 0.1},
		{SymbolID: symbols[1].ID, Distance: 0.15},
		{SymbolID: symbols[0].ID, Distance: 0.2},
	}
	engine.searcher = &fakeSearcher{results: seeds}

	resp, err := engine.Retrieve(context.Background(), NewRetrieveRequest("repo", "how are items fetched"))
	require.NoError(t, err)

	assert.Equal(t, "HIGH", resp.Tier)
	assert.Equal(t, 2, resp.SubgraphSize)
	assert.Equal(t, 1, resp.EdgeCount)
	assert.NotEmpty(t, resp.Summary)
	assert.NotEmpty(t, resp.SnapshotVersion)
	assert.LessOrEqual(t, resp.TokensUsed, resp.Budget)
}

func TestRetrieveLowTierStillReturnsContext(t *testing.T) {
	engine, _, symbols := engineFixture(t, nil)
	engine.searcher = &fakeSearcher{results: []SearchResult{
		{SymbolID: symbols[0].ID, Distance: 0.9},
	}}

	resp, err := engine.Retrieve(context.Background(), NewRetrieveRequest("repo", "q"))
	require.NoError(t, err)

	assert.Equal(t, "LOW", resp.Tier)
	assert.NotEmpty(t, resp.Summary, "low confidence downgrades, never suppresses")
	assert.Greater(t, resp.SubgraphSize, 0)
}

func TestRetrieveNoSeedsInGraph(t *testing.T) {
	engine, _, _ := engineFixture(t, nil)
	engine.searcher = &fakeSearcher{results: []SearchResult{
		{SymbolID: "gone.py:1:ghost", Distance: 0.1},
	}}

	resp, err := engine.Retrieve(context.Background(), NewRetrieveRequest("repo", "q"))
	require.NoError(t, err)

	assert.Equal(t, 0, resp.SubgraphSize)
	assert.False(t, resp.Expanded)
}

func TestRetrieveValidation(t *testing.T) {
	engine, _, _ := engineFixture(t, &fakeSearcher{})

	_, err := engine.Retrieve(context.Background(), NewRetrieveRequest("repo", ""))
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = engine.Retrieve(context.Background(), NewRetrieveRequest("", "q"))
	assert.ErrorIs(t, err, graph.ErrEmptyRepository)

	_, err = engine.Retrieve(context.Background(), NewRetrieveRequest("unknown", "q"))
	assert.ErrorIs(t, err, graph.ErrNoSnapshot)
}

func TestRetrieveSearchFailure(t *testing.T) {
	engine, _, _ := engineFixture(t, nil)
	engine.searcher = &fakeSearcher{err: errors.New("weaviate down")}

	_, err := engine.Retrieve(context.Background(), NewRetrieveRequest("repo", "q"))
	assert.Error(t, err)
}

func TestRetrieveCachesPerSnapshotVersion(t *testing.T) {
	searcher := &fakeSearcher{}
	engine, store, symbols := engineFixture(t, searcher)
	searcher.results = []SearchResult{{SymbolID: symbols[0].ID, Distance: 0.1}}

	req := NewRetrieveRequest("repo", "same query")

	first, err := engine.Retrieve(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Retrieve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, searcher.calls, "second call must be served from cache")
	assert.Same(t, first, second)

	// A rebuild changes the snapshot version and must bypass the cache.
	_, err = store.Rebuild(context.Background(), "repo", symbols, nil)
	require.NoError(t, err)

	third, err := engine.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, searcher.calls)
	assert.NotEqual(t, first.SnapshotVersion, third.SnapshotVersion)
}

func TestResultCacheEviction(t *testing.T) {
	key := func(query string) cacheKey {
		return cacheKey{query: query, snapshotVersion: "v", hops: 2, budget: 100, limit: 10}
	}

	c := newResultCache(2)
	c.put(key("q1"), &RetrieveResponse{})
	c.put(key("q2"), &RetrieveResponse{})

	// Touch q1 so q2 is the eviction victim.
	_, ok := c.get(key("q1"))
	require.True(t, ok)

	c.put(key("q3"), &RetrieveResponse{})
	assert.Equal(t, 2, c.len())

	_, ok = c.get(key("q2"))
	assert.False(t, ok)
	_, ok = c.get(key("q1"))
	assert.True(t, ok)
	_, ok = c.get(key("q3"))
	assert.True(t, ok)
}

func TestResultCacheKeysOnTunables(t *testing.T) {
	c := newResultCache(8)
	deep := cacheKey{query: "q", snapshotVersion: "v", hops: 2, budget: 100, limit: 10}
	shallow := deep
	shallow.hops = 0

	c.put(deep, &RetrieveResponse{SubgraphSize: 5})
	_, ok := c.get(shallow)
	assert.False(t, ok, "different hops must not share an entry")
}
