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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/cgrag/services/cgrag/graph"
)

// DefaultQueryTimeout bounds one end-to-end retrieval.
const DefaultQueryTimeout = 30 * time.Second

// RetrieveRequest is one retrieval invocation.
//
// Negative Hops or MinEdgeConfidence and non-positive Budget or Limit
// select the package defaults, so zero values keep their literal
// meaning (Hops 0 expands nothing).
type RetrieveRequest struct {
	Repository        string
	Query             string
	Hops              int
	MinEdgeConfidence float64
	Budget            int
	Limit             int
}

// NewRetrieveRequest returns a request with all tunables set to
// "use default".
func NewRetrieveRequest(repository, query string) RetrieveRequest {
	return RetrieveRequest{
		Repository:        repository,
		Query:             query,
		Hops:              -1,
		MinEdgeConfidence: -1,
		Budget:            0,
		Limit:             0,
	}
}

// RetrieveResponse is the assembled retrieval outcome. Responses may be
// served from cache and must be treated as read-only.
type RetrieveResponse struct {
	Repository      string         `json:"repository"`
	SnapshotVersion string         `json:"snapshot_version"`
	Tier            string         `json:"tier"`
	Seeds           []SearchResult `json:"seeds"`
	SubgraphSize    int            `json:"subgraph_size"`
	EdgeCount       int            `json:"edge_count"`
	Expanded        bool           `json:"expanded"`
	Summary         string         `json:"summary"`
	Snippets        []Snippet      `json:"snippets"`
	TokensUsed      int            `json:"tokens_used"`
	Budget          int            `json:"budget"`
}

// Engine runs graph-augmented retrieval over committed snapshots.
//
// Retrieval is read-only: the engine never blocks or observes an
// in-progress rebuild, it only sees whatever snapshot was current when
// the request started. Safe for concurrent use.
type Engine struct {
	store          *graph.Store
	searcher       VectorSearcher
	embedder       Embedder
	contextBuilder *ContextBuilder
	cache          *resultCache
	weights        RankWeights
	timeout        time.Duration
	logger         *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRankWeights overrides the ranking weights.
func WithRankWeights(w RankWeights) EngineOption {
	return func(e *Engine) { e.weights = w }
}

// WithQueryTimeout overrides the per-invocation timeout.
func WithQueryTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCacheSize overrides the result cache capacity.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) { e.cache = newResultCache(n) }
}

// WithContextBuilder overrides the context builder, e.g. to attach a
// SourceReader.
func WithContextBuilder(b *ContextBuilder) EngineOption {
	return func(e *Engine) {
		if b != nil {
			e.contextBuilder = b
		}
	}
}

// WithEngineLogger sets the structured logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine over a snapshot store, a vector searcher,
// and an embedder.
func NewEngine(store *graph.Store, searcher VectorSearcher, embedder Embedder, opts ...EngineOption) *Engine {
	e := &Engine{
		store:          store,
		searcher:       searcher,
		embedder:       embedder,
		contextBuilder: NewContextBuilder(),
		cache:          newResultCache(DefaultCacheSize),
		weights:        DefaultRankWeights,
		timeout:        DefaultQueryTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve answers one query: embed, vector-search for seeds, classify
// the evidence, expand the subgraph, rank, and assemble budgeted
// context.
//
// A LOW tier does not abort retrieval; whatever context exists is still
// returned so the consumer can decide how to use it.
func (e *Engine) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.Repository == "" {
		return nil, graph.ErrEmptyRepository
	}

	snapshot, err := e.store.Current(req.Repository)
	if err != nil {
		return nil, err
	}

	hops := req.Hops
	if hops < 0 {
		hops = DefaultHops
	}
	minConf := req.MinEdgeConfidence
	if minConf < 0 {
		minConf = DefaultMinEdgeConfidence
	}
	budget := req.Budget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	key := cacheKey{
		query:           req.Query,
		snapshotVersion: snapshot.Version(),
		hops:            hops,
		minConfidence:   minConf,
		budget:          budget,
		limit:           limit,
	}
	if cached, ok := e.cache.get(key); ok {
		recordCacheAccess(ctx, true)
		return cached, nil
	}
	recordCacheAccess(ctx, false)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx, span := startRetrieveSpan(ctx, req.Repository, hops)
	defer span.End()
	start := time.Now()

	embedding, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := e.searcher.Search(ctx, embedding, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("vector search: %w", err)
	}
	tier := Classify(results)

	seedIDs := make([]string, 0, len(results))
	for _, r := range results {
		seedIDs = append(seedIDs, r.SymbolID)
	}

	sub, err := Expand(ctx, snapshot, seedIDs, ExpandOptions{
		Hops:              hops,
		MinEdgeConfidence: minConf,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("expand subgraph: %w", err)
	}

	ranked := Prioritize(sub, embedding, e.weights)

	contextResult, err := e.contextBuilder.Build(ctx, sub, ranked, budget)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("build context: %w", err)
	}

	resp := &RetrieveResponse{
		Repository:      req.Repository,
		SnapshotVersion: snapshot.Version(),
		Tier:            tier.String(),
		Seeds:           results,
		SubgraphSize:    sub.Size(),
		EdgeCount:       len(sub.Edges),
		Expanded:        sub.Expanded(),
		Summary:         contextResult.Summary,
		Snippets:        contextResult.Snippets,
		TokensUsed:      contextResult.TokensUsed,
		Budget:          contextResult.Budget,
	}
	e.cache.put(key, resp)

	duration := time.Since(start)
	recordRetrieveMetrics(ctx, duration, sub.Size(), contextResult.TokensUsed, tier)
	e.logger.Debug("retrieval complete",
		"repository", req.Repository,
		"tier", resp.Tier,
		"seeds", len(results),
		"subgraph_size", sub.Size(),
		"tokens", contextResult.TokensUsed,
		"duration_ms", duration.Milliseconds())

	return resp, nil
}
