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

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// SearchResult is one vector-search hit over indexed symbols.
type SearchResult struct {
	// SymbolID is the graph node ID of the matched symbol.
	SymbolID string `json:"symbol_id"`

	// Distance is the vector distance to the query; smaller is closer.
	Distance float64 `json:"distance"`
}

// VectorSearcher finds the symbols nearest to a query embedding.
// Implementations must be safe for concurrent use.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, limit int) ([]SearchResult, error)
}

// DefaultSearchLimit is the number of seeds requested per query.
const DefaultSearchLimit = 10

// DefaultSymbolClassName is the Weaviate class holding symbol vectors.
const DefaultSymbolClassName = "CodeSymbol"

// WeaviateSearcher implements VectorSearcher against a Weaviate class
// whose objects carry a symbol_id property.
type WeaviateSearcher struct {
	client    *weaviate.Client
	className string
	logger    *slog.Logger
}

// WeaviateSearcherOption configures a WeaviateSearcher.
type WeaviateSearcherOption func(*WeaviateSearcher)

// WithClassName overrides the Weaviate class searched.
func WithClassName(name string) WeaviateSearcherOption {
	return func(s *WeaviateSearcher) {
		if name != "" {
			s.className = name
		}
	}
}

// WithSearchLogger sets the structured logger.
func WithSearchLogger(logger *slog.Logger) WeaviateSearcherOption {
	return func(s *WeaviateSearcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewWeaviateSearcher creates a searcher over an existing client.
func NewWeaviateSearcher(client *weaviate.Client, opts ...WeaviateSearcherOption) *WeaviateSearcher {
	s := &WeaviateSearcher{
		client:    client,
		className: DefaultSymbolClassName,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs a nearVector query and returns hits with their distances.
func (s *WeaviateSearcher) Search(ctx context.Context, embedding []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(embedding)

	fields := []graphql.Field{
		{Name: "symbol_id"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "distance"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search returned errors: %v", result.Errors[0].Message)
	}

	return s.parseResults(result)
}

func (s *WeaviateSearcher) parseResults(result *models.GraphQLResponse) ([]SearchResult, error) {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []SearchResult{}, nil
	}
	objects, ok := data[s.className].([]interface{})
	if !ok {
		return []SearchResult{}, nil
	}

	hits := make([]SearchResult, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		symbolID, ok := m["symbol_id"].(string)
		if !ok || symbolID == "" {
			continue
		}
		hit := SearchResult{SymbolID: symbolID}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				hit.Distance = d
			}
		}
		hits = append(hits, hit)
	}

	s.logger.Debug("vector search complete",
		"class", s.className, "hits", len(hits))
	return hits, nil
}
