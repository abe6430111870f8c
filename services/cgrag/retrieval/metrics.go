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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for retrieval operations.
var (
	tracer = otel.Tracer("cgrag.retrieval")
	meter  = otel.Meter("cgrag.retrieval")
)

var (
	retrieveLatency metric.Float64Histogram
	expandedNodes   metric.Int64Histogram
	contextTokens   metric.Int64Histogram
	gateDecisions   metric.Int64Counter
	cacheHits       metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		retrieveLatency, err = meter.Float64Histogram(
			"cgrag_retrieve_duration_seconds",
			metric.WithDescription("Duration of end-to-end retrieval"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		expandedNodes, err = meter.Int64Histogram(
			"cgrag_expanded_nodes",
			metric.WithDescription("Subgraph size after expansion"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		contextTokens, err = meter.Int64Histogram(
			"cgrag_context_tokens",
			metric.WithDescription("Estimated tokens in assembled context"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		gateDecisions, err = meter.Int64Counter(
			"cgrag_gate_decisions_total",
			metric.WithDescription("Confidence gate decisions by tier"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheHits, err = meter.Int64Counter(
			"cgrag_cache_hits_total",
			metric.WithDescription("Retrieval cache hits and misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRetrieveMetrics records metrics for one retrieval.
func recordRetrieveMetrics(ctx context.Context, duration time.Duration, subgraphSize, tokens int, tier Tier) {
	if err := initMetrics(); err != nil {
		return
	}

	retrieveLatency.Record(ctx, duration.Seconds())
	expandedNodes.Record(ctx, int64(subgraphSize))
	contextTokens.Record(ctx, int64(tokens))
	gateDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier.String())))
}

// recordCacheAccess records a cache hit or miss.
func recordCacheAccess(ctx context.Context, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// startRetrieveSpan creates a span for an end-to-end retrieval.
func startRetrieveSpan(ctx context.Context, repository string, hops int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Retrieve",
		trace.WithAttributes(
			attribute.String("cgrag.repository", repository),
			attribute.Int("cgrag.hops", hops),
		),
	)
}

// startExpandSpan creates a span for subgraph expansion.
func startExpandSpan(ctx context.Context, seedCount, hops int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Expand",
		trace.WithAttributes(
			attribute.Int("cgrag.seed_count", seedCount),
			attribute.Int("cgrag.hops", hops),
		),
	)
}
