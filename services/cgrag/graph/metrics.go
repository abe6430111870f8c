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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("cgrag.graph")
	meter  = otel.Meter("cgrag.graph")
)

// Metrics for build and analysis operations.
var (
	buildLatency    metric.Float64Histogram
	buildTotal      metric.Int64Counter
	nodesCreated    metric.Int64Histogram
	edgesCreated    metric.Int64Histogram
	unresolvedRefs  metric.Int64Histogram
	deadCodeLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"cgrag_build_duration_seconds",
			metric.WithDescription("Duration of snapshot build operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"cgrag_build_total",
			metric.WithDescription("Total number of snapshot build operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Histogram(
			"cgrag_nodes_created",
			metric.WithDescription("Number of nodes created per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Histogram(
			"cgrag_edges_created",
			metric.WithDescription("Number of edges created per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unresolvedRefs, err = meter.Int64Histogram(
			"cgrag_unresolved_references",
			metric.WithDescription("Number of references dropped per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		deadCodeLatency, err = meter.Float64Histogram(
			"cgrag_deadcode_duration_seconds",
			metric.WithDescription("Duration of dead-code analysis"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build operation.
func recordBuildMetrics(ctx context.Context, duration time.Duration, nodeCount, edgeCount, unresolved int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		nodesCreated.Record(ctx, int64(nodeCount))
		edgesCreated.Record(ctx, int64(edgeCount))
		unresolvedRefs.Record(ctx, int64(unresolved))
	}
}

// recordDeadCodeMetrics records metrics for a dead-code analysis pass.
func recordDeadCodeMetrics(ctx context.Context, duration time.Duration, candidateCount int) {
	if err := initMetrics(); err != nil {
		return
	}

	deadCodeLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Int("candidate_count", candidateCount)),
	)
}

// startBuildSpan creates a span for a build operation.
func startBuildSpan(ctx context.Context, repository string, symbolCount, referenceCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(
			attribute.String("cgrag.repository", repository),
			attribute.Int("cgrag.symbol_count", symbolCount),
			attribute.Int("cgrag.reference_count", referenceCount),
		),
	)
}

// setBuildSpanResult sets the result attributes on a build span.
func setBuildSpanResult(span trace.Span, nodeCount, edgeCount, unresolved int) {
	span.SetAttributes(
		attribute.Int("cgrag.node_count", nodeCount),
		attribute.Int("cgrag.edge_count", edgeCount),
		attribute.Int("cgrag.unresolved_count", unresolved),
	)
}

// startAnalysisSpan creates a span for a dead-code analysis pass.
func startAnalysisSpan(ctx context.Context, version string, threshold float64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "DeadCodeAnalyzer.Analyze",
		trace.WithAttributes(
			attribute.String("cgrag.snapshot_version", version),
			attribute.Float64("cgrag.threshold", threshold),
		),
	)
}
