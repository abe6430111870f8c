// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cgrag

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// RegisterRoutes registers all /cgrag endpoints on a router group.
//
// Endpoints:
//
//	POST /v1/cgrag/build        - Build or rebuild a repository snapshot
//	POST /v1/cgrag/retrieve     - Graph-augmented retrieval for a query
//	POST /v1/cgrag/deadcode     - Dead-code review candidates
//	POST /v1/cgrag/embeddings   - Embed snapshot symbols for ranking
//	GET  /v1/cgrag/stats/:repository - Snapshot statistics
//	GET  /v1/cgrag/repositories - List committed repositories
//	GET  /v1/cgrag/health       - Liveness check
//	GET  /v1/cgrag/ready        - Readiness check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	group := rg.Group("/cgrag")
	group.Use(requestMetrics())
	{
		group.POST("/build", handlers.HandleBuild)
		group.POST("/retrieve", handlers.HandleRetrieve)
		group.POST("/deadcode", handlers.HandleDeadCode)
		group.POST("/embeddings", handlers.HandleEmbeddings)

		group.GET("/stats/:repository", handlers.HandleStats)
		group.GET("/repositories", handlers.HandleRepositories)

		group.GET("/health", handlers.HandleHealth)
		group.GET("/ready", handlers.HandleReady)
	}
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgrag_http_requests_total",
			Help: "HTTP requests by path and status",
		},
		[]string{"path", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cgrag_http_request_duration_seconds",
			Help:    "HTTP request latency by path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

// requestMetrics records Prometheus counters and latency per request.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(c.FullPath()))
		c.Next()
		timer.ObserveDuration()
		httpRequestsTotal.WithLabelValues(c.FullPath(), http.StatusText(c.Writer.Status())).Inc()
	}
}

// RateLimit returns middleware applying a global token-bucket limit.
// Requests beyond the burst are rejected with 429 rather than queued,
// so builds cannot pile up behind a slow client.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				errorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
