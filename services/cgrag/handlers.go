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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/cgrag/services/cgrag/graph"
	"github.com/AleutianAI/cgrag/services/cgrag/retrieval"
)

// Handlers exposes the service over HTTP.
type Handlers struct {
	service *Service
	logger  *slog.Logger
}

// NewHandlers creates HTTP handlers around a service.
func NewHandlers(service *Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{service: service, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP status codes.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, graph.ErrNoSnapshot):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrNoEmbedder):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, graph.ErrEmptyRepository),
		errors.Is(err, graph.ErrInvalidThreshold),
		errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, retrieval.ErrInvalidHops),
		errors.Is(err, retrieval.ErrInvalidBudget),
		errors.Is(err, retrieval.ErrInvalidConfidence):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

type buildRequest struct {
	Repository  string `json:"repository" binding:"required"`
	ProjectRoot string `json:"project_root" binding:"required"`
}

// HandleBuild builds (or rebuilds) a repository snapshot.
//
// POST /v1/cgrag/build
func (h *Handlers) HandleBuild(c *gin.Context) {
	var req buildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	stats, err := h.service.BuildRepository(c.Request.Context(), req.Repository, req.ProjectRoot)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type retrieveRequest struct {
	Repository        string   `json:"repository" binding:"required"`
	Query             string   `json:"query" binding:"required"`
	Hops              *int     `json:"hops"`
	MinEdgeConfidence *float64 `json:"min_edge_confidence"`
	Budget            int      `json:"budget"`
	Limit             int      `json:"limit"`
}

// HandleRetrieve runs graph-augmented retrieval for a query.
//
// POST /v1/cgrag/retrieve
func (h *Handlers) HandleRetrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Omitted tunables select engine defaults; zero stays meaningful
	// (hops 0 is seeds-only).
	engineReq := retrieval.NewRetrieveRequest(req.Repository, req.Query)
	if req.Hops != nil {
		engineReq.Hops = *req.Hops
	}
	if req.MinEdgeConfidence != nil {
		engineReq.MinEdgeConfidence = *req.MinEdgeConfidence
	}
	engineReq.Budget = req.Budget
	engineReq.Limit = req.Limit

	resp, err := h.service.Retrieve(c.Request.Context(), engineReq)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type deadCodeRequest struct {
	Repository string  `json:"repository" binding:"required"`
	Threshold  float64 `json:"threshold"`
}

// HandleDeadCode reports review candidates for a repository.
//
// POST /v1/cgrag/deadcode
func (h *Handlers) HandleDeadCode(c *gin.Context) {
	var req deadCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	report, err := h.service.DeadCode(c.Request.Context(), req.Repository, req.Threshold)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type embeddingsRequest struct {
	Repository string `json:"repository" binding:"required"`
}

// HandleEmbeddings embeds all symbols of a repository's committed
// snapshot and attaches the vectors for retrieval ranking.
//
// POST /v1/cgrag/embeddings
func (h *Handlers) HandleEmbeddings(c *gin.Context) {
	var req embeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	stats, err := h.service.EmbedRepository(c.Request.Context(), req.Repository)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleStats reports the committed snapshot for a repository.
//
// GET /v1/cgrag/stats/:repository
func (h *Handlers) HandleStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Param("repository"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleRepositories lists repositories with a committed snapshot.
//
// GET /v1/cgrag/repositories
func (h *Handlers) HandleRepositories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"repositories": h.service.Repositories()})
}

// HandleHealth is a liveness check.
//
// GET /v1/cgrag/health
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady is a readiness check: ready once at least one snapshot
// is committed or the service has simply started (an empty service is
// still able to take build requests).
//
// GET /v1/cgrag/ready
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"repositories": len(h.service.Repositories()),
	})
}
