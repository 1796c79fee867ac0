// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package httpapi exposes the two external contracts of the search
// service (search, admin ingest) plus liveness/readiness, over gin. No
// auth, no dashboards, no IaC — just enough handler shape to make the
// core runnable.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/latisnere/suplementia/internal/orchestrator"
)

// Searcher is the subset of *orchestrator.Orchestrator the HTTP layer
// needs.
type Searcher interface {
	Search(ctx context.Context, query, correlationID string) orchestrator.Response
}

// SupplementUpserter is the subset of *seed.Ingester the HTTP layer needs
// for the admin ingest contract.
type SupplementUpserter interface {
	UpsertSupplement(ctx context.Context, canonicalName string, aliases []string, category string) (string, error)
}

// Handlers bundles the orchestrator and admin upserter behind the gin
// route table.
type Handlers struct {
	searcher Searcher
	upserter SupplementUpserter
}

// NewHandlers constructs a Handlers.
func NewHandlers(searcher Searcher, upserter SupplementUpserter) *Handlers {
	return &Handlers{searcher: searcher, upserter: upserter}
}

type searchRequest struct {
	Query         string `json:"query" binding:"required,min=1,max=200"`
	CorrelationID string `json:"correlation_id"`
}

type searchResponseBody struct {
	Status        string      `json:"status"`
	Supplement    interface{} `json:"supplement,omitempty"`
	Similarity    float64     `json:"similarity,omitempty"`
	SourceTier    string      `json:"source_tier"`
	LatencyMS     int64       `json:"latency_ms"`
	CorrelationID string      `json:"correlation_id"`
}

func (h *Handlers) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": "INVALID_QUERY", "message": err.Error()})
		return
	}

	resp := h.searcher.Search(c.Request.Context(), req.Query, req.CorrelationID)

	body := searchResponseBody{
		Status:        string(resp.Status),
		Similarity:    resp.Similarity,
		SourceTier:    string(resp.SourceTier),
		LatencyMS:     resp.LatencyMS,
		CorrelationID: resp.CorrelationID,
	}
	if resp.Supplement != nil {
		body.Supplement = resp.Supplement
	}

	switch resp.Status {
	case orchestrator.StatusInvalid:
		c.JSON(http.StatusBadRequest, body)
	case orchestrator.StatusUnavailable:
		c.JSON(http.StatusServiceUnavailable, body)
	default:
		c.JSON(http.StatusOK, body)
	}
}

type upsertSupplementRequest struct {
	CanonicalName string   `json:"canonical_name" binding:"required,min=1,max=200"`
	Aliases       []string `json:"aliases"`
	Metadata      struct {
		Category string `json:"category"`
	} `json:"metadata"`
}

func (h *Handlers) UpsertSupplement(c *gin.Context) {
	var req upsertSupplementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	id, err := h.upserter.UpsertSupplement(ctx, req.CanonicalName, req.Aliases, req.Metadata.Category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func Ready(state *warmupState) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !state.IsReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "warming_up"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
