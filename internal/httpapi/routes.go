// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi

import (
	"github.com/gin-gonic/gin"
)

// WarmupState is the process-wide warmup flag, shared between
// cmd/suplementia/main.go (which calls MarkReady once startup finishes)
// and the gin middleware/handlers that gate on it.
type WarmupState = warmupState

// NewWarmupState constructs an unready WarmupState.
func NewWarmupState() *WarmupState {
	return &warmupState{}
}

// RegisterRoutes wires the v1 route group: search, admin ingest, and
// liveness/readiness, mirroring trace.RegisterRoutes's (group, handlers)
// shape.
func RegisterRoutes(v1 *gin.RouterGroup, h *Handlers, state *WarmupState) {
	v1.GET("/health", Health)
	v1.GET("/ready", Ready(state))

	guarded := v1.Group("/")
	guarded.Use(WarmupGuardMiddleware(state))
	guarded.POST("/search", h.Search)
	guarded.POST("/admin/supplements", h.UpsertSupplement)
}
