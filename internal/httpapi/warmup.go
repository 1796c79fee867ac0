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
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// warmupState tracks whether startup wiring has finished and the service
// may serve traffic; it is set by MarkReady and never cleared.
type warmupState struct {
	ready atomic.Bool
}

func (w *warmupState) MarkReady()  { w.ready.Store(true) }
func (w *warmupState) IsReady() bool { return w.ready.Load() }

// WarmupGuardMiddleware returns 503 for /v1/search and /v1/admin routes
// until MarkReady has been called.
func WarmupGuardMiddleware(state *warmupState) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !state.IsReady() {
			c.Header("Retry-After", "5")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "service warming up",
				"code":    "SERVICE_WARMING_UP",
				"message": "the embedding model and vector store are still initializing",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
