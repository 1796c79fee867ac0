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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/latisnere/suplementia/internal/orchestrator"
)

type stubSearcher struct {
	resp orchestrator.Response
}

func (s stubSearcher) Search(ctx context.Context, query, correlationID string) orchestrator.Response {
	return s.resp
}

type stubUpserter struct {
	id  string
	err error
}

func (s stubUpserter) UpsertSupplement(ctx context.Context, canonicalName string, aliases []string, category string) (string, error) {
	return s.id, s.err
}

func newTestRouter(searcher Searcher, upserter SupplementUpserter, ready bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	state := NewWarmupState()
	if ready {
		state.MarkReady()
	}
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(searcher, upserter), state)
	return router
}

func TestHealth_AlwaysOK(t *testing.T) {
	router := newTestRouter(stubSearcher{}, stubUpserter{}, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReady_ServiceUnavailableBeforeWarmup(t *testing.T) {
	router := newTestRouter(stubSearcher{}, stubUpserter{}, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/ready", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before warmup", rec.Code)
	}
}

func TestSearch_RejectedDuringWarmup(t *testing.T) {
	router := newTestRouter(stubSearcher{}, stubUpserter{}, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"zinc"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 during warmup", rec.Code)
	}
}

func TestSearch_ReturnsFoundPayload(t *testing.T) {
	searcher := stubSearcher{resp: orchestrator.Response{
		Status:        orchestrator.StatusFound,
		Supplement:    &orchestrator.SupplementView{ID: "supp-000001", CanonicalName: "Zinc"},
		Similarity:    0.97,
		SourceTier:    orchestrator.TierVector,
		LatencyMS:     12,
		CorrelationID: "corr-1",
	}}
	router := newTestRouter(searcher, stubUpserter{}, true)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"zinc"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body searchResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Status != "found" {
		t.Errorf("Status = %q, want found", body.Status)
	}
}

func TestSearch_MissingQueryIsBadRequest(t *testing.T) {
	router := newTestRouter(stubSearcher{}, stubUpserter{}, true)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a missing query field", rec.Code)
	}
}

func TestUpsertSupplement_ReturnsID(t *testing.T) {
	router := newTestRouter(stubSearcher{}, stubUpserter{id: "supp-000042"}, true)

	rec := httptest.NewRecorder()
	body := `{"canonical_name":"Vitamin D3","aliases":["vitamin d3"],"metadata":{"category":"vitamin"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/supplements", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out.ID != "supp-000042" {
		t.Errorf("ID = %q, want supp-000042", out.ID)
	}
}
