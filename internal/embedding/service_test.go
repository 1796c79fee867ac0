// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/latisnere/suplementia/internal/apierrors"
)

func fakeEmbedServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = float32(len(req.Input)+i+1) % 7
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{vec}})
	}))
}

func TestEmbed_DimensionAndUnitNorm(t *testing.T) {
	srv := fakeEmbedServer(t, Dim)
	defer srv.Close()

	svc := New(srv.URL, "test-model")
	vec, err := svc.Embed(context.Background(), "magnesium glycinate")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != Dim {
		t.Fatalf("len(vec) = %d, want %d", len(vec), Dim)
	}

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	n := math.Sqrt(sumSq)
	if math.Abs(n-1) >= 1e-3 {
		t.Errorf("||vec||2 = %v, want within 1e-3 of 1", n)
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	srv := fakeEmbedServer(t, Dim)
	defer srv.Close()

	svc := New(srv.URL, "test-model")
	a, err := svc.Embed(context.Background(), "ashwagandha")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := svc.Embed(context.Background(), "ashwagandha")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Embed() not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestEmbed_WrongDimension(t *testing.T) {
	srv := fakeEmbedServer(t, 10)
	defer srv.Close()

	svc := New(srv.URL, "test-model")
	_, err := svc.Embed(context.Background(), "zinc")
	if err == nil {
		t.Fatal("Embed() error = nil, want INVALID_EMBEDDING")
	}
	if kind, ok := apierrors.KindOf(err); !ok || kind != apierrors.KindInvalidEmbedding {
		t.Errorf("KindOf(err) = %v, %v, want INVALID_EMBEDDING, true", kind, ok)
	}
}

func TestEmbed_ModelUnavailable(t *testing.T) {
	svc := New("http://127.0.0.1:0", "test-model")
	_, err := svc.Embed(context.Background(), "zinc")
	if err == nil {
		t.Fatal("Embed() error = nil, want MODEL_UNAVAILABLE")
	}
	if kind, ok := apierrors.KindOf(err); !ok || kind != apierrors.KindModelUnavailable {
		t.Errorf("KindOf(err) = %v, %v, want MODEL_UNAVAILABLE, true", kind, ok)
	}
}

func TestWarm_OnceGuard(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{make([]float32, Dim)}})
	}))
	defer srv.Close()

	svc := New(srv.URL, "test-model")
	for i := 0; i < 5; i++ {
		if err := svc.Warm(context.Background()); err != nil {
			t.Fatalf("Warm() error = %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("embed endpoint called %d times, want 1 (once-guard)", calls)
	}
}
