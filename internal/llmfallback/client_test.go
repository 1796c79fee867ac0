// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llmfallback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalize_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"normalized\": \"Quercetin Phytosome\"}"}]}`))
	}))
	defer srv.Close()

	c := New("test-key", "test-model", srv.URL)
	got, err := c.Normalize(context.Background(), "quercetin phytosome")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got != "Quercetin Phytosome" {
		t.Errorf("Normalize() = %q, want Quercetin Phytosome", got)
	}
}

func TestNormalize_NonStrictJSONFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Sure, that's Quercetin Phytosome."}]}`))
	}))
	defer srv.Close()

	c := New("test-key", "test-model", srv.URL)
	_, err := c.Normalize(context.Background(), "quercetin phytosome")
	if err == nil {
		t.Fatal("Normalize() error = nil, want failure on non-strict-JSON reply")
	}
}

func TestNormalize_APIErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"type":"overloaded_error","message":"busy"}}`))
	}))
	defer srv.Close()

	c := New("test-key", "test-model", srv.URL)
	_, err := c.Normalize(context.Background(), "quercetin phytosome")
	if err == nil {
		t.Fatal("Normalize() error = nil, want failure on API error")
	}
}

func TestNormalize_RespectsContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"normalized\": \"X\"}"}]}`))
	}))
	defer srv.Close()

	c := New("test-key", "test-model", srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := c.Normalize(ctx, "slow term")
	if err == nil {
		t.Fatal("Normalize() error = nil, want context deadline exceeded")
	}
}
