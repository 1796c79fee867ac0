// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding wraps a process-resident text embedding model: embeds
// arbitrary text on demand, with a concurrent, bounded warm-up pass so the
// first real request doesn't pay cold-model latency.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/latisnere/suplementia/internal/apierrors"
)

// warmConcurrency bounds how many warm-up embed calls run at once, so a
// large warm-up set doesn't open one connection per text.
const warmConcurrency = 4

// Dim is the fixed embedding dimensionality the whole service is built
// around (spec: embedding_dim=384, not runtime-configurable).
const Dim = 384

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Service embeds text into unit-normalized 384-d vectors via an
// Ollama-compatible /api/embed endpoint. The HTTP client is created once;
// Warm probes the endpoint so later calls hit the warm-path latency target.
//
// Thread Safety: safe for concurrent use after construction.
type Service struct {
	url    string
	model  string
	client *http.Client

	once     sync.Once
	warmErr  error
}

// New constructs an unwarmed embedding Service pointed at url/model.
func New(url, model string) *Service {
	return &Service{
		url:   url,
		model: model,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Warm embeds texts concurrently, bounded by warmConcurrency, so the model
// endpoint is primed and every later Embed call hits the warm-path latency
// target. With no texts it falls back to a single probe call. Guarded by a
// sync.Once: only the first call does work, and it is safe to call from
// multiple goroutines.
func (s *Service) Warm(ctx context.Context, texts ...string) error {
	if len(texts) == 0 {
		texts = []string{"warmup probe"}
	}
	s.once.Do(func() {
		g, gctx := errgroup.WithContext(ctx)
		sem := make(chan struct{}, warmConcurrency)
		for _, text := range texts {
			text := text
			g.Go(func() error {
				select {
				case sem <- struct{}{}:
				case <-gctx.Done():
					return gctx.Err()
				}
				defer func() { <-sem }()
				_, err := s.embedRaw(gctx, text)
				return err
			})
		}
		s.warmErr = g.Wait()
	})
	return s.warmErr
}

// Embed returns a unit-normalized 384-d vector for text. Fails with
// MODEL_UNAVAILABLE if the endpoint call fails (unreachable, non-200, or
// a malformed response) and with INVALID_EMBEDDING if the vector is not
// Dim long; transport-level retries are the caller's responsibility.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedRaw(ctx, text)
	if err != nil {
		return nil, apierrors.New("embedding.Embed", apierrors.KindModelUnavailable, err)
	}
	if len(vec) != Dim {
		return nil, apierrors.New("embedding.Embed", apierrors.KindInvalidEmbedding,
			fmt.Errorf("model returned %d dims, want %d", len(vec), Dim))
	}
	return normalize(vec), nil
}

func (s *Service) embedRaw(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: s.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal embed response: %w", err)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, fmt.Errorf("embed response contained no vectors")
	}
	return parsed.Embeddings[0], nil
}

// normalize returns a unit-L2-normalized copy of vec. A zero vector is
// returned unchanged rather than divided by zero.
func normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
