// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/latisnere/suplementia/internal/apierrors"
	"github.com/latisnere/suplementia/internal/cache"
	"github.com/latisnere/suplementia/internal/normalizer"
	"github.com/latisnere/suplementia/internal/vectorstore"
)

type countingEmbedder struct {
	calls int32
	vec   []float32
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

type stubEnqueuer struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubEnqueuer) Enqueue(ctx context.Context, canonicalQuery string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, canonicalQuery)
	return "job-1", true, nil
}

func testNormalizer() *normalizer.Normalizer {
	return normalizer.New(map[string]string{"ashwagandha": "Ashwagandha"})
}

func testTieredCache(t *testing.T) *cache.Tiered {
	t.Helper()
	l1, err := cache.NewL1Cache()
	if err != nil {
		t.Fatalf("NewL1Cache() error = %v", err)
	}
	t.Cleanup(l1.Close)
	return cache.NewTiered(nil, l1)
}

func unitVec(seed int) []float32 {
	v := make([]float32, 384)
	v[seed%384] = 1
	return v
}

// flakyStore fails ANN with KindStoreUnavailable the first failCount calls,
// then delegates to the wrapped store.
type flakyStore struct {
	vectorstore.VectorStore
	failCount int32
	anCalls   int32
}

func (s *flakyStore) ANN(queryVec []float32, k int, minSimilarity float64) ([]vectorstore.ScoredSupplement, error) {
	n := atomic.AddInt32(&s.anCalls, 1)
	if n <= s.failCount {
		return nil, apierrors.New("vectorstore.ANN", apierrors.KindStoreUnavailable, nil)
	}
	return s.VectorStore.ANN(queryVec, k, minSimilarity)
}

func TestSearch_InvalidQueryBelowConfidenceFloor(t *testing.T) {
	o := New(testNormalizer(), testTieredCache(t), vectorstore.NewMemoryVectorStore(),
		&countingEmbedder{vec: unitVec(1)}, &stubEnqueuer{}, time.Hour)

	resp := o.Search(context.Background(), "   ", "")
	if resp.Status != StatusInvalid {
		t.Errorf("Status = %v, want invalid for an empty/unparseable query", resp.Status)
	}
}

func TestSearch_FoundOnExactVectorMatch(t *testing.T) {
	store := vectorstore.NewMemoryVectorStore()
	vec := unitVec(7)
	if _, err := store.Insert(vectorstore.Supplement{CanonicalName: "Ashwagandha", Embedding: vec}); err != nil {
		t.Fatalf("seed Insert() error = %v", err)
	}

	embedder := &countingEmbedder{vec: vec}
	enqueuer := &stubEnqueuer{}
	o := New(testNormalizer(), testTieredCache(t), store, embedder, enqueuer, time.Hour)

	resp := o.Search(context.Background(), "ashwagandha", "")
	if resp.Status != StatusFound {
		t.Fatalf("Status = %v, want found", resp.Status)
	}
	if resp.Supplement == nil || resp.Supplement.CanonicalName != "Ashwagandha" {
		t.Errorf("Supplement = %+v, want Ashwagandha", resp.Supplement)
	}
	if resp.SourceTier != TierVector {
		t.Errorf("SourceTier = %v, want vector on a cold hit", resp.SourceTier)
	}
	if len(enqueuer.calls) != 0 {
		t.Errorf("discovery enqueued on a found result, want no enqueue")
	}
}

func TestSearch_SecondIdenticalQueryHitsCache(t *testing.T) {
	store := vectorstore.NewMemoryVectorStore()
	vec := unitVec(9)
	if _, err := store.Insert(vectorstore.Supplement{CanonicalName: "Ashwagandha", Embedding: vec}); err != nil {
		t.Fatalf("seed Insert() error = %v", err)
	}

	embedder := &countingEmbedder{vec: vec}
	o := New(testNormalizer(), testTieredCache(t), store, embedder, &stubEnqueuer{}, time.Hour)

	first := o.Search(context.Background(), "ashwagandha", "")
	if first.Status != StatusFound {
		t.Fatalf("first Search() status = %v, want found", first.Status)
	}

	second := o.Search(context.Background(), "ashwagandha", "")
	if second.Status != StatusFound {
		t.Fatalf("second Search() status = %v, want found", second.Status)
	}
	if second.SourceTier != TierL1 {
		t.Errorf("second SourceTier = %v, want l1 (write-through cache hit)", second.SourceTier)
	}
	if embedder.calls != 1 {
		t.Errorf("embedder called %d times, want exactly 1 (second request should be a cache hit)", embedder.calls)
	}
}

func TestSearch_MissBelowSimilarityFloorEnqueuesDiscovery(t *testing.T) {
	store := vectorstore.NewMemoryVectorStore()
	embedder := &countingEmbedder{vec: unitVec(3)}
	enqueuer := &stubEnqueuer{}
	o := New(testNormalizer(), testTieredCache(t), store, embedder, enqueuer, time.Hour)

	resp := o.Search(context.Background(), "ashwagandha", "")
	if resp.Status != StatusProcessing {
		t.Fatalf("Status = %v, want processing for an empty store", resp.Status)
	}
	if len(enqueuer.calls) != 1 || enqueuer.calls[0] != "Ashwagandha" {
		t.Errorf("Enqueue calls = %v, want exactly one for the canonical query", enqueuer.calls)
	}
}

func TestSearch_SingleFlightDedupesConcurrentColdQueries(t *testing.T) {
	store := vectorstore.NewMemoryVectorStore()
	vec := unitVec(5)
	if _, err := store.Insert(vectorstore.Supplement{CanonicalName: "Ashwagandha", Embedding: vec}); err != nil {
		t.Fatalf("seed Insert() error = %v", err)
	}

	embedder := &countingEmbedder{vec: vec}
	o := New(testNormalizer(), testTieredCache(t), store, embedder, &stubEnqueuer{}, time.Hour)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			resp := o.Search(context.Background(), "ashwagandha", "")
			if resp.Status != StatusFound {
				t.Errorf("concurrent Search() status = %v, want found", resp.Status)
			}
		}()
	}
	wg.Wait()

	if embedder.calls > 2 {
		t.Errorf("embedder called %d times for %d concurrent identical cold queries, want at most 2 (single-flight plus at most one racer before the group registers)", embedder.calls, n)
	}
}

func TestSearch_StoreUnavailableRetriesThenSucceeds(t *testing.T) {
	inner := vectorstore.NewMemoryVectorStore()
	vec := unitVec(11)
	if _, err := inner.Insert(vectorstore.Supplement{CanonicalName: "Ashwagandha", Embedding: vec}); err != nil {
		t.Fatalf("seed Insert() error = %v", err)
	}
	store := &flakyStore{VectorStore: inner, failCount: 2}

	o := New(testNormalizer(), testTieredCache(t), store, &countingEmbedder{vec: vec}, &stubEnqueuer{}, time.Hour)

	resp := o.Search(context.Background(), "ashwagandha", "")
	if resp.Status != StatusFound {
		t.Fatalf("Status = %v, want found once the store recovers within the retry budget", resp.Status)
	}
}

func TestSearch_StoreUnavailableExhaustsRetriesReturnsUnavailable(t *testing.T) {
	store := &flakyStore{VectorStore: vectorstore.NewMemoryVectorStore(), failCount: 100}
	o := New(testNormalizer(), testTieredCache(t), store, &countingEmbedder{vec: unitVec(12)}, &stubEnqueuer{}, time.Hour)

	resp := o.Search(context.Background(), "ashwagandha", "")
	if resp.Status != StatusUnavailable {
		t.Errorf("Status = %v, want unavailable once STORE_UNAVAILABLE retries are exhausted", resp.Status)
	}
}

func TestSearch_ModelUnavailableReturnsUnavailable(t *testing.T) {
	embedder := &countingEmbedder{err: apierrors.New("embedding.Embed", apierrors.KindModelUnavailable, nil)}
	o := New(testNormalizer(), testTieredCache(t), vectorstore.NewMemoryVectorStore(), embedder, &stubEnqueuer{}, time.Hour)

	resp := o.Search(context.Background(), "ashwagandha", "")
	if resp.Status != StatusUnavailable {
		t.Errorf("Status = %v, want unavailable when the embedding model is unavailable", resp.Status)
	}
}
