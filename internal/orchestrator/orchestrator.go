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
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/latisnere/suplementia/internal/apierrors"
	"github.com/latisnere/suplementia/internal/cache"
	"github.com/latisnere/suplementia/internal/discovery"
	"github.com/latisnere/suplementia/internal/normalizer"
	"github.com/latisnere/suplementia/internal/observability"
	"github.com/latisnere/suplementia/internal/vectorstore"
)

const (
	searchK            = 5
	minSimilarityFloor = 0.85

	// storeUnavailableRetries is how many extra attempts a STORE_UNAVAILABLE
	// ANN call gets before giving up and surfacing 503 to the caller.
	storeUnavailableRetries = 2
	storeRetryBaseDelay     = 50 * time.Millisecond
)

// Embedder is the subset of embedding.Service the orchestrator needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Enqueuer is the subset of discovery.Queue the orchestrator needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, canonicalQuery string) (jobID string, created bool, err error)
}

// Orchestrator implements the search pipeline in §4.E: Normalize -> L1 ->
// L2 -> single-flight EmbedAndSearch -> write-through -> discovery enqueue.
//
// Thread Safety: safe for concurrent use; the single-flight group is the
// only shared mutable state besides the tiers/store/queue it wraps.
type Orchestrator struct {
	normalizer     *normalizer.Normalizer
	tiered         *cache.Tiered
	store          vectorstore.VectorStore
	embedder       Embedder
	queue          Enqueuer
	cacheTTL       time.Duration
	minSimilarity  float64
	group          singleflight.Group
	logger         *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMinSimilarity overrides the default 0.85 similarity floor; main.go
// passes config.Config.SimilarityThreshold through it.
func WithMinSimilarity(f float64) Option {
	return func(o *Orchestrator) { o.minSimilarity = f }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New builds an Orchestrator. cacheTTL is the write-through TTL applied to
// both cache tiers (config.Config.CacheTTL, default 7 days).
func New(
	norm *normalizer.Normalizer,
	tiered *cache.Tiered,
	store vectorstore.VectorStore,
	embedder Embedder,
	queue Enqueuer,
	cacheTTL time.Duration,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		normalizer:    norm,
		tiered:        tiered,
		store:         store,
		embedder:      embedder,
		queue:         queue,
		cacheTTL:      cacheTTL,
		minSimilarity: minSimilarityFloor,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search runs the full pipeline for one query. correlationID, if empty, is
// minted here so every downstream log line can still be correlated.
func (o *Orchestrator) Search(ctx context.Context, query string, correlationID string) Response {
	start := time.Now()
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := o.logger.With(
		slog.String("component", "orchestrator"),
		slog.String("correlation_id", correlationID),
	)

	result := o.normalizer.Normalize(ctx, query)
	if result.Confidence < normalizer.InvalidQueryThreshold {
		resp := Response{Status: StatusInvalid, SourceTier: TierNone, CorrelationID: correlationID}
		o.finish(logger, &resp, start, "normalize")
		return resp
	}

	fingerprint := cache.Fingerprint(result.Canonical)

	if entry, hit := o.tiered.Get(ctx, fingerprint, o.cacheTTL); hit {
		resp := o.responseFromEntry(entry, TierL1, correlationID)
		o.finish(logger, &resp, start, "cache")
		return resp
	}

	// Single-flight: only one EmbedAndSearch runs per fingerprint at a
	// time; concurrent arrivals wait on it and share its result.
	v, err, _ := o.group.Do(fingerprint, func() (interface{}, error) {
		// Double-checked locking: another goroutine may have populated the
		// cache while we were waiting to enter Do.
		if entry, hit := o.tiered.Get(ctx, fingerprint, o.cacheTTL); hit {
			return entry, nil
		}
		return o.embedAndSearch(ctx, result.Canonical, fingerprint)
	})

	if err != nil {
		status := StatusInvalid
		if kind, ok := apierrors.KindOf(err); ok {
			switch {
			case apierrors.Retryable(kind):
				// STORE_UNAVAILABLE exhausted its retry budget in annWithRetry;
				// mask it as a generic unavailability rather than a bad request.
				status = StatusUnavailable
			case kind == apierrors.KindModelUnavailable && apierrors.UserVisible(kind):
				status = StatusUnavailable
			}
		}
		resp := Response{Status: status, SourceTier: TierNone, CorrelationID: correlationID}
		logger.Error("embed and search failed", slog.String("error", err.Error()))
		o.finish(logger, &resp, start, "embed_and_search")
		return resp
	}

	entry := v.(cache.Entry)
	resp := o.responseFromEntry(entry, TierVector, correlationID)
	if resp.Status == StatusProcessing {
		if _, created, enqErr := o.queue.Enqueue(ctx, result.Canonical); enqErr != nil {
			logger.Error("discovery enqueue failed", slog.String("error", enqErr.Error()))
		} else if created {
			logger.Info("discovery job enqueued", slog.String("query", result.Canonical))
		}
	}
	o.finish(logger, &resp, start, "embed_and_search")
	return resp
}

// embedAndSearch computes the query embedding, runs ANN, and write-through
// caches a match clearing the similarity floor. It always returns a
// cache.Entry: either a real hit (SupplementID set) or a sentinel "miss"
// entry (SupplementID empty) representing NOT_FOUND, so both outcomes flow
// through the same Do/cache plumbing.
func (o *Orchestrator) embedAndSearch(ctx context.Context, canonical, fingerprint string) (cache.Entry, error) {
	vec, err := o.embedder.Embed(ctx, canonical)
	if err != nil {
		return cache.Entry{}, err
	}

	matches, err := o.annWithRetry(ctx, vec)
	if err != nil {
		return cache.Entry{}, err
	}

	if len(matches) == 0 {
		return cache.Entry{}, nil
	}

	best := matches[0]
	entry := cache.Entry{
		SupplementID:  best.Supplement.ID,
		CanonicalName: best.Supplement.CanonicalName,
		Similarity:    best.Similarity,
		CachedAt:      time.Now(),
	}
	o.tiered.Put(ctx, fingerprint, entry, o.cacheTTL)
	return entry, nil
}

// annWithRetry calls store.ANN, retrying a STORE_UNAVAILABLE failure up to
// storeUnavailableRetries times with jittered backoff. Any other error, or
// a STORE_UNAVAILABLE that never clears, is returned as-is.
func (o *Orchestrator) annWithRetry(ctx context.Context, vec []float32) ([]vectorstore.ScoredSupplement, error) {
	var lastErr error
	for attempt := 0; attempt <= storeUnavailableRetries; attempt++ {
		matches, err := o.store.ANN(vec, searchK, o.minSimilarity)
		if err == nil {
			return matches, nil
		}
		lastErr = err
		kind, ok := apierrors.KindOf(err)
		if !ok || !apierrors.Retryable(kind) || attempt == storeUnavailableRetries {
			return nil, err
		}

		delay := storeRetryBaseDelay*time.Duration(attempt+1) + time.Duration(rand.Int63n(int64(storeRetryBaseDelay)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// responseFromEntry converts a cache.Entry into a Response. tier records
// where the entry was found: TierL1 for any cache hit (the Tiered
// abstraction intentionally hides which physical tier answered, since a
// write-through L2 hit is promoted to L1 before Get returns) or TierVector
// for a freshly computed ANN match.
func (o *Orchestrator) responseFromEntry(entry cache.Entry, tier SourceTier, correlationID string) Response {
	if entry.SupplementID == "" {
		return Response{Status: StatusProcessing, SourceTier: TierNone, CorrelationID: correlationID}
	}
	return Response{
		Status: StatusFound,
		Supplement: &SupplementView{
			ID:            entry.SupplementID,
			CanonicalName: entry.CanonicalName,
		},
		Similarity:    entry.Similarity,
		SourceTier:    tier,
		CorrelationID: correlationID,
	}
}

func (o *Orchestrator) finish(logger *slog.Logger, resp *Response, start time.Time, stage string) {
	latency := time.Since(start)
	resp.LatencyMS = latency.Milliseconds()
	observability.ObserveSearch(string(resp.Status), latency)
	logger.Info("search completed",
		slog.String("stage", stage),
		slog.String("status", string(resp.Status)),
		slog.String("source_tier", string(resp.SourceTier)),
		slog.Duration("latency", latency))
}

// Compile-time check that *discovery.Queue satisfies Enqueuer.
var _ Enqueuer = (*discovery.Queue)(nil)
