// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/latisnere/suplementia/internal/apierrors"
	"github.com/latisnere/suplementia/internal/cache"
	"github.com/latisnere/suplementia/internal/embedding"
	"github.com/latisnere/suplementia/internal/observability"
	"github.com/latisnere/suplementia/internal/vectorstore"
)

// EvidenceThresholds mirrors config.Config's evidence_thresholds tunable:
// study-count cutoffs that separate REJECTED_NO_EVIDENCE / E / C / A.
type EvidenceThresholds struct {
	Strong   int // study count at or above this grades A
	Moderate int // study count at or above this (and < Strong) grades C
	Low      int // study count at or above this (and < Moderate) grades E
}

// Grade maps a PubMed study count to an evidence grade, or "" for
// REJECTED_NO_EVIDENCE (0 studies, or fewer than Low).
func (t EvidenceThresholds) Grade(studyCount int) string {
	switch {
	case studyCount == 0, studyCount < t.Low:
		return ""
	case studyCount >= t.Strong:
		return "A"
	case studyCount >= t.Moderate:
		return "C"
	default:
		return "E"
	}
}

// PubMedSearcher is the subset of pubmed.Client the worker needs,
// narrowed to an interface so tests can stub it without an HTTP server.
type PubMedSearcher interface {
	StudyCount(ctx context.Context, term string) (int, error)
}

// Embedder is the subset of embedding.Service the worker needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Worker consumes PENDING announcements and runs the discovery algorithm
// for each job: PubMed lookup, evidence grading, embedding, insert,
// targeted cache invalidation.
//
// Thread Safety: Run may be called from any number of goroutines sharing
// one Worker; each ProcessJob call processes one job end to end.
type Worker struct {
	queue      *Queue
	pubmed     PubMedSearcher
	embedder   Embedder
	store      vectorstore.VectorStore
	tiered     *cache.Tiered
	thresholds EvidenceThresholds
	maxAttempts int
	backoffBase time.Duration
	variants    func(canonicalQuery string) []string
	logger      *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithVariantLookup supplies a function returning the common Spanish
// variants of a canonical query, so their cache fingerprints can also be
// invalidated after a successful discovery (step 6 of the algorithm).
func WithVariantLookup(fn func(canonicalQuery string) []string) Option {
	return func(w *Worker) { w.variants = fn }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// NewWorker constructs a Worker. maxAttempts and backoffBase come from
// config.Config's worker_max_attempts (default 3) and the exponential
// backoff base interval.
func NewWorker(
	queue *Queue,
	pubmedClient PubMedSearcher,
	embedder Embedder,
	store vectorstore.VectorStore,
	tiered *cache.Tiered,
	thresholds EvidenceThresholds,
	maxAttempts int,
	backoffBase time.Duration,
	opts ...Option,
) *Worker {
	w := &Worker{
		queue:       queue,
		pubmed:      pubmedClient,
		embedder:    embedder,
		store:       store,
		tiered:      tiered,
		thresholds:  thresholds,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run subscribes to the queue's stream and processes one job per
// announcement until ctx is cancelled. It returns the unsubscribe error,
// if any, once ctx is done.
func (w *Worker) Run(ctx context.Context, stream Stream) error {
	unsubscribe, err := stream.Subscribe(func(canonicalQuery string) {
		w.ProcessJob(ctx, canonicalQuery)
	})
	if err != nil {
		return fmt.Errorf("worker subscribe: %w", err)
	}
	<-ctx.Done()
	return unsubscribe()
}

// ProcessJob runs the full discovery algorithm for one job, identified by
// its canonical query. Errors are logged and folded into job state
// transitions; nothing is returned to the stream.
func (w *Worker) ProcessJob(ctx context.Context, canonicalQuery string) {
	logger := w.logger.With(slog.String("component", "discovery.worker"), slog.String("query", canonicalQuery))

	job, ok, err := w.queue.TransitionToInFlight(ctx, canonicalQuery)
	if err != nil {
		logger.Error("transition to in_flight failed", slog.String("error", err.Error()))
		return
	}
	if !ok {
		logger.Debug("CAS to in_flight failed, another worker owns this job")
		return
	}

	studyCount, err := w.pubmed.StudyCount(ctx, canonicalQuery)
	if err != nil {
		w.handleFailure(ctx, logger, job, "pubmed.StudyCount", err)
		return
	}

	grade := w.thresholds.Grade(studyCount)
	if grade == "" {
		if err := w.queue.MarkRejectedNoEvidence(ctx, canonicalQuery); err != nil {
			logger.Error("mark rejected_no_evidence failed", slog.String("error", err.Error()))
		}
		logger.Info("discovery rejected: no evidence", slog.Int("study_count", studyCount))
		return
	}

	vec, err := w.embedder.Embed(ctx, canonicalQuery)
	if err != nil {
		w.handleFailure(ctx, logger, job, "embedding.Embed", err)
		return
	}

	now := time.Now()
	supplement := vectorstore.Supplement{
		CanonicalName: canonicalQuery,
		Aliases:       []string{canonicalQuery},
		Embedding:     vec,
		Metadata: vectorstore.Metadata{
			EvidenceGrade: grade,
			StudyCount:    studyCount,
			FirstSeen:     now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = w.store.Insert(supplement)
	if err != nil {
		if kind, isAPIErr := apierrors.KindOf(err); isAPIErr && kind == apierrors.KindDuplicate {
			logger.Info("insert raced with another worker, treating as success")
		} else {
			w.handleFailure(ctx, logger, job, "vectorstore.Insert", err)
			return
		}
	}

	w.invalidateCache(ctx, canonicalQuery)

	if err := w.queue.MarkSucceeded(ctx, canonicalQuery); err != nil {
		logger.Error("mark succeeded failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("discovery succeeded", slog.Int("study_count", studyCount), slog.String("grade", grade))
}

func (w *Worker) invalidateCache(ctx context.Context, canonicalQuery string) {
	w.tiered.Invalidate(ctx, cache.Fingerprint(canonicalQuery))
	if w.variants == nil {
		return
	}
	for _, variant := range w.variants(canonicalQuery) {
		w.tiered.Invalidate(ctx, cache.Fingerprint(variant))
	}
}

// handleFailure classifies err and either schedules a backoff retry
// (PUBMED_TRANSIENT, STORE_UNAVAILABLE) or fails the job outright
// (everything else, including exhausted retries).
func (w *Worker) handleFailure(ctx context.Context, logger *slog.Logger, job Job, op string, err error) {
	kind, isAPIErr := apierrors.KindOf(err)
	retryable := isAPIErr && (kind == apierrors.KindPubMedTransient || kind == apierrors.KindStoreUnavailable)

	observability.ObserveError(string(kind), "discovery.worker")

	if !retryable || job.Attempts+1 >= w.maxAttempts {
		if failErr := w.queue.MarkFailed(ctx, job.Query, fmt.Sprintf("%s: %v", op, err)); failErr != nil {
			logger.Error("mark failed failed", slog.String("error", failErr.Error()))
		}
		logger.Error("discovery job failed",
			slog.String("op", op), slog.String("error", err.Error()), slog.Int("attempts", job.Attempts+1))
		return
	}

	attempts := job.Attempts + 1
	delay := nextAttemptDelay(w.backoffBase, attempts)
	if reqErr := w.queue.RequeuePending(ctx, job.Query, attempts, time.Now().Add(delay), fmt.Sprintf("%s: %v", op, err)); reqErr != nil {
		logger.Error("requeue pending failed", slog.String("error", reqErr.Error()))
		return
	}
	logger.Warn("discovery job requeued for retry",
		slog.String("op", op), slog.String("error", err.Error()), slog.Int("attempts", attempts), slog.Duration("delay", delay))
}

// nextAttemptDelay computes 2^attempts * base with +-20% jitter, using
// cenkalti/backoff/v5's ExponentialBackOff as the jitter source rather
// than a hand-rolled rand.Float64 multiply.
func nextAttemptDelay(base time.Duration, attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxInterval = 24 * time.Hour

	var delay time.Duration
	for i := 0; i <= attempts; i++ {
		next, err := b.NextBackOff()
		if err != nil {
			break
		}
		delay = next
	}
	return delay
}
