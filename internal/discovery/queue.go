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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/latisnere/suplementia/internal/badgerstore"
	"github.com/latisnere/suplementia/internal/cache"
	"github.com/latisnere/suplementia/internal/observability"
)

// jobKeyPrefix versions the job record layout so a future encoding
// change can live alongside old entries until they expire.
const jobKeyPrefix = "job/v1/"

var errCASFailed = errors.New("discovery: CAS transition failed")

// Queue is a durable, fingerprint-keyed job store with idempotent
// enqueue, CAS state transitions, and retention-windowed cleanup. One job
// slot exists per query fingerprint: a SUCCEEDED or FAILED job is
// overwritten by the next Enqueue, but a REJECTED_NO_EVIDENCE job acts as
// a negative-discovery marker that suppresses re-enqueue (and therefore
// re-fetching PubMed) until the retention window passes — see DESIGN.md
// for the reasoning behind this negative-caching behavior.
//
// Thread Safety: safe for concurrent use by goroutines sharing one
// badgerstore.DB; BadgerDB locks its directory, so only one process opens
// it at a time.
type Queue struct {
	db        *badgerstore.DB
	stream    Stream
	retention time.Duration
	logger    *slog.Logger
}

// NewQueue constructs a Queue. stream may be nil, in which case PENDING
// transitions are not announced and a worker must be driven some other
// way (used in tests that call the queue directly).
func NewQueue(db *badgerstore.DB, stream Stream, retention time.Duration, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Queue{db: db, stream: stream, retention: retention, logger: logger}
}

func jobKey(fingerprint string) []byte {
	return []byte(jobKeyPrefix + fingerprint)
}

func (q *Queue) getJob(txn *badger.Txn, fingerprint string) (*Job, error) {
	item, err := txn.Get(jobKey(fingerprint))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("copy job value: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func putJob(txn *badger.Txn, fingerprint string, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return txn.Set(jobKey(fingerprint), raw)
}

// Enqueue idempotently records canonicalQuery as a job needing discovery.
// If a non-terminal job already exists for this query, its id is
// returned without creating a new job. If a REJECTED_NO_EVIDENCE job
// exists and is still within the retention window, its id is returned
// and no new PubMed lookup is triggered — it serves as a negative marker.
// Otherwise (no job, a SUCCEEDED or FAILED job, or a REJECTED_NO_EVIDENCE
// job past the retention window) a fresh PENDING job is created and
// announced on the stream.
func (q *Queue) Enqueue(ctx context.Context, canonicalQuery string) (jobID string, created bool, err error) {
	fingerprint := cache.Fingerprint(canonicalQuery)
	now := time.Now()

	err = q.db.WithTxn(ctx, func(txn *badger.Txn) error {
		existing, getErr := q.getJob(txn, fingerprint)
		if getErr != nil {
			return getErr
		}

		if existing != nil {
			if !existing.State.IsTerminal() {
				jobID = existing.JobID
				return nil
			}
			if existing.State == StateRejectedNoEvidence && now.Before(existing.CompletedAt.Add(q.retention)) {
				jobID = existing.JobID
				return nil
			}
		}

		job := Job{
			JobID:      uuid.NewString(),
			Query:      canonicalQuery,
			State:      StatePending,
			EnqueuedAt: now,
		}
		if err := putJob(txn, fingerprint, job); err != nil {
			return err
		}
		jobID = job.JobID
		created = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("discovery enqueue: %w", err)
	}

	if created && q.stream != nil {
		if err := q.stream.PublishPending(ctx, canonicalQuery); err != nil {
			q.logger.Warn("discovery: publish pending failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
		}
	}
	if created {
		observability.DiscoveryBacklog.Inc()
	}
	return jobID, created, nil
}

// Get retrieves the job record at the given fingerprint-derived key.
// Jobs are looked up by the original query text, not the job id, since
// that is the access pattern the worker and orchestrator both need.
func (q *Queue) Get(ctx context.Context, canonicalQuery string) (*Job, error) {
	fingerprint := cache.Fingerprint(canonicalQuery)
	var job *Job
	err := q.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var getErr error
		job, getErr = q.getJob(txn, fingerprint)
		return getErr
	})
	if err != nil {
		return nil, fmt.Errorf("discovery get: %w", err)
	}
	return job, nil
}

// TransitionToInFlight performs the CAS required before a worker may act
// on a job: the transition only commits if the job is still PENDING at
// commit time. Badger's serializable transactions detect a concurrent
// writer via ErrConflict, which this method folds into ok=false exactly
// like a failed compare-and-swap.
func (q *Queue) TransitionToInFlight(ctx context.Context, canonicalQuery string) (Job, bool, error) {
	fingerprint := cache.Fingerprint(canonicalQuery)
	var result Job

	err := q.db.WithTxn(ctx, func(txn *badger.Txn) error {
		job, getErr := q.getJob(txn, fingerprint)
		if getErr != nil {
			return getErr
		}
		if job == nil || job.State != StatePending {
			return errCASFailed
		}
		job.State = StateInFlight
		result = *job
		return putJob(txn, fingerprint, *job)
	})

	if errors.Is(err, errCASFailed) || errors.Is(err, badger.ErrConflict) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("discovery transition to in_flight: %w", err)
	}
	return result, true, nil
}

// RequeuePending transitions a job from IN_FLIGHT back to PENDING after a
// retryable failure, incrementing attempts and setting the backoff
// deadline computed by the caller.
func (q *Queue) RequeuePending(ctx context.Context, canonicalQuery string, attempts int, nextAttemptAfter time.Time, lastErr string) error {
	fingerprint := cache.Fingerprint(canonicalQuery)
	err := q.db.WithTxn(ctx, func(txn *badger.Txn) error {
		job, getErr := q.getJob(txn, fingerprint)
		if getErr != nil {
			return getErr
		}
		if job == nil {
			return fmt.Errorf("requeue: no job for query %q", canonicalQuery)
		}
		job.State = StatePending
		job.Attempts = attempts
		job.NextAttemptAfter = nextAttemptAfter
		job.LastError = lastErr
		return putJob(txn, fingerprint, *job)
	})
	if err != nil {
		return fmt.Errorf("discovery requeue pending: %w", err)
	}
	if q.stream != nil {
		if err := q.stream.PublishPending(ctx, canonicalQuery); err != nil {
			q.logger.Warn("discovery: publish pending (requeue) failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (q *Queue) completeTerminal(ctx context.Context, canonicalQuery string, state State, lastErr string) error {
	fingerprint := cache.Fingerprint(canonicalQuery)
	now := time.Now()
	err := q.db.WithTxn(ctx, func(txn *badger.Txn) error {
		job, getErr := q.getJob(txn, fingerprint)
		if getErr != nil {
			return getErr
		}
		if job == nil {
			return fmt.Errorf("complete: no job for query %q", canonicalQuery)
		}
		job.State = state
		job.LastError = lastErr
		job.CompletedAt = now
		return putJob(txn, fingerprint, *job)
	})
	if err != nil {
		return fmt.Errorf("discovery complete %s: %w", state, err)
	}
	observability.DiscoveryBacklog.Dec()
	observability.DiscoveryJobsTotal.WithLabelValues(strings.ToLower(string(state))).Inc()
	return nil
}

// MarkSucceeded transitions a job to SUCCEEDED.
func (q *Queue) MarkSucceeded(ctx context.Context, canonicalQuery string) error {
	return q.completeTerminal(ctx, canonicalQuery, StateSucceeded, "")
}

// MarkFailed transitions a job to FAILED after exhausting retries or
// hitting a non-retryable error.
func (q *Queue) MarkFailed(ctx context.Context, canonicalQuery string, lastErr string) error {
	return q.completeTerminal(ctx, canonicalQuery, StateFailed, lastErr)
}

// MarkRejectedNoEvidence transitions a job to REJECTED_NO_EVIDENCE.
func (q *Queue) MarkRejectedNoEvidence(ctx context.Context, canonicalQuery string) error {
	return q.completeTerminal(ctx, canonicalQuery, StateRejectedNoEvidence, "")
}

// BacklogCount returns the number of jobs currently in state PENDING, by
// scanning the job/v1/ key range. Used to refresh the backlog gauge on a
// schedule independent of individual Enqueue calls (e.g. after a crash
// recovery where the in-memory gauge was reset to zero).
func (q *Queue) BacklogCount(ctx context.Context) (int, error) {
	var count int
	err := q.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(jobKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy job value during scan: %w", err)
			}
			var job Job
			if err := json.Unmarshal(raw, &job); err != nil {
				return fmt.Errorf("decode job during scan: %w", err)
			}
			if job.State == StatePending {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("discovery backlog count: %w", err)
	}
	return count, nil
}

// CleanupExpired deletes terminal jobs whose CompletedAt is older than
// the configured retention window, freeing the fingerprint slot for a
// future Enqueue.
func (q *Queue) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-q.retention)
	var toDelete [][]byte

	err := q.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(jobKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy job value during cleanup scan: %w", err)
			}
			var job Job
			if err := json.Unmarshal(raw, &job); err != nil {
				return fmt.Errorf("decode job during cleanup scan: %w", err)
			}
			if job.State.IsTerminal() && job.CompletedAt.Before(cutoff) {
				key := append([]byte(nil), it.Item().Key()...)
				toDelete = append(toDelete, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("discovery cleanup scan: %w", err)
	}

	deleted := 0
	for _, key := range toDelete {
		err := q.db.WithTxn(ctx, func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			q.logger.Warn("discovery cleanup: delete failed", slog.String("error", err.Error()))
			continue
		}
		deleted++
	}
	return deleted, nil
}
