// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apierrors defines the typed error kinds shared by every component
// of the search service. Kinds double as both the user-visible outcome and
// the Prometheus error-rate label, so the set is intentionally small and
// closed.
package apierrors

import "fmt"

// Kind is one of the closed set of error kinds from the service spec.
type Kind string

const (
	// KindInvalidQuery means the normalizer produced confidence < 0.3 or the
	// cleaned query length fell outside [1, 200]. Not retryable.
	KindInvalidQuery Kind = "INVALID_QUERY"

	// KindNotFound means no vector match cleared the similarity floor; a
	// discovery job was enqueued. User-visible as "processing".
	KindNotFound Kind = "NOT_FOUND"

	// KindStoreUnavailable means the vector store connection failed.
	// Retryable by the caller up to 2x with jitter; masked to the user as 503.
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"

	// KindCacheUnavailable means an L1/L2 tier failed; the orchestrator
	// degrades to the next tier. Never surfaced to the user.
	KindCacheUnavailable Kind = "CACHE_UNAVAILABLE"

	// KindModelUnavailable means the embedding model failed to load. No
	// fallback exists; user-visible as 503.
	KindModelUnavailable Kind = "MODEL_UNAVAILABLE"

	// KindLLMTimeout means the normalizer's LLM fallback call exceeded its
	// budget or errored. The pipeline proceeds to title-case passthrough.
	KindLLMTimeout Kind = "LLM_TIMEOUT"

	// KindPubMedTransient means a PubMed call failed in a way the worker
	// should retry with exponential backoff, up to WorkerMaxAttempts.
	KindPubMedTransient Kind = "PUBMED_TRANSIENT"

	// KindPubMedPermanent means a PubMed call failed in a way retrying
	// cannot fix; the discovery job moves straight to FAILED.
	KindPubMedPermanent Kind = "PUBMED_PERMANENT"

	// KindDuplicate means an insert raced another worker inserting the same
	// canonical name first. Treated as success by the caller.
	KindDuplicate Kind = "DUPLICATE"

	// KindInvalidEmbedding means a vector's dimension did not match the
	// store's configured dimension. Not retryable; the job fails.
	KindInvalidEmbedding Kind = "INVALID_EMBEDDING"
)

// Error wraps a Kind with the operation that produced it and an optional
// underlying cause. It formalizes the usual op/cause/wrap shape of a
// fmt.Errorf("%s: %w", op, err) chain because these kinds also drive
// HTTP status mapping and metric labels.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error for the given operation and kind, optionally
// wrapping a cause.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, returning
// ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

// asError is a small local errors.As to avoid importing the stdlib package
// under a name that shadows this package's own identifier in call sites.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retryable reports whether the caller (not the worker) should retry this
// kind rather than failing immediately.
func Retryable(k Kind) bool {
	return k == KindStoreUnavailable
}

// UserVisible reports whether the kind should be surfaced to the caller
// rather than masked/degraded internally.
func UserVisible(k Kind) bool {
	switch k {
	case KindInvalidQuery, KindNotFound, KindModelUnavailable:
		return true
	default:
		return false
	}
}
