// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore persists Supplement rows with a 384-d embedding
// column and serves ANN + exact lookups. Two backends implement the same
// VectorStore interface: WeaviateVectorStore (production, HNSW-indexed with
// cosine distance) and MemoryVectorStore (embedded HNSW, used in tests and
// as the degrade-to path when VECTOR_STORE_URL is unset).
package vectorstore

import "time"

// Metadata is the evidence-grading metadata attached to a Supplement.
type Metadata struct {
	EvidenceGrade string    `json:"evidence_grade"`
	StudyCount    int       `json:"study_count"`
	Category      string    `json:"category"`
	FirstSeen     time.Time `json:"first_seen"`
}

// Supplement is the primary search-returnable entity.
type Supplement struct {
	ID            string    `json:"id"`
	CanonicalName string    `json:"canonical_name"`
	Aliases       []string  `json:"aliases"`
	Embedding     []float32 `json:"embedding"`
	Metadata      Metadata  `json:"metadata"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ScoredSupplement pairs a Supplement with its similarity to a query vector.
type ScoredSupplement struct {
	Supplement Supplement
	Similarity float64
}

// VectorStore is the capability the orchestrator and discovery worker need
// from whatever backs supplement storage.
type VectorStore interface {
	// GetByCanonicalName returns the supplement with an exact canonical
	// name match, or (nil, nil) if none exists.
	GetByCanonicalName(name string) (*Supplement, error)

	// ANN returns up to k supplements with similarity >= minSimilarity,
	// ordered by descending similarity. Ties to three decimals break by
	// lower ID for determinism.
	ANN(queryVec []float32, k int, minSimilarity float64) ([]ScoredSupplement, error)

	// Insert atomically adds a new supplement. Returns a DUPLICATE-kind
	// error if CanonicalName already exists.
	Insert(s Supplement) (id string, err error)

	// Count returns the number of supplements currently stored, for the
	// store-population gauge.
	Count() (int, error)
}
