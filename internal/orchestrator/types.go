// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives the request pipeline: normalize, cache
// lookup, single-flight-guarded embed-and-search, write-through, and
// discovery enqueue on miss.
package orchestrator

import "time"

// Status is one of the closed set of SearchResponse outcomes.
type Status string

const (
	StatusFound       Status = "found"
	StatusProcessing  Status = "processing"
	StatusInvalid     Status = "invalid"
	StatusUnavailable Status = "unavailable"
)

// SourceTier records which stage satisfied a search, for both the response
// payload and the cache-hit metric label.
type SourceTier string

const (
	TierL1     SourceTier = "l1"
	TierL2     SourceTier = "l2"
	TierVector SourceTier = "vector"
	TierNone   SourceTier = "none"
)

// SupplementView is the response-shaped projection of vectorstore.Supplement,
// decoupled from the store's internal type so the HTTP layer never imports
// internal/vectorstore directly.
type SupplementView struct {
	ID            string
	CanonicalName string
	EvidenceGrade string
	StudyCount    int
	Category      string
}

// Response is the full result of a Search call.
type Response struct {
	Status        Status
	Supplement    *SupplementView
	Similarity    float64
	SourceTier    SourceTier
	LatencyMS     int64
	CorrelationID string
}
