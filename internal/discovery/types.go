// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery is the durable queue and worker that turn an unknown
// query into a materialized Supplement: validate against PubMed, grade
// evidence, embed, insert, invalidate the cache. Job records are BadgerDB
// rows, and the PENDING transition is announced on a NATS subject so
// worker instances don't poll.
package discovery

import "time"

// State is one of the five lifecycle states a Job moves through.
type State string

const (
	StatePending            State = "PENDING"
	StateInFlight           State = "IN_FLIGHT"
	StateSucceeded          State = "SUCCEEDED"
	StateFailed             State = "FAILED"
	StateRejectedNoEvidence State = "REJECTED_NO_EVIDENCE"
)

// IsTerminal reports whether a job in this state will never transition
// again without being re-created by a fresh Enqueue.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateRejectedNoEvidence:
		return true
	default:
		return false
	}
}

// Job is a pending or in-flight unknown query awaiting PubMed validation.
type Job struct {
	JobID            string    `json:"job_id"`
	Query            string    `json:"query"`
	State            State     `json:"state"`
	Attempts         int       `json:"attempts"`
	NextAttemptAfter time.Time `json:"next_attempt_after"`
	LastError        string    `json:"last_error,omitempty"`
	EnqueuedAt       time.Time `json:"enqueued_at"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
}
