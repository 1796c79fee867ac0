// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"time"
)

// Entry is the cached record for one fingerprint: the resolved supplement
// id plus bookkeeping for observability. Cache values store the id, not
// the full Supplement, so a discovery-triggered insert can invalidate by
// fingerprint without carrying stale embedding data forward.
type Entry struct {
	SupplementID  string    `json:"supplement_id"`
	CanonicalName string    `json:"canonical_name"`
	Similarity    float64   `json:"similarity"`
	CachedAt      time.Time `json:"cached_at"`
}

// Tier is one layer of the cache hierarchy. Implementations must treat
// "not found" and "expired" identically: both are a plain miss, never an
// error. A non-nil error return means the tier itself is unavailable and
// the caller should degrade to the next tier or to a cold lookup.
type Tier interface {
	Get(ctx context.Context, fingerprint string) (Entry, bool, error)
	Put(ctx context.Context, fingerprint string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, fingerprint string) error
	// Clear drops every entry in the tier, used for a global cache flush.
	Clear(ctx context.Context) error
	// Name identifies the tier for metrics labels ("l1", "l2").
	Name() string
}
