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
	"log/slog"
	"time"

	"github.com/latisnere/suplementia/internal/apierrors"
	"github.com/latisnere/suplementia/internal/observability"
)

// Tiered checks tiers in order (fastest first) and write-through
// populates every faster tier on a slower-tier hit, so a cold restart
// rehydrates L1 from L2 one query at a time rather than all at once.
//
// Thread Safety: safe for concurrent use, assuming each Tier is.
type Tiered struct {
	tiers  []Tier
	logger *slog.Logger
}

// NewTiered builds a Tiered cache from tiers ordered fastest-first
// (typically L1 then L2).
func NewTiered(logger *slog.Logger, tiers ...Tier) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{tiers: tiers, logger: logger}
}

// Get walks the tiers in order. On a hit at tier i>0, the entry is
// written through to tiers [0, i) before returning, so the next lookup
// is satisfied by the fastest tier.
func (t *Tiered) Get(ctx context.Context, fingerprint string, ttl time.Duration) (Entry, bool) {
	for i, tier := range t.tiers {
		entry, hit, err := tier.Get(ctx, fingerprint)
		if err != nil {
			t.logger.Warn("cache tier unavailable, degrading to next tier",
				slog.String("tier", tier.Name()), slog.String("error", err.Error()))
			observability.ObserveError(string(apierrors.KindCacheUnavailable), "cache."+tier.Name())
			continue
		}
		observability.ObserveCacheLookup(tier.Name(), hit)
		if !hit {
			continue
		}
		for _, faster := range t.tiers[:i] {
			if err := faster.Put(ctx, fingerprint, entry, ttl); err != nil {
				t.logger.Warn("write-through to faster tier failed",
					slog.String("tier", faster.Name()), slog.String("error", err.Error()))
			}
		}
		return entry, true
	}
	return Entry{}, false
}

// Put writes entry to every tier. A failure in one tier is logged but
// does not block the others — a cache write failure is never fatal to
// the search path.
func (t *Tiered) Put(ctx context.Context, fingerprint string, entry Entry, ttl time.Duration) {
	for _, tier := range t.tiers {
		if err := tier.Put(ctx, fingerprint, entry, ttl); err != nil {
			t.logger.Warn("cache put failed",
				slog.String("tier", tier.Name()), slog.String("error", err.Error()))
			observability.ObserveError(string(apierrors.KindCacheUnavailable), "cache."+tier.Name())
		}
	}
}

// Invalidate deletes fingerprint from every tier. Used when a discovery
// job materializes a new supplement that would change the result for a
// previously-cached miss or a stale alias.
func (t *Tiered) Invalidate(ctx context.Context, fingerprint string) {
	for _, tier := range t.tiers {
		if err := tier.Delete(ctx, fingerprint); err != nil {
			t.logger.Warn("cache invalidate failed",
				slog.String("tier", tier.Name()), slog.String("error", err.Error()))
		}
	}
}

// Flush clears every tier, used by the admin ingest endpoint's global
// cache-flush signal after a bootstrap upsert.
func (t *Tiered) Flush(ctx context.Context) {
	for _, tier := range t.tiers {
		if err := tier.Clear(ctx); err != nil {
			t.logger.Warn("cache flush failed",
				slog.String("tier", tier.Name()), slog.String("error", err.Error()))
		}
	}
}
