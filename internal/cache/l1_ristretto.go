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
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	l1NumCounters = 1e6 // ~10x expected entries, per ristretto sizing guidance
	l1MaxCost     = 1 << 26
	l1BufferItems = 64
)

// L1Cache is the in-process cache tier, backed by Ristretto. It survives
// only for the lifetime of the process; a restart is always an L1 miss,
// which is the intended behavior since L2 (Badger) backs it for warm
// restarts.
//
// Thread Safety: safe for concurrent use.
type L1Cache struct {
	ristretto *ristretto.Cache[string, Entry]
}

// NewL1Cache constructs a Ristretto-backed L1 tier.
func NewL1Cache() (*L1Cache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: l1NumCounters,
		MaxCost:     l1MaxCost,
		BufferItems: l1BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &L1Cache{ristretto: rc}, nil
}

func (c *L1Cache) Name() string { return "l1" }

func (c *L1Cache) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	entry, ok := c.ristretto.Get(fingerprint)
	if !ok {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *L1Cache) Put(ctx context.Context, fingerprint string, entry Entry, ttl time.Duration) error {
	c.ristretto.SetWithTTL(fingerprint, entry, 1, ttl)
	c.ristretto.Wait()
	return nil
}

func (c *L1Cache) Delete(ctx context.Context, fingerprint string) error {
	c.ristretto.Del(fingerprint)
	return nil
}

// Clear drops every entry, used for the admin ingest's global
// cache-flush signal.
func (c *L1Cache) Clear(ctx context.Context) error {
	c.ristretto.Clear()
	return nil
}

// Close releases Ristretto's background goroutines.
func (c *L1Cache) Close() {
	c.ristretto.Close()
}
