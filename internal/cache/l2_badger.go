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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/latisnere/suplementia/internal/badgerstore"
)

// l2KeyPrefix versions the storage layout so a future encoding change
// can live alongside old entries until they expire.
const l2KeyPrefix = "search/cache/v1/"

var errL2Miss = errors.New("l2 cache miss")

// L2Cache is the durable cache tier, backed by BadgerDB with native
// per-key TTL enforcement (no application-level expiry bookkeeping is
// needed: an expired key simply returns ErrKeyNotFound).
//
// Thread Safety: safe for concurrent use.
type L2Cache struct {
	db     *badgerstore.DB
	logger *slog.Logger
}

// NewL2Cache wraps an already-open BadgerDB handle as an L2 cache tier.
func NewL2Cache(db *badgerstore.DB, logger *slog.Logger) *L2Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &L2Cache{db: db, logger: logger}
}

func (c *L2Cache) Name() string { return "l2" }

func (c *L2Cache) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	key := l2Key(fingerprint)

	var raw []byte
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errL2Miss
		}
		if err != nil {
			return fmt.Errorf("get l2 key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, errL2Miss) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("l2 cache get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("l2 cache decode: %w", err)
	}
	return entry, true, nil
}

func (c *L2Cache) Put(ctx context.Context, fingerprint string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("l2 cache encode: %w", err)
	}

	key := l2Key(fingerprint)
	err = c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		e := badger.NewEntry(key, raw)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("l2 cache put: %w", err)
	}
	return nil
}

func (c *L2Cache) Delete(ctx context.Context, fingerprint string) error {
	key := l2Key(fingerprint)
	err := c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("l2 cache delete: %w", err)
	}
	return nil
}

// Clear drops every search/cache/v1/ key via Badger's native prefix drop, used for
// the admin ingest's global cache-flush signal.
func (c *L2Cache) Clear(ctx context.Context) error {
	if err := c.db.DropPrefix(ctx, []byte(l2KeyPrefix)); err != nil {
		return fmt.Errorf("l2 cache clear: %w", err)
	}
	return nil
}

func l2Key(fingerprint string) []byte {
	return []byte(l2KeyPrefix + fingerprint)
}
