// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore wraps a single BadgerDB handle shared by the L2
// cache and the discovery queue: callers transact through
// WithTxn/WithReadTxn rather than touching *badger.DB directly, so the
// open/close lifecycle and GC loop live in exactly one place.
package badgerstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// DB wraps an open BadgerDB instance plus its background value-log GC loop.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions are
// per-goroutine.
type DB struct {
	badger *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
}

// Open opens (creating if absent) a BadgerDB instance rooted at dir and
// starts a periodic value-log GC loop.
func Open(dir string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}

	db := &DB{badger: bdb, logger: logger, stopGC: make(chan struct{})}
	go db.runGC()
	return db, nil
}

func (db *DB) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopGC:
			return
		case <-ticker.C:
		again:
			if err := db.badger.RunValueLogGC(0.5); err == nil {
				goto again
			}
		}
	}
}

// Close stops the GC loop and closes the underlying BadgerDB handle.
func (db *DB) Close() error {
	close(db.stopGC)
	return db.badger.Close()
}

// WithTxn runs fn inside a read-write BadgerDB transaction, committing on
// success and discarding on any returned error.
func (db *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.badger.Update(fn)
}

// WithReadTxn runs fn inside a read-only BadgerDB transaction.
func (db *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.badger.View(fn)
}

// DropPrefix deletes every key under prefix in one call, used by the L2
// cache's global flush and by test cleanup.
func (db *DB) DropPrefix(ctx context.Context, prefix []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.badger.DropPrefix(prefix)
}
