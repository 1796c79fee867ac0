// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package seed

import (
	"context"
	"testing"

	"github.com/latisnere/suplementia/internal/cache"
	"github.com/latisnere/suplementia/internal/vectorstore"
)

type fakeEmbedder struct{ counter int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.counter++
	vec := make([]float32, 384)
	vec[f.counter%384] = 1
	return vec, nil
}

func testTiered(t *testing.T) *cache.Tiered {
	t.Helper()
	l1, err := cache.NewL1Cache()
	if err != nil {
		t.Fatalf("NewL1Cache() error = %v", err)
	}
	t.Cleanup(l1.Close)
	return cache.NewTiered(nil, l1)
}

func TestBootstrap_InsertsEntireCatalog(t *testing.T) {
	store := vectorstore.NewMemoryVectorStore()
	ing := NewIngester(&fakeEmbedder{}, store, testTiered(t), nil)

	inserted, err := ing.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if inserted != len(Catalog) {
		t.Errorf("inserted = %d, want %d", inserted, len(Catalog))
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != len(Catalog) {
		t.Errorf("store.Count() = %d, want %d", count, len(Catalog))
	}
}

func TestUpsertSupplement_ReturnsExistingIDOnDuplicate(t *testing.T) {
	store := vectorstore.NewMemoryVectorStore()
	ing := NewIngester(&fakeEmbedder{}, store, testTiered(t), nil)

	id1, err := ing.UpsertSupplement(context.Background(), "Vitamin K2", nil, "vitamin")
	if err != nil {
		t.Fatalf("first UpsertSupplement() error = %v", err)
	}

	id2, err := ing.UpsertSupplement(context.Background(), "Vitamin K2", nil, "vitamin")
	if err != nil {
		t.Fatalf("second UpsertSupplement() error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("duplicate upsert returned a different id: %q != %q", id1, id2)
	}
}
