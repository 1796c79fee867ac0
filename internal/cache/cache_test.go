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
	"testing"
	"time"

	"github.com/latisnere/suplementia/internal/badgerstore"
)

func openTestL2(t *testing.T) *L2Cache {
	t.Helper()
	db, err := badgerstore.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("badgerstore.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewL2Cache(db, nil)
}

func TestFingerprint_CaseInsensitive(t *testing.T) {
	a := Fingerprint("Vitamin D")
	b := Fingerprint("vitamin d")
	if a != b {
		t.Errorf("Fingerprint differs by case: %q vs %q", a, b)
	}
}

func TestFingerprint_Length(t *testing.T) {
	fp := Fingerprint("Magnesium")
	if len(fp) != 32 {
		t.Errorf("len(Fingerprint()) = %d, want 32 (128 bits hex-encoded)", len(fp))
	}
}

func TestL1Cache_PutGet(t *testing.T) {
	l1, err := NewL1Cache()
	if err != nil {
		t.Fatalf("NewL1Cache() error = %v", err)
	}
	defer l1.Close()

	ctx := context.Background()
	entry := Entry{SupplementID: "supp-000001", CanonicalName: "Magnesium", Similarity: 1.0, CachedAt: time.Now()}
	if err := l1.Put(ctx, "fp1", entry, time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, hit, err := l1.Get(ctx, "fp1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !hit {
		t.Fatal("Get() hit = false, want true")
	}
	if got.SupplementID != entry.SupplementID {
		t.Errorf("SupplementID = %q, want %q", got.SupplementID, entry.SupplementID)
	}
}

func TestL1Cache_Miss(t *testing.T) {
	l1, err := NewL1Cache()
	if err != nil {
		t.Fatalf("NewL1Cache() error = %v", err)
	}
	defer l1.Close()

	_, hit, err := l1.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if hit {
		t.Error("Get() hit = true, want false for unknown fingerprint")
	}
}

func TestL2Cache_PutGetDelete(t *testing.T) {
	l2 := openTestL2(t)
	ctx := context.Background()

	entry := Entry{SupplementID: "supp-000002", CanonicalName: "Zinc", Similarity: 1.0, CachedAt: time.Now()}
	if err := l2.Put(ctx, "fp2", entry, time.Hour); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, hit, err := l2.Get(ctx, "fp2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !hit || got.CanonicalName != "Zinc" {
		t.Fatalf("Get() = %+v, %v, want a Zinc hit", got, hit)
	}

	if err := l2.Delete(ctx, "fp2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, hit, err = l2.Get(ctx, "fp2")
	if err != nil {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if hit {
		t.Error("Get() after Delete() hit = true, want false")
	}
}

func TestL2Cache_TTLExpiry(t *testing.T) {
	l2 := openTestL2(t)
	ctx := context.Background()

	entry := Entry{SupplementID: "supp-000003", CanonicalName: "Iron", CachedAt: time.Now()}
	if err := l2.Put(ctx, "fp3", entry, time.Nanosecond); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, hit, err := l2.Get(ctx, "fp3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if hit {
		t.Error("Get() hit = true after TTL expiry, want false")
	}
}

func TestTiered_WriteThroughOnL2Hit(t *testing.T) {
	l1, err := NewL1Cache()
	if err != nil {
		t.Fatalf("NewL1Cache() error = %v", err)
	}
	defer l1.Close()
	l2 := openTestL2(t)

	tiered := NewTiered(nil, l1, l2)
	ctx := context.Background()

	entry := Entry{SupplementID: "supp-000004", CanonicalName: "Calcium", CachedAt: time.Now()}
	if err := l2.Put(ctx, "fp4", entry, time.Hour); err != nil {
		t.Fatalf("l2.Put() error = %v", err)
	}

	got, hit := tiered.Get(ctx, "fp4", time.Hour)
	if !hit || got.CanonicalName != "Calcium" {
		t.Fatalf("Tiered.Get() = %+v, %v, want a Calcium hit from L2", got, hit)
	}

	l1Got, l1Hit, err := l1.Get(ctx, "fp4")
	if err != nil {
		t.Fatalf("l1.Get() error = %v", err)
	}
	if !l1Hit {
		t.Fatal("L1 was not populated by write-through after an L2 hit")
	}
	if l1Got.CanonicalName != "Calcium" {
		t.Errorf("l1 write-through CanonicalName = %q, want Calcium", l1Got.CanonicalName)
	}
}

func TestTiered_FlushClearsAllTiers(t *testing.T) {
	l1, err := NewL1Cache()
	if err != nil {
		t.Fatalf("NewL1Cache() error = %v", err)
	}
	defer l1.Close()
	l2 := openTestL2(t)

	tiered := NewTiered(nil, l1, l2)
	ctx := context.Background()
	entry := Entry{SupplementID: "supp-000006", CanonicalName: "Elderberry", CachedAt: time.Now()}
	tiered.Put(ctx, "fp6", entry, time.Hour)

	tiered.Flush(ctx)

	if _, hit := tiered.Get(ctx, "fp6", time.Hour); hit {
		t.Error("Tiered.Get() hit = true after Flush(), want false")
	}
}

func TestTiered_InvalidateRemovesFromAllTiers(t *testing.T) {
	l1, err := NewL1Cache()
	if err != nil {
		t.Fatalf("NewL1Cache() error = %v", err)
	}
	defer l1.Close()
	l2 := openTestL2(t)

	tiered := NewTiered(nil, l1, l2)
	ctx := context.Background()
	entry := Entry{SupplementID: "supp-000005", CanonicalName: "Ashwagandha", CachedAt: time.Now()}
	tiered.Put(ctx, "fp5", entry, time.Hour)

	tiered.Invalidate(ctx, "fp5")

	if _, hit := tiered.Get(ctx, "fp5", time.Hour); hit {
		t.Error("Tiered.Get() hit = true after Invalidate(), want false")
	}
}
