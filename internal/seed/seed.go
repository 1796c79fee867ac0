// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package seed bootstraps the vector store with a starter catalog of
// well-known supplements, exercising the same embed-then-insert path the
// discovery worker uses.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/latisnere/suplementia/internal/apierrors"
	"github.com/latisnere/suplementia/internal/cache"
	"github.com/latisnere/suplementia/internal/vectorstore"
)

// bootstrapConcurrency bounds how many catalog entries are embedded at
// once during Bootstrap.
const bootstrapConcurrency = 4

// Entry is one row of the starter catalog.
type Entry struct {
	CanonicalName string
	Aliases       []string
	EvidenceGrade string
	StudyCount    int
	Category      string
}

// Catalog is the bootstrap migration's starter set: well-established
// supplements with uncontroversial evidence grades, standing in for the
// spec's full 70-entry seed list. Extending it is a data change, not a
// code change.
var Catalog = []Entry{
	{"Vitamin D3", []string{"cholecalciferol", "vitamina d3"}, "A", 412, "vitamin"},
	{"Vitamin C", []string{"ascorbic acid", "vitamina c"}, "A", 980, "vitamin"},
	{"Vitamin B12", []string{"cobalamin", "vitamina b12"}, "A", 356, "vitamin"},
	{"Magnesium Glycinate", []string{"magnesio glicinato"}, "A", 178, "mineral"},
	{"Zinc Picolinate", []string{"zinc picolinato"}, "A", 201, "mineral"},
	{"Omega-3 Fish Oil", []string{"epa dha", "aceite de pescado"}, "A", 1540, "fatty_acid"},
	{"Creatine Monohydrate", []string{"creatina monohidrato"}, "A", 890, "performance"},
	{"Ashwagandha KSM-66", []string{"withania somnifera", "ashwagandha"}, "C", 64, "adaptogen"},
	{"Rhodiola Rosea", []string{"rodiola"}, "C", 41, "adaptogen"},
	{"Curcumin", []string{"turmeric extract", "curcuma"}, "A", 623, "anti_inflammatory"},
	{"Probiotic Multi-Strain", []string{"probioticos"}, "C", 88, "gut_health"},
	{"Melatonin", []string{"melatonina"}, "A", 445, "sleep"},
	{"Collagen Peptides", []string{"colageno hidrolizado"}, "C", 57, "joint_health"},
	{"Quercetin", []string{"quercetina"}, "C", 72, "antioxidant"},
	{"N-Acetyl Cysteine", []string{"nac", "n-acetilcisteina"}, "A", 310, "antioxidant"},
	{"Coenzyme Q10", []string{"ubiquinol", "coq10"}, "A", 287, "cardiovascular"},
	{"L-Theanine", []string{"teanina"}, "C", 53, "cognitive"},
	{"Glucosamine Sulfate", []string{"glucosamina"}, "A", 301, "joint_health"},
	{"Iron Bisglycinate", []string{"hierro bisglicinato"}, "A", 190, "mineral"},
	{"Biotin", []string{"vitamin b7", "biotina"}, "C", 62, "vitamin"},
}

// Embedder is the subset of embedding.Service the ingester needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Ingester performs the admin ingest contract: embed -> insert ->
// global cache flush.
type Ingester struct {
	embedder Embedder
	store    vectorstore.VectorStore
	tiered   *cache.Tiered
	logger   *slog.Logger
}

// NewIngester builds an Ingester.
func NewIngester(embedder Embedder, store vectorstore.VectorStore, tiered *cache.Tiered, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{embedder: embedder, store: store, tiered: tiered, logger: logger}
}

// UpsertSupplement implements §6's upsert_supplement(canonical_name,
// aliases[], metadata) -> id contract: generate an embedding, insert, flush
// every cache tier so no stale negative can outlive the insert.
func (ing *Ingester) UpsertSupplement(ctx context.Context, canonicalName string, aliases []string, category string) (string, error) {
	vec, err := ing.embedder.Embed(ctx, canonicalName)
	if err != nil {
		return "", fmt.Errorf("upsert %q: embed: %w", canonicalName, err)
	}

	now := time.Now()
	id, err := ing.store.Insert(vectorstore.Supplement{
		CanonicalName: canonicalName,
		Aliases:       aliases,
		Embedding:     vec,
		Metadata:      vectorstore.Metadata{Category: category, FirstSeen: now},
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if kind, ok := apierrors.KindOf(err); ok && kind == apierrors.KindDuplicate {
			existing, getErr := ing.store.GetByCanonicalName(canonicalName)
			if getErr != nil || existing == nil {
				return "", fmt.Errorf("upsert %q: duplicate but lookup failed: %w", canonicalName, getErr)
			}
			id = existing.ID
		} else {
			return "", fmt.Errorf("upsert %q: insert: %w", canonicalName, err)
		}
	}

	ing.tiered.Flush(ctx)
	ing.logger.Info("supplement upserted", slog.String("canonical_name", canonicalName), slog.String("id", id))
	return id, nil
}

// Bootstrap ingests Catalog end to end: embeddings are computed
// concurrently (bounded by bootstrapConcurrency, the same pattern
// embedding.Service.Warm uses), inserts happen sequentially afterward so
// ordering and per-entry error handling stay simple. A bad embedding or
// insert is logged and skipped rather than aborting the whole migration.
func (ing *Ingester) Bootstrap(ctx context.Context) (inserted int, err error) {
	vecs := make([][]float32, len(Catalog))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, bootstrapConcurrency)
	for i, entry := range Catalog {
		i, entry := i, entry
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()
			vec, embedErr := ing.embedder.Embed(gctx, entry.CanonicalName)
			if embedErr != nil {
				ing.logger.Error("bootstrap: embed failed", slog.String("supplement", entry.CanonicalName), slog.String("error", embedErr.Error()))
				return nil
			}
			vecs[i] = vec
			return nil
		})
	}
	_ = g.Wait()

	for i, entry := range Catalog {
		if vecs[i] == nil {
			continue
		}

		now := time.Now()
		_, insErr := ing.store.Insert(vectorstore.Supplement{
			CanonicalName: entry.CanonicalName,
			Aliases:       entry.Aliases,
			Embedding:     vecs[i],
			Metadata: vectorstore.Metadata{
				EvidenceGrade: entry.EvidenceGrade,
				StudyCount:    entry.StudyCount,
				Category:      entry.Category,
				FirstSeen:     now,
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if insErr != nil {
			if kind, ok := apierrors.KindOf(insErr); ok && kind == apierrors.KindDuplicate {
				continue
			}
			ing.logger.Error("bootstrap: insert failed", slog.String("supplement", entry.CanonicalName), slog.String("error", insErr.Error()))
			continue
		}
		inserted++
	}
	ing.tiered.Flush(ctx)
	ing.logger.Info("bootstrap complete", slog.Int("inserted", inserted), slog.Int("catalog_size", len(Catalog)))
	return inserted, nil
}
