// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	wvtgrpc "github.com/weaviate/weaviate/entities/models"

	"github.com/latisnere/suplementia/internal/apierrors"
)

// supplementClass is the Weaviate class backing every Supplement row.
// Cosine distance is configured at class-creation time (by SetupSchema
// below) so that ANN queries here read as plain similarity thresholds.
const supplementClass = "Supplement"

// WeaviateVectorStore is the production VectorStore, implemented against
// weaviate-go-client/v5's REST client: a thin struct holding the client
// handle plus a request timeout, translating domain errors at the
// boundary.
type WeaviateVectorStore struct {
	client  *weaviate.Client
	timeout time.Duration
}

// NewWeaviateVectorStore dials the Weaviate instance at url (host:port,
// scheme "http").
func NewWeaviateVectorStore(host string, timeout time.Duration) (*WeaviateVectorStore, error) {
	cfg := weaviate.Config{
		Host:   host,
		Scheme: "http",
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateVectorStore{client: client, timeout: timeout}, nil
}

// SetupSchema idempotently creates the Supplement class with cosine
// distance if it does not already exist. Called once at startup.
func (w *WeaviateVectorStore) SetupSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	exists, err := w.client.Schema().ClassExistenceChecker().WithClassName(supplementClass).Do(ctx)
	if err != nil {
		return apierrors.New("vectorstore.SetupSchema", apierrors.KindStoreUnavailable, err)
	}
	if exists {
		return nil
	}

	distanceCosine := "cosine"
	class := &wvtgrpc.Class{
		Class:      supplementClass,
		Vectorizer: "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": distanceCosine,
		},
		Properties: []*wvtgrpc.Property{
			{Name: "canonicalName", DataType: []string{"text"}},
			{Name: "aliases", DataType: []string{"text[]"}},
			{Name: "evidenceGrade", DataType: []string{"text"}},
			{Name: "studyCount", DataType: []string{"int"}},
			{Name: "category", DataType: []string{"text"}},
			{Name: "firstSeen", DataType: []string{"date"}},
			{Name: "createdAt", DataType: []string{"date"}},
			{Name: "updatedAt", DataType: []string{"date"}},
		},
	}
	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return apierrors.New("vectorstore.SetupSchema", apierrors.KindStoreUnavailable, err)
	}
	return nil
}

func (w *WeaviateVectorStore) GetByCanonicalName(name string) (*Supplement, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	where := filters.Where().
		WithPath([]string{"canonicalName"}).
		WithOperator(filters.Equal).
		WithValueText(name)

	fields := []graphql.Field{
		{Name: "canonicalName"},
		{Name: "aliases"},
		{Name: "evidenceGrade"},
		{Name: "studyCount"},
		{Name: "category"},
		{Name: "firstSeen"},
		{Name: "createdAt"},
		{Name: "updatedAt"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "vector"}}},
	}

	resp, err := w.client.GraphQL().Get().
		WithClassName(supplementClass).
		WithFields(fields...).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, apierrors.New("vectorstore.GetByCanonicalName", apierrors.KindStoreUnavailable, err)
	}
	if len(resp.Errors) > 0 {
		return nil, apierrors.New("vectorstore.GetByCanonicalName", apierrors.KindStoreUnavailable,
			fmt.Errorf("graphql errors: %v", resp.Errors))
	}

	rows := extractGetRows(resp, supplementClass)
	if len(rows) == 0 {
		return nil, nil
	}
	s, err := rowToSupplement(rows[0])
	if err != nil {
		return nil, apierrors.New("vectorstore.GetByCanonicalName", apierrors.KindStoreUnavailable, err)
	}
	return s, nil
}

func (w *WeaviateVectorStore) ANN(queryVec []float32, k int, minSimilarity float64) ([]ScoredSupplement, error) {
	if len(queryVec) != 384 {
		return nil, apierrors.New("vectorstore.ANN", apierrors.KindInvalidEmbedding,
			errInvalidEmbeddingDim(len(queryVec)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	// Weaviate's nearVector "certainty" for cosine-indexed classes is
	// (1 + cosine_similarity) / 2; invert the caller's similarity floor
	// to the equivalent certainty floor.
	minCertainty := (1 + minSimilarity) / 2
	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVec).
		WithCertainty(float32(minCertainty))

	fields := []graphql.Field{
		{Name: "canonicalName"},
		{Name: "aliases"},
		{Name: "evidenceGrade"},
		{Name: "studyCount"},
		{Name: "category"},
		{Name: "firstSeen"},
		{Name: "createdAt"},
		{Name: "updatedAt"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "vector"}, {Name: "certainty"}}},
	}

	resp, err := w.client.GraphQL().Get().
		WithClassName(supplementClass).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, apierrors.New("vectorstore.ANN", apierrors.KindStoreUnavailable, err)
	}
	if len(resp.Errors) > 0 {
		return nil, apierrors.New("vectorstore.ANN", apierrors.KindStoreUnavailable,
			fmt.Errorf("graphql errors: %v", resp.Errors))
	}

	rows := extractGetRows(resp, supplementClass)
	out := make([]ScoredSupplement, 0, len(rows))
	for _, row := range rows {
		s, err := rowToSupplement(row)
		if err != nil {
			continue
		}
		sim := rowCertaintyToSimilarity(row)
		if sim < minSimilarity {
			continue
		}
		out = append(out, ScoredSupplement{Supplement: *s, Similarity: sim})
	}

	sort.SliceStable(out, func(i, j int) bool {
		si := math.Round(out[i].Similarity*1000) / 1000
		sj := math.Round(out[j].Similarity*1000) / 1000
		if si != sj {
			return si > sj
		}
		return out[i].Supplement.ID < out[j].Supplement.ID
	})
	return out, nil
}

func (w *WeaviateVectorStore) Insert(s Supplement) (string, error) {
	if len(s.Embedding) != 384 {
		return "", apierrors.New("vectorstore.Insert", apierrors.KindInvalidEmbedding,
			errInvalidEmbeddingDim(len(s.Embedding)))
	}

	existing, err := w.GetByCanonicalName(s.CanonicalName)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", apierrors.New("vectorstore.Insert", apierrors.KindDuplicate,
			errDuplicateCanonicalName(s.CanonicalName))
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	props := map[string]interface{}{
		"canonicalName": s.CanonicalName,
		"aliases":       s.Aliases,
		"evidenceGrade": s.Metadata.EvidenceGrade,
		"studyCount":    s.Metadata.StudyCount,
		"category":      s.Metadata.Category,
		"firstSeen":     s.Metadata.FirstSeen.Format(time.RFC3339),
		"createdAt":     s.CreatedAt.Format(time.RFC3339),
		"updatedAt":     s.UpdatedAt.Format(time.RFC3339),
	}

	creator := w.client.Data().Creator().
		WithClassName(supplementClass).
		WithProperties(props).
		WithVector(s.Embedding)
	if s.ID != "" {
		creator = creator.WithID(s.ID)
	}

	obj, err := creator.Do(ctx)
	if err != nil {
		return "", apierrors.New("vectorstore.Insert", apierrors.KindStoreUnavailable, err)
	}
	return string(obj.Object.ID), nil
}

func (w *WeaviateVectorStore) Count() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	resp, err := w.client.GraphQL().Aggregate().
		WithClassName(supplementClass).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, apierrors.New("vectorstore.Count", apierrors.KindStoreUnavailable, err)
	}
	return extractAggregateCount(resp, supplementClass), nil
}
