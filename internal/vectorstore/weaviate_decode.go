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
	"fmt"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// extractGetRows walks the Get{ <class> [...] } shape the GraphQL client
// hands back as untyped map[string]interface{} and returns the rows for
// className.
func extractGetRows(resp *graphql.GraphQLResponse, className string) []map[string]interface{} {
	getField, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	rawRows, ok := getField[className].([]interface{})
	if !ok {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(rawRows))
	for _, r := range rawRows {
		if row, ok := r.(map[string]interface{}); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func extractAggregateCount(resp *graphql.GraphQLResponse, className string) int {
	agg, ok := resp.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	rows, ok := agg[className].([]interface{})
	if !ok || len(rows) == 0 {
		return 0
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0
	}
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0
	}
	return int(count)
}

func rowToSupplement(row map[string]interface{}) (*Supplement, error) {
	additional, _ := row["_additional"].(map[string]interface{})
	id, _ := additional["id"].(string)

	s := &Supplement{
		ID:            id,
		CanonicalName: stringField(row, "canonicalName"),
		Aliases:       stringSliceField(row, "aliases"),
		Embedding:     vectorField(additional),
		Metadata: Metadata{
			EvidenceGrade: stringField(row, "evidenceGrade"),
			StudyCount:    intField(row, "studyCount"),
			Category:      stringField(row, "category"),
			FirstSeen:     timeField(row, "firstSeen"),
		},
		CreatedAt: timeField(row, "createdAt"),
		UpdatedAt: timeField(row, "updatedAt"),
	}
	if s.CanonicalName == "" {
		return nil, fmt.Errorf("row missing canonicalName")
	}
	return s, nil
}

func rowCertaintyToSimilarity(row map[string]interface{}) float64 {
	additional, _ := row["_additional"].(map[string]interface{})
	certainty, _ := additional["certainty"].(float64)
	return 2*certainty - 1
}

func stringField(row map[string]interface{}, key string) string {
	v, _ := row[key].(string)
	return v
}

func intField(row map[string]interface{}, key string) int {
	v, ok := row[key].(float64)
	if !ok {
		return 0
	}
	return int(v)
}

func timeField(row map[string]interface{}, key string) time.Time {
	v, ok := row[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func stringSliceField(row map[string]interface{}, key string) []string {
	raw, ok := row[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func vectorField(additional map[string]interface{}) []float32 {
	raw, ok := additional["vector"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		if f, ok := v.(float64); ok {
			out[i] = float32(f)
		}
	}
	return out
}
