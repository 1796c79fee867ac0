// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalizer

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

const (
	fuzzyMaxDistance    = 3
	fuzzyMaxRatio       = 0.35
	fuzzyConfidenceFloor = 0.6
)

// fuzzyMatch finds the dictionary key with the minimum Levenshtein distance
// to cleaned and accepts it if distance <= 3 and distance/max_len <= 0.35.
// Ties are broken by lexicographically smallest key, for determinism.
func fuzzyMatch(cleaned string, dict map[string]string) (canonical string, confidence float64, ok bool) {
	bestKey := ""
	bestDistance := -1

	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		d := levenshtein.ComputeDistance(cleaned, key)
		if bestDistance == -1 || d < bestDistance {
			bestDistance = d
			bestKey = key
		}
	}

	if bestDistance == -1 {
		return "", 0, false
	}

	maxLen := len(cleaned)
	if len(bestKey) > maxLen {
		maxLen = len(bestKey)
	}
	if maxLen == 0 {
		return "", 0, false
	}

	ratio := float64(bestDistance) / float64(maxLen)
	if bestDistance > fuzzyMaxDistance || ratio > fuzzyMaxRatio {
		return "", 0, false
	}

	conf := 1 - ratio
	if conf < fuzzyConfidenceFloor {
		conf = fuzzyConfidenceFloor
	}
	return dict[bestKey], conf, true
}
