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

import "strings"

// buildCompoundIndex derives a separator-insensitive index from dict, so
// "omega-3", "omega 3", and "omega3" all resolve to the same canonical
// value regardless of which hyphenation/spacing variant the dictionary
// happened to list.
func buildCompoundIndex(dict map[string]string) map[string]string {
	idx := make(map[string]string, len(dict))
	for key, canonical := range dict {
		idx[stripSeparators(key)] = canonical
	}
	return idx
}

// stripSeparators removes spaces and hyphens so compound forms compare
// equal regardless of how they were joined.
func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// compoundMatch looks up cleaned in the separator-insensitive index built
// from the dictionary. Confidence is 1.0: like the exact-match tier, this
// is a deterministic table lookup, just insensitive to hyphenation.
func compoundMatch(cleaned string, compoundIndex map[string]string) (canonical string, ok bool) {
	canonical, ok = compoundIndex[stripSeparators(cleaned)]
	return canonical, ok
}
