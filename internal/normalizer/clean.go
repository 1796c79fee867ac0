// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalizer turns raw, noisy user input into a canonical English
// supplement name plus a confidence score, per the pipeline described in
// the search service spec: clean, exact dictionary, fuzzy, compound,
// optional LLM fallback, title-case passthrough.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	minCleanedLen = 1
	maxCleanedLen = 200
)

// clean trims, collapses internal whitespace, lowercases, and strips
// diacritics via Unicode NFD decomposition. It is pure: identical input
// always yields identical output, and it never reads a mutable table.
//
// Returns ok=false if the cleaned length falls outside [1, 200].
func clean(raw string) (cleaned string, ok bool) {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	collapsed := collapseWhitespace(lowered)
	stripped := stripDiacritics(collapsed)

	n := len([]rune(stripped))
	if n < minCleanedLen || n > maxCleanedLen {
		return "", false
	}
	return stripped, true
}

// collapseWhitespace replaces any run of whitespace with a single space.
func collapseWhitespace(s string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// stripDiacritics decomposes s into NFD form and drops combining marks
// (Unicode category Mn), turning e.g. "vitamín" into "vitamin".
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
