// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the two-tier (L1 process-local, L2 durable)
// lookup cache in front of the vector store: a content hash as key,
// native TTL enforcement, nil-safe degrade-to-miss behavior when a tier
// is unavailable.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the cache key for a normalized canonical query: the
// first 128 bits (32 hex chars) of SHA256(lowercased canonical name).
// Truncating to 128 bits keeps keys short in both cache tiers while
// leaving collision probability astronomically below the threshold that
// matters for a cache (as opposed to a content-addressed store).
func Fingerprint(canonicalQuery string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(canonicalQuery)))
	return hex.EncodeToString(sum[:16])
}
