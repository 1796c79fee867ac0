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
	"strings"
)

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func generateID(seq int) string {
	return fmt.Sprintf("supp-%06d", seq)
}

func errInvalidEmbeddingDim(got int) error {
	return fmt.Errorf("embedding has %d dimensions, want 384", got)
}

func errDuplicateCanonicalName(name string) error {
	return fmt.Errorf("canonical name %q already exists", name)
}
