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
	"encoding/json"
	"fmt"
	"os"
)

// LoadDictionary reads a JSON object of {cleaned-variant: canonical-name}
// from path. Keys should already be in cleaned form (lowercase, no accents);
// callers that build a dictionary by hand should run clean() over their own
// keys first so dictionary lookups stay a pure map hit.
func LoadDictionary(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	var dict map[string]string
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	return dict, nil
}

// DefaultDictionary returns the built-in Spanish/English supplement
// dictionary used when DictionaryPath is unset or fails to load. It is
// immutable after construction: Normalizer never mutates the map it is
// given, and dictionaries are loaded once at startup rather than
// hot-reloaded.
//
// Entries cover three shapes:
//  1. Spanish/variant -> canonical English ("magnesio" -> "Magnesium").
//  2. English self-entries, so an already-canonical or already-title-cased
//     query resolves via the exact-match tier instead of falling through
//     to passthrough ("magnesium" -> "Magnesium").
//  3. Canonical multi-word/compound forms in their space-separated shape
//     ("vitamin d" -> "Vitamin D", "omega 3" -> "Omega-3"), which the
//     compound-normalization step reaches after collapsing hyphens.
func DefaultDictionary() map[string]string {
	return map[string]string{
		// Vitamins.
		"vitamina d":   "Vitamin D",
		"vitamina d3":  "Vitamin D",
		"vitamin d":    "Vitamin D",
		"vitamin d3":   "Vitamin D",
		"vitamina c":   "Vitamin C",
		"vitamin c":    "Vitamin C",
		"acido ascorbico": "Vitamin C",
		"vitamina b12": "Vitamin B12",
		"vitamin b12":  "Vitamin B12",
		"cobalamina":   "Vitamin B12",
		"vitamina a":   "Vitamin A",
		"vitamin a":    "Vitamin A",
		"vitamina e":   "Vitamin E",
		"vitamin e":    "Vitamin E",
		"vitamina k2":  "Vitamin K2",
		"vitamin k2":   "Vitamin K2",

		// Minerals.
		"magnesio":           "Magnesium",
		"magnesium":          "Magnesium",
		"glicinato de magnesio": "Magnesium Glycinate",
		"magnesium glycinate":   "Magnesium Glycinate",
		"citrato de magnesio":   "Magnesium Citrate",
		"magnesium citrate":     "Magnesium Citrate",
		"zinc":    "Zinc",
		"cinc":    "Zinc",
		"hierro":  "Iron",
		"iron":    "Iron",
		"calcio":  "Calcium",
		"calcium": "Calcium",
		"potasio": "Potassium",
		"potassium": "Potassium",
		"selenio": "Selenium",
		"selenium": "Selenium",

		// Fatty acids and compounds.
		"omega 3":     "Omega-3",
		"omega3":      "Omega-3",
		"aceite de pescado": "Omega-3",
		"fish oil":    "Omega-3",

		// Amino acids.
		"l carnitina":  "L-Carnitine",
		"l carnitine":  "L-Carnitine",
		"carnitina":    "L-Carnitine",
		"creatina":     "Creatine",
		"creatine":     "Creatine",
		"glutamina":    "Glutamine",
		"glutamine":    "Glutamine",

		// Herbal / other.
		"ashwagandha":  "Ashwagandha",
		"melatonina":   "Melatonin",
		"melatonin":    "Melatonin",
		"cafeina":      "Caffeine",
		"caffeine":     "Caffeine",
		"colageno":     "Collagen",
		"collagen":     "Collagen",
		"probioticos":  "Probiotics",
		"probiotics":   "Probiotics",
		"cuercetina":   "Quercetin",
		"quercetina":   "Quercetin",
		"quercetin":    "Quercetin",
		"curcuma":      "Curcumin",
		"curcumina":    "Curcumin",
		"curcumin":     "Curcumin",
	}
}
