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
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Confidence tiers, in monotone descending order: exact/compound > fuzzy
// > LLM fallback > title-case passthrough.
const (
	ConfidenceExact       = 1.0
	ConfidenceLLM         = 0.7
	ConfidencePassthrough = 0.3

	// InvalidQueryThreshold is the confidence floor below which the
	// orchestrator must reject the query as INVALID_QUERY.
	InvalidQueryThreshold = 0.3
)

// Result is the output of Normalize: a canonical form plus a confidence in
// [0, 1].
type Result struct {
	Canonical  string
	Confidence float64
	// Source records which pipeline stage produced Canonical, for logging
	// and metrics only; it carries no behavioral meaning to callers.
	Source string
}

// LLMFallback is the minimal capability the normalizer needs from an LLM
// client: normalize cleaned text into a canonical name, or fail. The
// concrete implementation (internal/llmfallback) owns the HTTP call and the
// "any shape other than {normalized: string} is a failure" rule; this
// package only owns the time budget and fallback ordering.
type LLMFallback interface {
	Normalize(ctx context.Context, cleaned string) (string, error)
}

// Normalizer runs the clean -> exact -> fuzzy -> compound -> LLM ->
// passthrough pipeline. All tables are immutable after New(); concurrent
// Normalize calls are safe.
type Normalizer struct {
	dict          map[string]string
	compoundIndex map[string]string
	llm           LLMFallback
	llmTimeout    time.Duration
	titleCaser    cases.Caser
	logger        *slog.Logger
}

// Option configures a Normalizer at construction time.
type Option func(*Normalizer)

// WithLLMFallback installs the optional, time-boxed LLM fallback stage. If
// never called, the pipeline skips step 5 and falls straight through to
// title-case passthrough on every exact/fuzzy/compound miss.
func WithLLMFallback(llm LLMFallback, timeout time.Duration) Option {
	return func(n *Normalizer) {
		n.llm = llm
		n.llmTimeout = timeout
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = logger }
}

// New builds a Normalizer over the given immutable dictionary.
func New(dict map[string]string, opts ...Option) *Normalizer {
	n := &Normalizer{
		dict:          dict,
		compoundIndex: buildCompoundIndex(dict),
		llmTimeout:    5 * time.Second,
		titleCaser:    cases.Title(language.English),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize runs the full pipeline against raw input, short-circuiting on
// the first stage that produces a match.
func (n *Normalizer) Normalize(ctx context.Context, raw string) Result {
	cleaned, ok := clean(raw)
	if !ok {
		return Result{Canonical: "", Confidence: 0, Source: "invalid"}
	}

	// Idempotence: running Normalize on an already-canonical string must
	// reproduce it, so re-clean before every lookup, never the raw string.
	if canonical, ok := n.dict[cleaned]; ok {
		return Result{Canonical: canonical, Confidence: ConfidenceExact, Source: "exact"}
	}

	if canonical, conf, ok := fuzzyMatch(cleaned, n.dict); ok {
		return Result{Canonical: canonical, Confidence: conf, Source: "fuzzy"}
	}

	if canonical, ok := compoundMatch(cleaned, n.compoundIndex); ok {
		return Result{Canonical: canonical, Confidence: ConfidenceExact, Source: "compound"}
	}

	if n.llm != nil {
		llmCtx, cancel := context.WithTimeout(ctx, n.llmTimeout)
		canonical, err := n.llm.Normalize(llmCtx, cleaned)
		cancel()
		if err == nil && canonical != "" {
			return Result{Canonical: canonical, Confidence: ConfidenceLLM, Source: "llm"}
		}
		if err != nil {
			n.logger.Warn("normalizer: LLM fallback failed, using passthrough",
				slog.String("error", err.Error()))
		}
	}

	return Result{Canonical: titleCase(n.titleCaser, cleaned), Confidence: ConfidencePassthrough, Source: "passthrough"}
}

// titleCase capitalizes cleaned per-word using the given caser.
func titleCase(caser cases.Caser, cleaned string) string {
	return caser.String(strings.Join(strings.Fields(cleaned), " "))
}
