// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the typed configuration surface for the supplement
// search service. Every field is loaded once at startup from an environment
// variable with a documented default; nothing is hot-reloaded.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full configuration surface enumerated in the service spec.
//
// Description:
//
//	Loaded once via Load() at process startup. All fields have safe defaults
//	so the service is runnable with zero environment variables set.
//
// Thread Safety: Config is a value type. Safe to copy and share after Load().
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for a vector hit
	// to count as "found" rather than triggering discovery.
	// Env: SIMILARITY_THRESHOLD (default: 0.85)
	SimilarityThreshold float64

	// CacheTTL is the lifetime of an L1/L2 cache entry.
	// Env: CACHE_TTL_DAYS (default: 7 days)
	CacheTTL time.Duration

	// RequestTimeout bounds the whole search pipeline: normalize, cache
	// lookups, embed, ANN.
	// Env: REQUEST_TIMEOUT_MS (default: 30000)
	RequestTimeout time.Duration

	// LLMTimeout is the hard ceiling on the normalizer's LLM fallback call.
	// Env: LLM_TIMEOUT_MS (default: 5000)
	LLMTimeout time.Duration

	// WorkerMaxAttempts is the number of PubMed/store attempts before a
	// discovery job transitions to FAILED.
	// Env: WORKER_MAX_ATTEMPTS (default: 3)
	WorkerMaxAttempts int

	// BacklogAlertThreshold is the PENDING job count above which
	// observability raises a high-severity signal.
	// Env: BACKLOG_ALERT_THRESHOLD (default: 100)
	BacklogAlertThreshold int

	// EvidenceStrong is the minimum PubMed study count for grade A.
	// Env: EVIDENCE_STRONG_THRESHOLD (default: 21)
	EvidenceStrong int

	// EvidenceModerate is the minimum PubMed study count for grade C.
	// Env: EVIDENCE_MODERATE_THRESHOLD (default: 5)
	EvidenceModerate int

	// EvidenceLow is the minimum PubMed study count for grade E.
	// Env: EVIDENCE_LOW_THRESHOLD (default: 1)
	EvidenceLow int

	// EmbeddingDim is fixed at 384; present here only so callers never
	// hardcode the literal.
	// Env: EMBEDDING_DIM (default: 384, changing it is unsupported)
	EmbeddingDim int

	// DictionaryPath points at the JSON Spanish/variant -> English map.
	// Env: DICTIONARY_PATH (default: "./internal/normalizer/testdata/dictionary.json")
	DictionaryPath string

	// ModelArtifactPath is unused by the Ollama-compatible embedding backend,
	// kept for future local-model backends that load weights from disk.
	// Env: MODEL_ARTIFACT_PATH (default: "")
	ModelArtifactPath string

	// EmbeddingServiceURL is the Ollama-compatible /api/embed endpoint.
	// Env: EMBEDDING_SERVICE_URL (default: "http://localhost:11434/api/embed")
	EmbeddingServiceURL string

	// EmbeddingModel is the model name passed to the embedding endpoint.
	// Env: EMBEDDING_MODEL (default: "nomic-embed-text-v2-moe")
	EmbeddingModel string

	// VectorStoreURL is the Weaviate endpoint. Empty disables Weaviate and
	// falls back to the embedded in-memory HNSW store.
	// Env: VECTOR_STORE_URL (default: "")
	VectorStoreURL string

	// BadgerPath is the on-disk directory for the L2 cache and discovery
	// queue BadgerDB instance.
	// Env: BADGER_PATH (default: "./data/badger")
	BadgerPath string

	// NATSURL is the discovery-stream broker address. Empty starts an
	// embedded in-process NATS server instead, so the service has no
	// external broker dependency by default.
	// Env: NATS_URL (default: "")
	NATSURL string

	// PubMedBaseURL is the NCBI E-utilities esearch endpoint URL.
	// Env: PUBMED_BASE_URL (default: "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi")
	PubMedBaseURL string

	// PubMedAPIKey, when set, raises the PubMed rate limit from 3req/s to
	// 10req/s.
	// Env: PUBMED_API_KEY (default: "")
	PubMedAPIKey string

	// DiscoveryRetention is how long terminal DiscoveryJob rows are kept.
	// Env: DISCOVERY_RETENTION_DAYS (default: 30 days)
	DiscoveryRetention time.Duration

	// ListenAddr is the gin HTTP listen address.
	// Env: LISTEN_ADDR (default: ":8080")
	ListenAddr string

	// LLMAPIKey authenticates the normalizer's LLM fallback call. Empty
	// disables the fallback stage entirely (pipeline falls through to
	// title-case passthrough on every miss).
	// Env: LLM_API_KEY (default: "")
	LLMAPIKey string

	// LLMModel is the model name passed to the LLM fallback endpoint.
	// Env: LLM_MODEL (default: "claude-haiku-4-5")
	LLMModel string
}

// Default returns the configuration with every documented default applied.
func Default() Config {
	return Config{
		SimilarityThreshold:   0.85,
		CacheTTL:              7 * 24 * time.Hour,
		RequestTimeout:        30 * time.Second,
		LLMTimeout:            5 * time.Second,
		WorkerMaxAttempts:     3,
		BacklogAlertThreshold: 100,
		EvidenceStrong:        21,
		EvidenceModerate:      5,
		EvidenceLow:           1,
		EmbeddingDim:          384,
		DictionaryPath:        "./internal/normalizer/testdata/dictionary.json",
		ModelArtifactPath:     "",
		EmbeddingServiceURL:   "http://localhost:11434/api/embed",
		EmbeddingModel:        "nomic-embed-text-v2-moe",
		VectorStoreURL:        "",
		BadgerPath:            "./data/badger",
		NATSURL:               "",
		PubMedBaseURL:         "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi",
		PubMedAPIKey:          "",
		DiscoveryRetention:    30 * 24 * time.Hour,
		ListenAddr:            ":8080",
		LLMAPIKey:             "",
		LLMModel:              "claude-haiku-4-5",
	}
}

// Load reads configuration from environment variables, falling back to
// Default() for anything unset. Returns an error only if a set variable
// cannot be parsed into its expected type.
func Load() (Config, error) {
	cfg := Default()

	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse SIMILARITY_THRESHOLD: %w", err)
		}
		cfg.SimilarityThreshold = f
	}
	if v := os.Getenv("CACHE_TTL_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse CACHE_TTL_DAYS: %w", err)
		}
		cfg.CacheTTL = time.Duration(days) * 24 * time.Hour
	}
	if v := os.Getenv("REQUEST_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse REQUEST_TIMEOUT_MS: %w", err)
		}
		cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("LLM_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse LLM_TIMEOUT_MS: %w", err)
		}
		cfg.LLMTimeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("WORKER_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse WORKER_MAX_ATTEMPTS: %w", err)
		}
		cfg.WorkerMaxAttempts = n
	}
	if v := os.Getenv("BACKLOG_ALERT_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse BACKLOG_ALERT_THRESHOLD: %w", err)
		}
		cfg.BacklogAlertThreshold = n
	}
	if v := os.Getenv("EVIDENCE_STRONG_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse EVIDENCE_STRONG_THRESHOLD: %w", err)
		}
		cfg.EvidenceStrong = n
	}
	if v := os.Getenv("EVIDENCE_MODERATE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse EVIDENCE_MODERATE_THRESHOLD: %w", err)
		}
		cfg.EvidenceModerate = n
	}
	if v := os.Getenv("EVIDENCE_LOW_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse EVIDENCE_LOW_THRESHOLD: %w", err)
		}
		cfg.EvidenceLow = n
	}
	if v := os.Getenv("EMBEDDING_DIM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse EMBEDDING_DIM: %w", err)
		}
		cfg.EmbeddingDim = n
	}
	if v := os.Getenv("DICTIONARY_PATH"); v != "" {
		cfg.DictionaryPath = v
	}
	if v := os.Getenv("MODEL_ARTIFACT_PATH"); v != "" {
		cfg.ModelArtifactPath = v
	}
	if v := os.Getenv("EMBEDDING_SERVICE_URL"); v != "" {
		cfg.EmbeddingServiceURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("VECTOR_STORE_URL"); v != "" {
		cfg.VectorStoreURL = v
	}
	if v := os.Getenv("BADGER_PATH"); v != "" {
		cfg.BadgerPath = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("PUBMED_BASE_URL"); v != "" {
		cfg.PubMedBaseURL = v
	}
	if v := os.Getenv("PUBMED_API_KEY"); v != "" {
		cfg.PubMedAPIKey = v
	}
	if v := os.Getenv("DISCOVERY_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DISCOVERY_RETENTION_DAYS: %w", err)
		}
		cfg.DiscoveryRetention = time.Duration(days) * 24 * time.Hour
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}

	return cfg, nil
}
