// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pubmed is a thin client over NCBI's E-utilities esearch
// endpoint: a small struct holding the HTTP client and base URL, one
// raw-JSON call per method, errors wrapped at the boundary rather than
// leaked as bare net/http failures.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/latisnere/suplementia/internal/apierrors"
)

const defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"

// rate limits per NCBI's published E-utilities policy: 3 req/s without an
// API key, 10 req/s with one.
const (
	rateNoKey  = 3
	rateWithKey = 10
)

type esearchResult struct {
	ESearchResult struct {
		Count string `json:"count"`
	} `json:"esearchresult"`
}

// Client queries PubMed's esearch endpoint for a study count, which the
// discovery worker uses to grade evidence strength.
//
// Thread Safety: safe for concurrent use; the limiter serializes outbound
// requests across all callers sharing this Client.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New constructs a Client. baseURL may be empty to use NCBI's default
// endpoint (tests override it with an httptest.Server URL). apiKey may be
// empty; its presence raises the rate limit from 3 to 10 req/s.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(rateNoKey)
	if apiKey != "" {
		limit = rate.Limit(rateWithKey)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// StudyCount returns the number of PubMed records matching term. A
// transport failure or a 5xx/429 response is reported as
// PUBMED_TRANSIENT (retryable by the caller's backoff policy); a 4xx
// other than 429, or a malformed response body, is PUBMED_PERMANENT.
func (c *Client) StudyCount(ctx context.Context, term string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("pubmed rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("retmode", "json")
	q.Set("term", term)
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create esearch request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, apierrors.New("pubmed.StudyCount", apierrors.KindPubMedTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, apierrors.New("pubmed.StudyCount", apierrors.KindPubMedTransient,
			fmt.Errorf("read esearch response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return 0, apierrors.New("pubmed.StudyCount", apierrors.KindPubMedTransient,
			fmt.Errorf("esearch returned %d: %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return 0, apierrors.New("pubmed.StudyCount", apierrors.KindPubMedPermanent,
			fmt.Errorf("esearch returned %d: %s", resp.StatusCode, string(body)))
	}

	var parsed esearchResult
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, apierrors.New("pubmed.StudyCount", apierrors.KindPubMedPermanent,
			fmt.Errorf("parse esearch response: %w", err))
	}

	var count int
	if _, err := fmt.Sscanf(parsed.ESearchResult.Count, "%d", &count); err != nil {
		return 0, apierrors.New("pubmed.StudyCount", apierrors.KindPubMedPermanent,
			fmt.Errorf("parse esearch count %q: %w", parsed.ESearchResult.Count, err))
	}

	c.logger.Debug("pubmed esearch", slog.String("term", term), slog.Int("count", count))
	return count, nil
}
