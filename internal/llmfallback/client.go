// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llmfallback implements normalizer.LLMFallback with a single
// bounded-timeout call to an external LLM API, trimmed to the one call
// shape this service needs: "canonicalize this term, and nothing else."
package llmfallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicAPIVersion = "2023-06-01"

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// normalizeResponse is the strict shape the prompt demands the model
// reply with. Anything that doesn't parse into exactly this shape is
// treated as a failure, per the "garbage in, garbage never emitted"
// normalization contract.
type normalizeResponse struct {
	Normalized string `json:"normalized"`
}

// Client is a single-purpose LLM client satisfying
// normalizer.LLMFallback. One call, one hard timeout, one strict
// response shape.
type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// New constructs a Client. baseURL may be empty to use Anthropic's
// default messages endpoint.
func New(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1/messages"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Normalize asks the model for the canonical English name of cleaned,
// enforcing the caller's timeout via ctx. A response that doesn't decode
// to {"normalized": "..."} exactly is treated as an error so the
// normalizer falls through to title-case passthrough rather than trust
// free-form text.
func (c *Client) Normalize(ctx context.Context, cleaned string) (string, error) {
	prompt := fmt.Sprintf(
		"Respond with strict JSON only: {\"normalized\": \"<canonical English supplement name>\"}. "+
			"No other text. Term: %q", cleaned)

	reqPayload := chatRequest{
		Model:     c.model,
		MaxTokens: 128,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}
	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("marshal llm fallback request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create llm fallback request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm fallback HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm fallback response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm fallback returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal llm fallback response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm fallback API error: %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("llm fallback returned no text content")
	}

	var norm normalizeResponse
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&norm); err != nil {
		return "", fmt.Errorf("llm fallback did not return strict JSON: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("llm fallback returned content after the JSON object")
	}
	if norm.Normalized == "" {
		return "", fmt.Errorf("llm fallback returned empty normalized field")
	}
	return norm.Normalized, nil
}
