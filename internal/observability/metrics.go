// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability centralizes the structured logging, Prometheus
// metrics, and OTel tracing setup shared by every component, all
// registered at package level via promauto.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics. Auto-registered via promauto so callers
// never need to wire an explicit registry.
var (
	// SearchLatency measures end-to-end orchestrator latency per outcome.
	//
	// Labels:
	//   - outcome: "found", "processing", "invalid", "unavailable"
	SearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "suplementia",
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "End-to-end orchestrator latency in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	// CacheHitsTotal counts lookups by tier and result.
	//
	// Labels:
	//   - tier: "l1", "l2"
	//   - result: "hit", "miss"
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "suplementia",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)

	// ErrorsTotal counts errors by kind and component.
	//
	// Labels:
	//   - kind: one of the apierrors.Kind values
	//   - component: originating component name
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "suplementia",
			Subsystem: "errors",
			Name:      "total",
			Help:      "Errors by kind and originating component.",
		},
		[]string{"kind", "component"},
	)

	// DiscoveryBacklog reports the current count of PENDING discovery jobs.
	DiscoveryBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "suplementia",
			Subsystem: "discovery",
			Name:      "backlog_pending",
			Help:      "Number of discovery jobs currently in state PENDING.",
		},
	)

	// DiscoveryJobsTotal counts discovery job terminal outcomes.
	//
	// Labels:
	//   - outcome: "succeeded", "failed", "rejected_no_evidence"
	DiscoveryJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "suplementia",
			Subsystem: "discovery",
			Name:      "jobs_total",
			Help:      "Discovery jobs by terminal outcome.",
		},
		[]string{"outcome"},
	)

	// TierPopulation reports the current row/entry count per tier.
	//
	// Labels:
	//   - tier: "l1", "l2", "vector"
	TierPopulation = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "suplementia",
			Subsystem: "store",
			Name:      "population",
			Help:      "Current entry count per storage tier.",
		},
		[]string{"tier"},
	)
)

// ObserveSearch records SearchLatency for a completed orchestrator run.
func ObserveSearch(outcome string, d time.Duration) {
	SearchLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveCacheLookup records a cache lookup outcome for the given tier.
func ObserveCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheHitsTotal.WithLabelValues(tier, result).Inc()
}

// ObserveError increments ErrorsTotal for the given kind/component pair.
func ObserveError(kind, component string) {
	ErrorsTotal.WithLabelValues(kind, component).Inc()
}
