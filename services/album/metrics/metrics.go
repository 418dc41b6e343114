// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Pipeline Execution
// =============================================================================

var (
	// pipelineRunsTotal counts pipeline executions by operation, ingress and
	// resulting status code.
	// Labels: operation (embedding, category, duplicate, quality, score,
	// people), ingress (http, kafka), status ("201", "400", "428", "500")
	pipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "album",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Total pipeline executions by operation, ingress and status",
	}, []string{"operation", "ingress", "status"})

	// pipelineDurationSeconds measures end-to-end pipeline latency, cache
	// reads and GPU calls included.
	// Labels: operation
	pipelineDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "album",
		Subsystem: "pipeline",
		Name:      "duration_seconds",
		Help:      "End-to-end pipeline latency including cache and GPU calls",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"operation"})

	// pipelineBatchSize tracks how many image references each run carries.
	// Labels: operation
	pipelineBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "album",
		Subsystem: "pipeline",
		Name:      "batch_size",
		Help:      "Image references per pipeline run",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"operation"})

	// cacheLookupsTotal counts embedding cache lookups by outcome.
	// Labels: outcome (hit, miss)
	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "album",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Embedding cache lookups by outcome",
	}, []string{"outcome"})
)

// RecordRun records one finished pipeline execution.
//
// Inputs:
//   - operation: Pipeline name.
//   - ingress: "http" or "kafka".
//   - status: Resulting application status code.
//   - batch: Number of image references in the request.
//   - durationSec: Run duration in seconds.
func RecordRun(operation, ingress string, status int, batch int, durationSec float64) {
	pipelineRunsTotal.WithLabelValues(operation, ingress, statusLabel(status)).Inc()
	pipelineDurationSeconds.WithLabelValues(operation).Observe(durationSec)
	pipelineBatchSize.WithLabelValues(operation).Observe(float64(batch))
}

// RecordCacheLookups records the outcome of a batch cache read.
func RecordCacheLookups(hits, misses int) {
	if hits > 0 {
		cacheLookupsTotal.WithLabelValues("hit").Add(float64(hits))
	}
	if misses > 0 {
		cacheLookupsTotal.WithLabelValues("miss").Add(float64(misses))
	}
}

func statusLabel(status int) string {
	switch status {
	case 201:
		return "201"
	case 400:
		return "400"
	case 403:
		return "403"
	case 428:
		return "428"
	case 500:
		return "500"
	default:
		return "other"
	}
}
