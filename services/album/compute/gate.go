// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compute bounds CPU-heavy work (similarity matrices, clustering,
// Laplacian filtering) with one process-wide budget so a burst of large
// batches cannot starve the request loops.
package compute

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the process-wide budget for CPU-bound transforms.
const DefaultWorkers = 8

// Gate serializes access to the compute budget.
//
// # Thread Safety
//
// Safe for concurrent use.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate builds a Gate with the given worker budget; values <= 0 fall back
// to DefaultWorkers.
func NewGate(workers int64) *Gate {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Gate{sem: semaphore.NewWeighted(workers)}
}

// Do runs fn under the budget. It blocks until a slot frees up or ctx is
// done; in the latter case fn never runs and the context error is returned.
func (g *Gate) Do(ctx context.Context, fn func()) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	fn()
	return nil
}
