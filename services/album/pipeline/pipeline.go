// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline implements the six album operations shared by the HTTP
// and Kafka ingress surfaces.
//
// Every pipeline is a pure request-to-response function: it returns an
// application status code plus a response body and never an error. Failures
// are encoded in the status code so both surfaces serialize the same
// envelope. Panics are recovered into an internal-error response — a bad
// batch must never take down a consumer loop.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"

	"github.com/AleutianAI/albumgateway/services/album/cache"
	"github.com/AleutianAI/albumgateway/services/album/compute"
	"github.com/AleutianAI/albumgateway/services/album/features"
	"github.com/AleutianAI/albumgateway/services/album/metrics"
	"github.com/AleutianAI/albumgateway/services/album/schema"
	"github.com/AleutianAI/albumgateway/services/album/status"
	"github.com/AleutianAI/albumgateway/services/album/vectors"
)

// GPU is the slice of the inference client the pipelines need.
type GPU interface {
	Embeddings(ctx context.Context, refs []string) (map[string][]float32, error)
	PeopleClusters(ctx context.Context, refs []string) ([]schema.PeopleCluster, error)
}

// ImageSource fetches decoded grayscale frames for the sharpness filter.
type ImageSource interface {
	FetchGray(ctx context.Context, refs []string) ([]*image.Gray, error)
}

// Deps wires the pipelines to their collaborators. All fields are required
// unless noted.
type Deps struct {
	Cache     cache.Store
	GPU       GPU
	Images    ImageSource
	Category  *features.CategoryBank
	Quality   *features.QualityBank
	Regressor *features.Regressor
	Gate      *compute.Gate

	// Dim is the embedding dimension of the configured model. Cached rows
	// of any other length are treated as cache misses. Zero disables the
	// check.
	Dim int

	// TagBoosts optionally scales low-confidence similarity scores for
	// named tags before top-k selection. Empty means no boosting.
	TagBoosts map[string]float32

	// Model-dependent quality thresholds; see DefaultThresholds.
	ThresholdSharp    float64
	ThresholdCombined float64

	Logger *slog.Logger
}

// Pipelines executes the album operations.
//
// # Thread Safety
//
// Safe for concurrent use: all mutable state lives in the request.
type Pipelines struct {
	deps Deps
}

// New validates deps and builds the Pipelines.
func New(deps Deps) (*Pipelines, error) {
	if deps.Cache == nil || deps.GPU == nil || deps.Images == nil {
		return nil, fmt.Errorf("pipeline: cache, gpu and image source are required")
	}
	if deps.Category == nil || deps.Quality == nil || deps.Regressor == nil {
		return nil, fmt.Errorf("pipeline: feature banks and regressor are required")
	}
	if deps.Gate == nil {
		deps.Gate = compute.NewGate(compute.DefaultWorkers)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ThresholdSharp == 0 || deps.ThresholdCombined == 0 {
		return nil, fmt.Errorf("pipeline: quality thresholds are required")
	}
	return &Pipelines{deps: deps}, nil
}

// DefaultThresholds returns the (sharp, combined) quality thresholds for a
// CLIP model name. The larger model scores slightly lower on the same
// prompts, so its cutoffs sit a few millis below the base model's.
func DefaultThresholds(modelName string) (sharp, combined float64) {
	if modelName == "ViT-L/14" {
		return 0.483, 0.486
	}
	return 0.488, 0.490
}

// guard recovers a pipeline panic into an internal-error response.
func (p *Pipelines) guard(op string, code *int, body *schema.Body) {
	if r := recover(); r != nil {
		p.deps.Logger.Error("pipeline panic",
			slog.String("operation", op),
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())))
		*code = status.InternalError
		*body = schema.NewBody(status.InternalError, nil)
	}
}

// fetchNormalized loads cached embeddings for refs in input order and
// unit-normalizes them. Cached rows whose length does not match the
// configured model dimension count as misses: a stale entry written under a
// different model must force re-embedding, not a silent truncation further
// down. When any ref has no usable embedding the second return lists the
// missing refs (input order) and rows is nil — the caller responds with an
// embedding-required status.
func (p *Pipelines) fetchNormalized(ctx context.Context, refs []string) (rows [][]float32, missing []string) {
	vecs, _ := p.deps.Cache.GetMany(ctx, refs)
	for i, vec := range vecs {
		if vec == nil {
			missing = append(missing, refs[i])
			continue
		}
		if p.deps.Dim > 0 && len(vec) != p.deps.Dim {
			p.deps.Logger.Warn("cached embedding has wrong dimension",
				slog.String("ref", refs[i]),
				slog.Int("got", len(vec)),
				slog.Int("want", p.deps.Dim))
			vecs[i] = nil
			missing = append(missing, refs[i])
		}
	}
	metrics.RecordCacheLookups(len(refs)-len(missing), len(missing))
	if len(missing) > 0 {
		return nil, missing
	}
	return vectors.NormalizeRows(vecs), nil
}
