// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/albumgateway/services/album/imageloader"
	"github.com/AleutianAI/albumgateway/services/album/schema"
	"github.com/AleutianAI/albumgateway/services/album/status"
	"github.com/AleutianAI/albumgateway/services/album/vectors"
)

const (
	// Weight of the "good" score in the combined quality score; the
	// remainder goes to "sharp".
	qualityGoodWeight = 0.25

	// Laplacian variance below this marks a frame as blurry.
	laplacianThreshold = 80.0
)

// Quality finds low-quality images in a batch.
//
// # Description
//
// Two detectors run concurrently and their results are unioned:
//
//   - The CLIP branch scores every image against the (positive, negative)
//     prompt pairs of the "sharp" and "good" fields. An image passes only
//     when sharp ≥ ThresholdSharp and the weighted combination
//     0.75·sharp + 0.25·good ≥ ThresholdCombined; everything else is low
//     quality.
//   - The Laplacian branch fetches each image, shrinks it to analysis size
//     and marks frames whose Laplacian variance falls below the blur
//     threshold.
//
// When the CLIP branch finds missing embeddings the Laplacian branch is
// cancelled and the pipeline answers embedding-required — there is no point
// paying for image fetches the response will discard. The union preserves
// request order.
func (p *Pipelines) Quality(ctx context.Context, req schema.ImageRequest) (code int, body schema.Body) {
	defer p.guard("quality", &code, &body)

	if len(req.Images) == 0 {
		return status.InvalidRequest, schema.NewBody(status.InvalidRequest, nil)
	}

	lapCtx, cancelLap := context.WithCancel(ctx)
	defer cancelLap()

	type lapResult struct {
		low map[string]bool
		err error
	}
	lapCh := make(chan lapResult, 1)
	go func() {
		low, err := p.laplacianLowQuality(lapCtx, req.Images)
		lapCh <- lapResult{low: low, err: err}
	}()

	rows, missing := p.fetchNormalized(ctx, req.Images)
	if len(missing) > 0 {
		cancelLap()
		<-lapCh
		return status.EmbeddingRequired, schema.NewBody(status.EmbeddingRequired, missing)
	}

	clipLow, err := p.clipLowQuality(ctx, rows, req.Images)
	if err != nil {
		cancelLap()
		<-lapCh
		p.deps.Logger.Error("quality clip branch failed", slog.String("error", err.Error()))
		return status.InternalError, schema.NewBody(status.InternalError, nil)
	}

	lap := <-lapCh
	if lap.err != nil {
		p.deps.Logger.Error("quality laplacian branch failed", slog.String("error", lap.err.Error()))
		return status.InternalError, schema.NewBody(status.InternalError, nil)
	}

	low := make([]string, 0, len(req.Images))
	for _, ref := range req.Images {
		if clipLow[ref] || lap.low[ref] {
			low = append(low, ref)
		}
	}
	return status.Success, schema.NewBody(status.Success, low)
}

// clipLowQuality runs the dual-threshold prompt filter and returns the set
// of failing refs.
func (p *Pipelines) clipLowQuality(ctx context.Context, rows [][]float32, refs []string) (map[string]bool, error) {
	sharpPair, ok := p.deps.Quality.PairFor("sharp")
	if !ok {
		return nil, fmt.Errorf("quality bank has no %q field", "sharp")
	}
	goodPair, ok := p.deps.Quality.PairFor("good")
	if !ok {
		return nil, fmt.Errorf("quality bank has no %q field", "good")
	}

	var sharp, good []float32
	if err := p.deps.Gate.Do(ctx, func() {
		sharp = vectors.PairSoftmaxPositive(rows, sharpPair)
		good = vectors.PairSoftmaxPositive(rows, goodPair)
	}); err != nil {
		return nil, err
	}

	low := make(map[string]bool)
	for i, ref := range refs {
		s := float64(sharp[i])
		combined := (1-qualityGoodWeight)*s + qualityGoodWeight*float64(good[i])
		if s < p.deps.ThresholdSharp || combined < p.deps.ThresholdCombined {
			low[ref] = true
		}
	}
	return low, nil
}

// laplacianLowQuality fetches the batch as grayscale frames and returns the
// set of refs whose sharpness variance is below the blur threshold.
func (p *Pipelines) laplacianLowQuality(ctx context.Context, refs []string) (map[string]bool, error) {
	imgs, err := p.deps.Images.FetchGray(ctx, refs)
	if err != nil {
		return nil, err
	}

	low := make(map[string]bool)
	err = p.deps.Gate.Do(ctx, func() {
		for i, img := range imgs {
			resized := imageloader.ResizeGrayArea(img, imageloader.LaplacianLongSide)
			if imageloader.LaplacianVariance(resized) < laplacianThreshold {
				low[refs[i]] = true
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return low, nil
}
