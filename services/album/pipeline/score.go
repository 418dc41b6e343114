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

	"github.com/AleutianAI/albumgateway/services/album/schema"
	"github.com/AleutianAI/albumgateway/services/album/status"
	"github.com/AleutianAI/albumgateway/services/album/vectors"
)

// Score computes highlight scores for images grouped by category.
//
// Embeddings for the union of all categories' images are fetched once; the
// regressor then scores each category's members. Categories and their
// images keep request order, and an image listed under two categories is
// scored under both.
func (p *Pipelines) Score(ctx context.Context, req schema.CategoryScoreRequest) (code int, body schema.Body) {
	defer p.guard("score", &code, &body)

	if len(req.Categories) == 0 {
		return status.InvalidRequest, schema.NewBody(status.InvalidRequest, nil)
	}

	var all []string
	for _, category := range req.Categories {
		all = append(all, category.Images...)
	}
	if len(all) == 0 {
		return status.InvalidRequest, schema.NewBody(status.InvalidRequest, nil)
	}

	rows, missing := p.fetchNormalized(ctx, all)
	if len(missing) > 0 {
		return status.EmbeddingRequired, schema.NewBody(status.EmbeddingRequired, missing)
	}

	byRef := make(map[string][]float32, len(all))
	for i, ref := range all {
		byRef[ref] = rows[i]
	}

	scored := make([]schema.ScoreCategory, 0, len(req.Categories))
	if err := p.deps.Gate.Do(ctx, func() {
		for _, category := range req.Categories {
			batch := make([][]float32, len(category.Images))
			for i, ref := range category.Images {
				batch[i] = byRef[ref]
			}
			scores := p.deps.Regressor.Scores(vectors.NormalizeRows(batch))

			images := make([]schema.ScoreImage, len(category.Images))
			for i, ref := range category.Images {
				images[i] = schema.ScoreImage{Image: ref, Score: scores[i]}
			}
			scored = append(scored, schema.ScoreCategory{Category: category.Category, Images: images})
		}
	}); err != nil {
		return status.InternalError, schema.NewBody(status.InternalError, nil)
	}

	return status.Success, schema.NewBody(status.Success, scored)
}
