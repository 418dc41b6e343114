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

// Near-duplicate grouping over cached embeddings: two images belong
// together when their cosine distance is within duplicateEps, and a group
// needs at least duplicateMinSamples members.
const (
	duplicateEps        = 0.1
	duplicateMinSamples = 2
)

// Duplicate groups near-identical images by density clustering their cached
// embeddings. Singletons are dropped; groups keep the first-seen order of
// their earliest member, members keep request order.
func (p *Pipelines) Duplicate(ctx context.Context, req schema.ImageRequest) (code int, body schema.Body) {
	defer p.guard("duplicate", &code, &body)

	if len(req.Images) == 0 {
		return status.InvalidRequest, schema.NewBody(status.InvalidRequest, nil)
	}

	rows, missing := p.fetchNormalized(ctx, req.Images)
	if len(missing) > 0 {
		return status.EmbeddingRequired, schema.NewBody(status.EmbeddingRequired, missing)
	}

	var groups [][]string
	if err := p.deps.Gate.Do(ctx, func() {
		dist := vectors.CosineDistanceMatrix(rows)
		labels := vectors.DBSCAN(dist, duplicateEps, duplicateMinSamples)
		groups = vectors.GroupByLabel(labels, req.Images)
	}); err != nil {
		return status.InternalError, schema.NewBody(status.InternalError, nil)
	}

	return status.Success, schema.NewBody(status.Success, groups)
}
