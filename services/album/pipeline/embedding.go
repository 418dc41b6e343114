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
	"log/slog"

	"github.com/AleutianAI/albumgateway/services/album/schema"
	"github.com/AleutianAI/albumgateway/services/album/status"
)

// Embedding requests embeddings for a batch from the GPU service and writes
// every returned vector into the cache.
//
// # Description
//
// References the GPU could not resolve are reported as data on the success
// response so the caller knows which uploads to retry; the rest of the batch
// is still cached. A cache write failure is fatal for the request — a
// half-written batch would leave later operations reading stale misses.
func (p *Pipelines) Embedding(ctx context.Context, req schema.ImageRequest) (code int, body schema.Body) {
	defer p.guard("embedding", &code, &body)

	if len(req.Images) == 0 {
		return status.InvalidRequest, schema.NewBody(status.InvalidRequest, nil)
	}

	result, err := p.deps.GPU.Embeddings(ctx, req.Images)
	if err != nil {
		p.deps.Logger.Error("embedding request failed", slog.String("error", err.Error()))
		return status.InternalError, schema.NewBody(status.InternalError, nil)
	}

	var invalid []string
	for _, ref := range req.Images {
		if _, ok := result[ref]; !ok {
			invalid = append(invalid, ref)
		}
	}

	for ref, vec := range result {
		if err := p.deps.Cache.Set(ctx, ref, vec); err != nil {
			p.deps.Logger.Error("embedding cache write failed",
				slog.String("key", ref),
				slog.String("error", err.Error()))
			return status.InternalError, schema.NewBody(status.InternalError, invalid)
		}
	}

	if len(invalid) > 0 {
		p.deps.Logger.Warn("embedding batch had unresolvable refs",
			slog.Int("invalid", len(invalid)),
			slog.Int("total", len(req.Images)))
	}
	return status.Success, schema.NewBody(status.Success, invalid)
}
