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

// People groups a batch by the persons appearing in it. Face detection,
// face embedding and the clustering itself all run on the GPU service; the
// gateway validates, forwards and relays the clusters untouched.
func (p *Pipelines) People(ctx context.Context, req schema.ImageRequest) (code int, body schema.Body) {
	defer p.guard("people", &code, &body)

	if len(req.Images) == 0 {
		return status.InvalidRequest, schema.NewBody(status.InvalidRequest, nil)
	}

	clusters, err := p.deps.GPU.PeopleClusters(ctx, req.Images)
	if err != nil {
		p.deps.Logger.Error("people clustering request failed", slog.String("error", err.Error()))
		return status.InternalError, schema.NewBody(status.InternalError, nil)
	}

	return status.Success, schema.NewBody(status.Success, clusters)
}
