// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package album is the synchronous HTTP surface of the gateway. Handlers
// bind and validate the request, take the operation's admission slot, run
// the shared pipeline, and write its status code and body verbatim — both
// ingress surfaces speak the same envelope.
package album

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/albumgateway/services/album/metrics"
	"github.com/AleutianAI/albumgateway/services/album/schema"
	"github.com/AleutianAI/albumgateway/services/album/status"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Admission slots per operation. Embedding runs the GPU hot path and gets a
// tighter bound than the cache-backed operations.
const (
	embeddingSlots = 4
	defaultSlots   = 5
)

// Service is the pipeline surface the handlers drive.
type Service interface {
	Embedding(ctx context.Context, req schema.ImageRequest) (int, schema.Body)
	Duplicate(ctx context.Context, req schema.ImageRequest) (int, schema.Body)
	Quality(ctx context.Context, req schema.ImageRequest) (int, schema.Body)
	Category(ctx context.Context, req schema.ImageConceptRequest) (int, schema.Body)
	Score(ctx context.Context, req schema.CategoryScoreRequest) (int, schema.Body)
	People(ctx context.Context, req schema.ImageRequest) (int, schema.Body)
}

// Handlers holds the HTTP handlers and their per-operation admission
// semaphores.
type Handlers struct {
	service Service
	sems    map[string]*semaphore.Weighted
	logger  *slog.Logger
}

// NewHandlers builds the handler set.
func NewHandlers(service Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	sems := map[string]*semaphore.Weighted{
		"embedding": semaphore.NewWeighted(embeddingSlots),
		"duplicate": semaphore.NewWeighted(defaultSlots),
		"quality":   semaphore.NewWeighted(defaultSlots),
		"category":  semaphore.NewWeighted(defaultSlots),
		"score":     semaphore.NewWeighted(defaultSlots),
		"people":    semaphore.NewWeighted(defaultSlots),
	}
	return &Handlers{service: service, sems: sems, logger: logger}
}

// run admits the request under op's semaphore, executes the pipeline and
// writes its result. batch is the image count for metrics.
func (h *Handlers) run(c *gin.Context, op string, batch int, fn func(ctx context.Context) (int, schema.Body)) {
	start := time.Now()
	ctx := c.Request.Context()

	sem := h.sems[op]
	if err := sem.Acquire(ctx, 1); err != nil {
		c.JSON(status.InternalError, schema.NewBody(status.InternalError, nil))
		return
	}
	defer sem.Release(1)

	code, body := fn(ctx)
	metrics.RecordRun(op, "http", code, batch, time.Since(start).Seconds())
	c.JSON(code, body)
}

// invalid writes the shared invalid-request envelope for a binding failure.
func (h *Handlers) invalid(c *gin.Context, op string, err error) {
	h.logger.Warn("request binding failed",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	metrics.RecordRun(op, "http", status.InvalidRequest, 0, 0)
	c.JSON(status.InvalidRequest, schema.NewBody(status.InvalidRequest, nil))
}

func (h *Handlers) HandleEmbedding(c *gin.Context) {
	var req schema.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, "embedding", err)
		return
	}
	h.run(c, "embedding", len(req.Images), func(ctx context.Context) (int, schema.Body) {
		return h.service.Embedding(ctx, req)
	})
}

func (h *Handlers) HandleDuplicate(c *gin.Context) {
	var req schema.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, "duplicate", err)
		return
	}
	h.run(c, "duplicate", len(req.Images), func(ctx context.Context) (int, schema.Body) {
		return h.service.Duplicate(ctx, req)
	})
}

func (h *Handlers) HandleQuality(c *gin.Context) {
	var req schema.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, "quality", err)
		return
	}
	h.run(c, "quality", len(req.Images), func(ctx context.Context) (int, schema.Body) {
		return h.service.Quality(ctx, req)
	})
}

func (h *Handlers) HandleCategory(c *gin.Context) {
	var req schema.ImageConceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, "category", err)
		return
	}
	h.run(c, "category", len(req.Images), func(ctx context.Context) (int, schema.Body) {
		return h.service.Category(ctx, req)
	})
}

func (h *Handlers) HandleScore(c *gin.Context) {
	var req schema.CategoryScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, "score", err)
		return
	}
	batch := 0
	for _, category := range req.Categories {
		batch += len(category.Images)
	}
	h.run(c, "score", batch, func(ctx context.Context) (int, schema.Body) {
		return h.service.Score(ctx, req)
	})
}

func (h *Handlers) HandlePeople(c *gin.Context) {
	var req schema.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, "people", err)
		return
	}
	h.run(c, "people", len(req.Images), func(ctx context.Context) (int, schema.Body) {
		return h.service.People(ctx, req)
	})
}

// HandleHealthInfo reports liveness.
func (h *Handlers) HandleHealthInfo(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"message": "Service is healthy",
		"version": Version,
	})
}
