// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gpu holds the client for the remote inference server. The server
// owns image decoding and model execution; this side only ships references
// and receives vectors or clusters back.
package gpu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/albumgateway/services/album/schema"
)

const (
	embeddingPath = "/clip/embedding"
	peoplePath    = "/people/cluster"

	// Inference on a cold batch can take tens of seconds.
	defaultTimeout = 60 * time.Second
)

// Client talks to the GPU inference server over HTTP/JSON.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying http.Client pools connections.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a Client for the given base URL (scheme://host:port,
// no trailing slash required).
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

// Close releases idle connections held by the client pool.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

type embeddingResponse struct {
	Message string               `json:"message"`
	Data    map[string][]float32 `json:"data"`
}

type peopleResponse struct {
	Message string                 `json:"message"`
	Data    []schema.PeopleCluster `json:"data"`
}

// Embeddings requests CLIP embeddings for a batch of image references.
//
// # Description
//
// The returned map is keyed by image reference. References the server could
// not resolve are simply absent from the map; the caller decides how to
// report them. Any transport failure, non-2xx status, or undecodable body
// is an error — the callers map every error here to an internal failure.
func (c *Client) Embeddings(ctx context.Context, refs []string) (map[string][]float32, error) {
	ctx, span := otel.Tracer("gpu").Start(ctx, "gpu.Embeddings")
	defer span.End()
	span.SetAttributes(attribute.Int("images.count", len(refs)))

	var out embeddingResponse
	if err := c.post(ctx, embeddingPath, schema.ImageRequest{Images: refs}, &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if out.Message != "success" {
		err := fmt.Errorf("gpu: embedding server replied %q", out.Message)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out.Data, nil
}

// PeopleClusters requests face clustering for a batch of image references.
// The server returns fully-formed clusters; the gateway passes them through.
func (c *Client) PeopleClusters(ctx context.Context, refs []string) ([]schema.PeopleCluster, error) {
	ctx, span := otel.Tracer("gpu").Start(ctx, "gpu.PeopleClusters")
	defer span.End()
	span.SetAttributes(attribute.Int("images.count", len(refs)))

	var out peopleResponse
	if err := c.post(ctx, peoplePath, schema.ImageRequest{Images: refs}, &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if out.Message != "success" {
		err := fmt.Errorf("gpu: people server replied %q", out.Message)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gpu: encode request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gpu: build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gpu: call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("gpu server returned non-2xx",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)))
		return fmt.Errorf("gpu: %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gpu: decode %s response: %w", path, err)
	}
	return nil
}
