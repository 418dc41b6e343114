// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the embedding cache coordinator fronting the
// shared Redis store.
//
// The cache is authoritative: a miss means the client must submit the image
// to the embedding operation first. Embedding reads dominate the hot path
// for four of the six operations, so all backend calls are funneled through
// one process-wide semaphore — bounded parallelism overlaps latency without
// letting a large batch stampede the cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent caps concurrent Redis calls across all requests.
const DefaultMaxConcurrent = 80

// Store is the embedding cache seen by the pipelines.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the embedding cached under key. A backend error is
	// reported as a miss, never as an error: reads degrade to
	// "embedding required" rather than failing the pipeline.
	Get(ctx context.Context, key string) ([]float32, bool)

	// Set stores an embedding under key with the configured TTL.
	// Unlike Get, a write failure is returned: the embedding pipeline
	// treats it as fatal for the request.
	Set(ctx context.Context, key string, vec []float32) error

	// GetMany fetches a batch of embeddings, preserving input order: the
	// i-th slot is the vector for keys[i] or nil when missing. missing
	// lists the keys with no value, in input order.
	GetMany(ctx context.Context, keys []string) (vecs [][]float32, missing []string)
}

// Config holds the Redis connection settings read at startup.
type Config struct {
	Host          string
	Port          string
	DB            int
	TTL           time.Duration
	MaxConcurrent int64
}

// RedisStore is the Redis-backed Store. Vectors are serialized as JSON
// arrays of 32-bit floats; round-trip equality holds exactly since float32
// values survive the float64 JSON path within 1 ULP.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
// A failed ping fails startup — the gateway is useless without its cache.
func NewRedisStore(ctx context.Context, cfg Config, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     int(maxConcurrent),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect to redis %s:%s: %w", cfg.Host, cfg.Port, err)
	}

	return &RedisStore{
		client: client,
		ttl:    cfg.TTL,
		sem:    semaphore.NewWeighted(maxConcurrent),
		logger: logger,
	}, nil
}

// Get implements Store. Decode failures and backend errors are logged and
// reported as misses.
func (s *RedisStore) Get(ctx context.Context, key string) ([]float32, bool) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	defer s.sem.Release(1)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache get failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		s.logger.Warn("cache entry undecodable, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false
	}
	return vec, true
}

// Set implements Store. The configured TTL is applied on every write.
func (s *RedisStore) Set(ctx context.Context, key string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("cache: acquire slot for %q: %w", key, err)
	}
	defer s.sem.Release(1)

	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// GetMany implements Store. Keys are fetched concurrently, each under the
// global semaphore, and results land in their input slots regardless of
// completion order.
func (s *RedisStore) GetMany(ctx context.Context, keys []string) ([][]float32, []string) {
	vecs := make([][]float32, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			if vec, ok := s.Get(gctx, key); ok {
				vecs[i] = vec
			}
			return nil
		})
	}
	_ = g.Wait() // Get never returns an error.

	var missing []string
	for i, key := range keys {
		if vecs[i] == nil {
			missing = append(missing, key)
		}
	}
	return vecs, missing
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
