// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config reads and validates the gateway's environment at startup.
// Every variable is mandatory; a missing one fails the process before any
// connection is opened.
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Image store modes.
const (
	ImageModeLocal = "local"
	ImageModeGCS   = "gcs"
	ImageModeS3    = "s3"
)

// Supported CLIP models and their embedding dimensions.
var modelDims = map[string]int{
	"ViT-B/32": 512,
	"ViT-L/14": 768,
}

// SecretSource populates the process environment before Load reads it.
// Deployments back it with a secret manager; development and tests use
// EnvSecretSource and set variables directly.
type SecretSource interface {
	Load(ctx context.Context) error
}

// EnvSecretSource is the no-op SecretSource: everything is already in the
// environment.
type EnvSecretSource struct{}

func (EnvSecretSource) Load(context.Context) error { return nil }

// Config is the validated runtime configuration.
type Config struct {
	ProjectID string
	AppEnv    string

	AWSAccessKey string
	AWSSecretKey string
	AWSRegion    string
	S3Bucket     string

	GCSBucket string
	GCPKey    string

	ImageMode    string
	LocalImgPath string

	ModelName string
	// Dim is the embedding dimension implied by ModelName.
	Dim int

	RedisHost string
	RedisPort string
	RedisDB   int
	RedisTTL  time.Duration

	GPUServerBaseURL string

	KafkaBrokerURL string
	// KafkaGroups maps operation name to consumer group id.
	KafkaGroups map[string]string

	// ModelBasePath is the directory holding the feature banks and
	// regressor weights. Defaults to "models".
	ModelBasePath string
}

var kafkaGroupVars = map[string]string{
	"embedding": "KAFKA_GROUP_EMBEDDING",
	"duplicate": "KAFKA_GROUP_DUPLICATE",
	"quality":   "KAFKA_GROUP_QUALITY",
	"category":  "KAFKA_GROUP_CATEGORY",
	"score":     "KAFKA_GROUP_SCORE",
	"people":    "KAFKA_GROUP_PEOPLE",
}

// Load reads the environment after secrets.Load has populated it, and
// validates everything up front so a misconfigured pod fails in one pass
// with every missing variable named.
func Load(ctx context.Context, secrets SecretSource) (*Config, error) {
	if secrets == nil {
		secrets = EnvSecretSource{}
	}
	if err := secrets.Load(ctx); err != nil {
		return nil, fmt.Errorf("config: load secrets: %w", err)
	}

	var missing []string
	get := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		ProjectID:        get("PROJECT_ID"),
		AppEnv:           get("APP_ENV"),
		AWSAccessKey:     get("AWS_ACCESS_KEY"),
		AWSSecretKey:     get("AWS_SECRET_KEY"),
		AWSRegion:        get("AWS_REGION"),
		S3Bucket:         get("S3_BUCKET_NAME"),
		GCSBucket:        get("GCS_BUCKET_NAME"),
		GCPKey:           get("GCP_KEY"),
		ImageMode:        get("IMAGE_MODE"),
		LocalImgPath:     get("LOCAL_IMG_PATH"),
		ModelName:        get("MODEL_NAME"),
		RedisHost:        get("REDIS_HOST"),
		RedisPort:        get("REDIS_PORT"),
		GPUServerBaseURL: get("GPU_SERVER_BASE_URL"),
		KafkaBrokerURL:   get("KAFKA_BROKER_URL"),
		KafkaGroups:      make(map[string]string, len(kafkaGroupVars)),
		ModelBasePath:    os.Getenv("MODEL_BASE_PATH"),
	}
	redisDB := get("REDIS_DB")
	redisTTL := get("REDIS_CACHE_TTL")
	for op, envVar := range kafkaGroupVars {
		cfg.KafkaGroups[op] = get(envVar)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("config: missing mandatory environment variables: %s",
			strings.Join(missing, ", "))
	}

	switch cfg.ImageMode {
	case ImageModeLocal, ImageModeGCS, ImageModeS3:
	default:
		return nil, fmt.Errorf("config: IMAGE_MODE %q not in {local, gcs, s3}", cfg.ImageMode)
	}

	dim, ok := modelDims[cfg.ModelName]
	if !ok {
		return nil, fmt.Errorf("config: MODEL_NAME %q not in {ViT-B/32, ViT-L/14}", cfg.ModelName)
	}
	cfg.Dim = dim

	db, err := strconv.Atoi(redisDB)
	if err != nil {
		return nil, fmt.Errorf("config: REDIS_DB %q is not an integer: %w", redisDB, err)
	}
	cfg.RedisDB = db

	ttlSeconds, err := strconv.Atoi(redisTTL)
	if err != nil || ttlSeconds <= 0 {
		return nil, fmt.Errorf("config: REDIS_CACHE_TTL %q is not a positive integer of seconds", redisTTL)
	}
	cfg.RedisTTL = time.Duration(ttlSeconds) * time.Second

	if cfg.ModelBasePath == "" {
		cfg.ModelBasePath = "models"
	}
	return cfg, nil
}
