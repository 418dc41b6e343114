// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"strings"
	"testing"
	"time"
)

func setFullEnv(t *testing.T) {
	t.Helper()
	vars := map[string]string{
		"PROJECT_ID":            "proj",
		"APP_ENV":               "dev",
		"AWS_ACCESS_KEY":        "ak",
		"AWS_SECRET_KEY":        "sk",
		"AWS_REGION":            "ap-northeast-2",
		"S3_BUCKET_NAME":        "bucket-s3",
		"GCS_BUCKET_NAME":       "bucket-gcs",
		"GCP_KEY":               "/keys/gcp.json",
		"IMAGE_MODE":            "gcs",
		"LOCAL_IMG_PATH":        "/tmp/images",
		"MODEL_NAME":            "ViT-B/32",
		"REDIS_HOST":            "redis",
		"REDIS_PORT":            "6379",
		"REDIS_DB":              "2",
		"REDIS_CACHE_TTL":       "3600",
		"GPU_SERVER_BASE_URL":   "http://gpu:8000",
		"KAFKA_BROKER_URL":      "kafka:9092",
		"KAFKA_GROUP_CATEGORY":  "g-category",
		"KAFKA_GROUP_DUPLICATE": "g-duplicate",
		"KAFKA_GROUP_QUALITY":   "g-quality",
		"KAFKA_GROUP_SCORE":     "g-score",
		"KAFKA_GROUP_EMBEDDING": "g-embedding",
		"KAFKA_GROUP_PEOPLE":    "g-people",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad_FullEnvironment(t *testing.T) {
	setFullEnv(t)

	cfg, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dim != 512 {
		t.Errorf("Dim = %d, want 512", cfg.Dim)
	}
	if cfg.RedisDB != 2 {
		t.Errorf("RedisDB = %d", cfg.RedisDB)
	}
	if cfg.RedisTTL != time.Hour {
		t.Errorf("RedisTTL = %v, want 1h", cfg.RedisTTL)
	}
	if cfg.KafkaGroups["embedding"] != "g-embedding" || cfg.KafkaGroups["people"] != "g-people" {
		t.Errorf("KafkaGroups = %v", cfg.KafkaGroups)
	}
	if cfg.ModelBasePath != "models" {
		t.Errorf("ModelBasePath = %q, want default", cfg.ModelBasePath)
	}
}

func TestLoad_LargeModelDimension(t *testing.T) {
	setFullEnv(t)
	t.Setenv("MODEL_NAME", "ViT-L/14")

	cfg, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dim != 768 {
		t.Errorf("Dim = %d, want 768", cfg.Dim)
	}
}

func TestLoad_ReportsAllMissingVariables(t *testing.T) {
	setFullEnv(t)
	t.Setenv("PROJECT_ID", "")
	t.Setenv("KAFKA_GROUP_SCORE", "")

	_, err := Load(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "PROJECT_ID") || !strings.Contains(msg, "KAFKA_GROUP_SCORE") {
		t.Errorf("error does not name both missing variables: %v", err)
	}
}

func TestLoad_RejectsUnknownImageMode(t *testing.T) {
	setFullEnv(t)
	t.Setenv("IMAGE_MODE", "azure")

	if _, err := Load(context.Background(), nil); err == nil {
		t.Error("expected error for unknown IMAGE_MODE")
	}
}

func TestLoad_RejectsUnknownModel(t *testing.T) {
	setFullEnv(t)
	t.Setenv("MODEL_NAME", "ResNet-50")

	if _, err := Load(context.Background(), nil); err == nil {
		t.Error("expected error for unknown MODEL_NAME")
	}
}

func TestLoad_RejectsBadTTL(t *testing.T) {
	setFullEnv(t)
	for _, ttl := range []string{"abc", "0", "-5"} {
		t.Setenv("REDIS_CACHE_TTL", ttl)
		if _, err := Load(context.Background(), nil); err == nil {
			t.Errorf("TTL %q: expected error", ttl)
		}
	}
}
