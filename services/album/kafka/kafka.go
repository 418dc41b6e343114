// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kafka runs the asynchronous ingress: one transactional
// consume-process-produce loop per operation, with exactly-once delivery of
// responses relative to consumed offsets.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/albumgateway/services/album/schema"
	"github.com/AleutianAI/albumgateway/services/album/status"
)

// Op names one of the six album operations.
type Op string

const (
	OpEmbedding Op = "embedding"
	OpDuplicate Op = "duplicate"
	OpQuality   Op = "quality"
	OpCategory  Op = "category"
	OpScore     Op = "score"
	OpPeople    Op = "people"
)

// Ops lists every operation with a Kafka surface.
var Ops = []Op{OpEmbedding, OpDuplicate, OpQuality, OpCategory, OpScore, OpPeople}

// RequestTopic returns the request topic for an operation.
func RequestTopic(op Op) string {
	return fmt.Sprintf("album.ai.%s.request", op)
}

// ResponseTopic returns the response topic for an operation.
func ResponseTopic(op Op) string {
	return fmt.Sprintf("album.ai.%s.response", op)
}

// Executor is the slice of the pipelines the Kafka surface drives.
type Executor interface {
	Embedding(ctx context.Context, req schema.ImageRequest) (int, schema.Body)
	Duplicate(ctx context.Context, req schema.ImageRequest) (int, schema.Body)
	Quality(ctx context.Context, req schema.ImageRequest) (int, schema.Body)
	Category(ctx context.Context, req schema.ImageConceptRequest) (int, schema.Body)
	Score(ctx context.Context, req schema.CategoryScoreRequest) (int, schema.Body)
	People(ctx context.Context, req schema.ImageRequest) (int, schema.Body)
}

// validate reuses the binding tags the HTTP surface declares on the shared
// request DTOs, so both ingresses reject the same payloads.
var validate = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}()

// Runner decodes one record value and executes its pipeline. A returned
// error means the payload failed validation; the handler answers with an
// invalid-request element and the batch continues.
type Runner func(ctx context.Context, value []byte) (int, schema.Body, error)

// RunnerFor binds an operation to its pipeline.
func RunnerFor(op Op, exec Executor) (Runner, error) {
	switch op {
	case OpEmbedding:
		return imageRunner(exec.Embedding), nil
	case OpDuplicate:
		return imageRunner(exec.Duplicate), nil
	case OpQuality:
		return imageRunner(exec.Quality), nil
	case OpPeople:
		return imageRunner(exec.People), nil
	case OpCategory:
		return func(ctx context.Context, value []byte) (int, schema.Body, error) {
			var req schema.ImageConceptRequest
			if err := decodeValid(value, &req); err != nil {
				return 0, schema.Body{}, err
			}
			code, body := exec.Category(ctx, req)
			return code, body, nil
		}, nil
	case OpScore:
		return func(ctx context.Context, value []byte) (int, schema.Body, error) {
			var req schema.CategoryScoreRequest
			if err := decodeValid(value, &req); err != nil {
				return 0, schema.Body{}, err
			}
			code, body := exec.Score(ctx, req)
			return code, body, nil
		}, nil
	default:
		return nil, fmt.Errorf("kafka: unknown operation %q", op)
	}
}

func imageRunner(run func(context.Context, schema.ImageRequest) (int, schema.Body)) Runner {
	return func(ctx context.Context, value []byte) (int, schema.Body, error) {
		var req schema.ImageRequest
		if err := decodeValid(value, &req); err != nil {
			return 0, schema.Body{}, err
		}
		code, body := run(ctx, req)
		return code, body, nil
	}
}

func decodeValid(value []byte, req any) error {
	if err := json.Unmarshal(value, req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// invalidEnvelope is the response element for a record that could not be
// decoded or validated. Correlation fields fall back to sentinels so the
// element still lands on the response topic.
func invalidEnvelope(taskID string, albumID int64) schema.Envelope {
	if taskID == "" {
		taskID = "unknown"
	}
	if albumID == 0 {
		albumID = -1
	}
	return schema.Envelope{
		TaskID:     taskID,
		AlbumID:    albumID,
		StatusCode: status.InvalidRequest,
		Body:       schema.NewBody(status.InvalidRequest, nil),
	}
}
