// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/AleutianAI/albumgateway/services/album/metrics"
	"github.com/AleutianAI/albumgateway/services/album/schema"
)

// recordMeta is the correlation header every request record carries next to
// its payload fields.
type recordMeta struct {
	TaskID  string `json:"taskId"`
	AlbumID int64  `json:"albumId"`
}

// HandleBatch processes one partition's records in order and returns the
// response records to produce, one per input record.
//
// # Description
//
// A record that fails to decode or validate yields an invalid-request
// element (with sentinel correlation values when even those are missing)
// and the batch continues — a single malformed message must not poison its
// partition. Records within the batch run sequentially to preserve
// partition ordering; concurrency happens across partitions, in the caller.
func HandleBatch(ctx context.Context, op Op, run Runner, logger *slog.Logger, records []*kgo.Record) []*kgo.Record {
	responseTopic := ResponseTopic(op)
	out := make([]*kgo.Record, 0, len(records))

	for _, rec := range records {
		var meta recordMeta
		_ = json.Unmarshal(rec.Value, &meta) // sentinel fallbacks cover failures

		var envelope schema.Envelope
		start := time.Now()
		if meta.TaskID == "" || meta.AlbumID == 0 {
			logger.Warn("request record missing correlation fields",
				slog.String("topic", rec.Topic),
				slog.Int64("offset", rec.Offset))
			envelope = invalidEnvelope(meta.TaskID, meta.AlbumID)
		} else if code, body, err := run(ctx, rec.Value); err != nil {
			logger.Warn("invalid request record",
				slog.String("topic", rec.Topic),
				slog.Int64("offset", rec.Offset),
				slog.String("error", err.Error()))
			envelope = invalidEnvelope(meta.TaskID, meta.AlbumID)
		} else {
			envelope = schema.Envelope{
				TaskID:     meta.TaskID,
				AlbumID:    meta.AlbumID,
				StatusCode: code,
				Body:       body,
			}
		}
		metrics.RecordRun(string(op), "kafka", envelope.StatusCode, 0, time.Since(start).Seconds())

		value, marshalErr := json.Marshal(envelope)
		if marshalErr != nil {
			// Envelope fields are all marshalable types; this cannot
			// happen with well-formed data, but never drop a response
			// silently.
			logger.Error("marshal response envelope failed",
				slog.String("taskId", envelope.TaskID),
				slog.String("error", marshalErr.Error()))
			continue
		}
		out = append(out, &kgo.Record{
			Topic: responseTopic,
			Key:   rec.Key,
			Value: value,
		})
	}
	return out
}
