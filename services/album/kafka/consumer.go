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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kslog"
	"golang.org/x/sync/errgroup"
)

const (
	pollTimeout    = 200 * time.Millisecond
	maxPollRecords = 100
)

// Config holds one operation loop's connection settings.
type Config struct {
	Brokers []string
	GroupID string
	Op      Op
}

// Consumer is one operation's transactional consume-process-produce loop.
//
// # Description
//
// Each poll's records are handled per partition (sequential within a
// partition, concurrent across partitions), then all responses are produced
// and the consumed offsets committed inside a single Kafka transaction.
// Response consumers reading at read-committed isolation therefore see a
// response exactly once: if anything fails mid-cycle the transaction
// aborts, nothing is committed, and the requests are redelivered.
type Consumer struct {
	sess   *kgo.GroupTransactSession
	op     Op
	run    Runner
	logger *slog.Logger
}

// NewConsumer connects the transactional session for one operation.
//
// The transactional id is fresh per process: loops do not fence each other
// across restarts, the group protocol plus RequireStableFetchOffsets keep
// offset handoff safe.
func NewConsumer(cfg Config, exec Executor, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	run, err := RunnerFor(cfg.Op, exec)
	if err != nil {
		return nil, err
	}

	sess, err := kgo.NewGroupTransactSession(
		kgo.WithLogger(kslog.New(logger.With(slog.String("component", "kgo")))),
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(RequestTopic(cfg.Op)),
		kgo.Balancers(kgo.CooperativeStickyBalancer()),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.TransactionalID("producer-"+uuid.NewString()),
		kgo.RequireStableFetchOffsets(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create transact session for %s: %w", cfg.Op, err)
	}
	return &Consumer{
		sess:   sess,
		op:     cfg.Op,
		run:    run,
		logger: logger.With(slog.String("operation", string(cfg.Op))),
	}, nil
}

// Run polls until ctx is cancelled. The error is ctx.Err() on shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer loop started",
		slog.String("topic", RequestTopic(c.op)))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
		fetches := c.sess.PollRecords(pollCtx, maxPollRecords)
		cancel()
		if fetches.IsClientClosed() {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("fetch error",
				slog.String("topic", topic),
				slog.Int("partition", int(partition)),
				slog.String("error", err.Error()))
		})
		if fetches.NumRecords() == 0 {
			continue
		}

		var mu sync.Mutex
		var responses []*kgo.Record
		g, gctx := errgroup.WithContext(ctx)
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			records := p.Records
			if len(records) == 0 {
				return
			}
			g.Go(func() error {
				out := HandleBatch(gctx, c.op, c.run, c.logger, records)
				mu.Lock()
				responses = append(responses, out...)
				mu.Unlock()
				return nil
			})
		})
		_ = g.Wait() // handlers never return errors

		if err := c.sess.Begin(); err != nil {
			c.logger.Error("begin transaction failed", slog.String("error", err.Error()))
			continue
		}

		produceErr := c.sess.ProduceSync(ctx, responses...).FirstErr()
		end := kgo.TryCommit
		if produceErr != nil {
			c.logger.Error("produce failed, aborting transaction",
				slog.String("error", produceErr.Error()))
			end = kgo.TryAbort
		}

		committed, err := c.sess.End(ctx, end)
		if err != nil {
			c.logger.Error("end transaction failed", slog.String("error", err.Error()))
			continue
		}
		if !committed {
			c.logger.Warn("transaction aborted, records will be redelivered",
				slog.Int("records", fetches.NumRecords()))
		}
	}
}

// Close tears down the underlying client. In-flight transactions abort.
func (c *Consumer) Close() {
	c.sess.Close()
}
