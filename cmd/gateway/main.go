// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gateway starts the album AI gateway.
//
// The gateway fronts the remote GPU inference service and the Redis
// embedding cache with two ingress surfaces: a synchronous HTTP API under
// /api/albums and one transactional Kafka consume-process-produce loop per
// operation. All configuration comes from the environment; see
// services/album/config.
//
// Usage:
//
//	go run ./cmd/gateway
//	go run ./cmd/gateway -port 9090
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/health/info
//
//	# Embed and cache a batch
//	curl -X POST http://localhost:8080/api/albums/embedding \
//	  -H "Content-Type: application/json" \
//	  -d '{"images": ["album1/cat.jpg", "album1/dog.jpg"]}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/AleutianAI/albumgateway/services/album"
	"github.com/AleutianAI/albumgateway/services/album/cache"
	"github.com/AleutianAI/albumgateway/services/album/config"
	"github.com/AleutianAI/albumgateway/services/album/features"
	"github.com/AleutianAI/albumgateway/services/album/gpu"
	"github.com/AleutianAI/albumgateway/services/album/imageloader"
	"github.com/AleutianAI/albumgateway/services/album/kafka"
	"github.com/AleutianAI/albumgateway/services/album/pipeline"
)

const shutdownTimeout = 10 * time.Second

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext flows from incoming headers through both ingress
	// surfaces to the GPU client spans.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *port, *debug, logger); err != nil {
		logger.Error("gateway exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

// run builds the application context in startup order — secrets, config,
// model artifacts, image loader, cache, GPU client, pipelines — then serves
// HTTP and the six Kafka loops until ctx is cancelled.
func run(ctx context.Context, port int, debug bool, logger *slog.Logger) error {
	cfg, err := config.Load(ctx, config.EnvSecretSource{})
	if err != nil {
		return err
	}
	logger.Info("configuration loaded",
		slog.String("app_env", cfg.AppEnv),
		slog.String("image_mode", cfg.ImageMode),
		slog.String("model", cfg.ModelName),
		slog.Int("dim", cfg.Dim))

	regressor, err := features.LoadRegressor(
		filepath.Join(cfg.ModelBasePath, "aesthetic_regressor.json"), cfg.Dim)
	if err != nil {
		return err
	}
	categoryBank, err := features.LoadCategoryBank(
		filepath.Join(cfg.ModelBasePath, "category_features.json"), cfg.Dim)
	if err != nil {
		return err
	}
	qualityBank, err := features.LoadQualityBank(
		filepath.Join(cfg.ModelBasePath, "quality_features.json"), cfg.Dim)
	if err != nil {
		return err
	}

	images, closeImages, err := newImageSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeImages()

	store, err := cache.NewRedisStore(ctx, cache.Config{
		Host: cfg.RedisHost,
		Port: cfg.RedisPort,
		DB:   cfg.RedisDB,
		TTL:  cfg.RedisTTL,
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	gpuClient := gpu.NewClient(cfg.GPUServerBaseURL, logger)
	defer gpuClient.Close()

	sharp, combined := pipeline.DefaultThresholds(cfg.ModelName)
	pipelines, err := pipeline.New(pipeline.Deps{
		Cache:             store,
		GPU:               gpuClient,
		Images:            images,
		Category:          categoryBank,
		Quality:           qualityBank,
		Regressor:         regressor,
		Dim:               cfg.Dim,
		ThresholdSharp:    sharp,
		ThresholdCombined: combined,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("album-gateway"))
	if debug {
		router.Use(gin.Logger())
	}
	album.RegisterRoutes(router, album.NewHandlers(pipelines, logger))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	consumers := make([]*kafka.Consumer, 0, len(kafka.Ops))
	for _, op := range kafka.Ops {
		consumer, err := kafka.NewConsumer(kafka.Config{
			Brokers: []string{cfg.KafkaBrokerURL},
			GroupID: cfg.KafkaGroups[string(op)],
			Op:      op,
		}, pipelines, logger)
		if err != nil {
			return err
		}
		consumers = append(consumers, consumer)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, consumer := range consumers {
		g.Go(func() error {
			defer consumer.Close()
			err := consumer.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		logger.Info("http server listening", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newImageSource builds the image fetcher for IMAGE_MODE. The returned
// cleanup closes any backing client; it is a no-op for local and S3.
func newImageSource(ctx context.Context, cfg *config.Config) (pipeline.ImageSource, func(), error) {
	switch cfg.ImageMode {
	case config.ImageModeLocal:
		return imageloader.NewLoader(&imageloader.LocalFetcher{Dir: cfg.LocalImgPath}), func() {}, nil

	case config.ImageModeS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.AWSRegion),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, "")),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		fetcher := &imageloader.S3Fetcher{
			Client: s3.NewFromConfig(awsCfg),
			Bucket: cfg.S3Bucket,
		}
		return imageloader.NewLoader(fetcher), func() {}, nil

	case config.ImageModeGCS:
		client, err := storage.NewClient(ctx, option.WithCredentialsFile(cfg.GCPKey))
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		fetcher := &imageloader.GCSFetcher{Client: client, Bucket: cfg.GCSBucket}
		return imageloader.NewLoader(fetcher), func() { _ = fetcher.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unsupported image mode %q", cfg.ImageMode)
}
