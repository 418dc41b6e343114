// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package imageloader fetches image bytes from the configured store (local
// directory, S3, or GCS) and decodes them to grayscale for the sharpness
// filter. Full-resolution decode and model inference stay on the GPU side;
// the gateway only ever needs small grayscale frames.
package imageloader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	// Decoders for the formats the album service stores.
	_ "image/jpeg"
	_ "image/png"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// ByteFetcher retrieves the raw encoded bytes for one image reference.
type ByteFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Loader decodes fetched images into grayscale frames.
type Loader struct {
	fetcher ByteFetcher
}

// NewLoader wraps a ByteFetcher.
func NewLoader(fetcher ByteFetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

// FetchGray fetches and decodes refs concurrently, returning grayscale
// images in input order. Any fetch or decode failure fails the whole batch.
func (l *Loader) FetchGray(ctx context.Context, refs []string) ([]*image.Gray, error) {
	out := make([]*image.Gray, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			raw, err := l.fetcher.Fetch(gctx, ref)
			if err != nil {
				return fmt.Errorf("imageloader: fetch %q: %w", ref, err)
			}
			img, _, err := image.Decode(bytes.NewReader(raw))
			if err != nil {
				return fmt.Errorf("imageloader: decode %q: %w", ref, err)
			}
			out[i] = ToGray(img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// LocalFetcher reads images from a directory on disk. Used in development
// and in tests.
type LocalFetcher struct {
	Dir string
}

func (f *LocalFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.Dir, ref))
}

// S3Fetcher reads images from an S3 bucket.
type S3Fetcher struct {
	Client *s3.Client
	Bucket string
}

func (f *S3Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	obj, err := f.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.Bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()
	return io.ReadAll(obj.Body)
}

// GCSFetcher reads images from a GCS bucket.
type GCSFetcher struct {
	Client *storage.Client
	Bucket string
}

func (f *GCSFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	r, err := f.Client.Bucket(f.Bucket).Object(ref).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases the GCS client.
func (f *GCSFetcher) Close() error {
	return f.Client.Close()
}
