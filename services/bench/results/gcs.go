// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
)

// Uploader stores one object.
type Uploader interface {
	Upload(ctx context.Context, object string, data []byte) error
}

// GCSConfig locates the bucket.
type GCSConfig struct {
	Bucket string
	Prefix string
	// CredentialsFile is a service account key. Empty uses the
	// application default credentials.
	CredentialsFile string
}

// GCSSink uploads the CSV tables of every Result Set.
type GCSSink struct {
	uploader Uploader
	prefix   string
	closer   io.Closer
}

// NewGCSSink connects to Cloud Storage.
func NewGCSSink(ctx context.Context, cfg GCSConfig) (*GCSSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs sink needs a bucket")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSSink{
		uploader: &bucketUploader{bucket: client.Bucket(cfg.Bucket)},
		prefix:   cfg.Prefix,
		closer:   client,
	}, nil
}

// NewGCSSinkWithUploader creates a sink on an existing uploader.
func NewGCSSinkWithUploader(u Uploader, prefix string) *GCSSink {
	return &GCSSink{uploader: u, prefix: prefix}
}

// Save implements Sink.
func (s *GCSSink) Save(ctx context.Context, rs *engine.ResultSet) error {
	for _, t := range Tables(rs) {
		data, err := EncodeCSV(t.Rows)
		if err != nil {
			return err
		}
		object := path.Join(s.prefix, t.Name)
		if err := s.uploader.Upload(ctx, object, data); err != nil {
			return fmt.Errorf("upload %s: %w", object, err)
		}
	}
	return nil
}

// Close releases the client.
func (s *GCSSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

type bucketUploader struct {
	bucket *storage.BucketHandle
}

func (u *bucketUploader) Upload(ctx context.Context, object string, data []byte) error {
	w := u.bucket.Object(object).NewWriter(ctx)
	w.ContentType = "text/csv"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to copy to GCS object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}
	return nil
}
