// Package gcs archives crawl batches to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the bucket and optional object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// openWriter returns a writer for one object. It is swapped out in tests.
type openWriter func(ctx context.Context, bucket, object, contentType string) io.WriteCloser

// BlobStore writes batch files to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
	open   openWriter
}

// Open creates a storage client from ambient credentials and wraps it.
func Open(ctx context.Context, cfg Config) (*BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// New creates a GCS-backed blob store over client.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	s, err := newStore(cfg, func(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		if contentType != "" {
			w.ContentType = contentType
		}
		return w
	})
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

func newStore(cfg Config, open openWriter) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		open:   open,
	}, nil
}

// Close releases the storage client.
func (s *BlobStore) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}

// PutObject uploads data and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, objectPath string, contentType string, r io.Reader) (string, error) {
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if objectPath == "" {
		return "", fmt.Errorf("path is required")
	}
	if s.prefix != "" {
		objectPath = path.Join(s.prefix, objectPath)
	}
	writer := s.open(ctx, s.bucket, objectPath, contentType)
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectPath), nil
}
