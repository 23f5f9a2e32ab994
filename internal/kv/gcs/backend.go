// Package gcs implements a kv.Backend stored as a Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/bidharvest/internal/kv"
)

// Config captures the parameters required to locate documents in GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Backend keeps one JSON document in a GCS object.
type Backend struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed document store for the named document.
func New(client *storage.Client, cfg Config, name string) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("document name is required")
	}
	object := name
	if prefix := strings.Trim(cfg.Prefix, "/"); prefix != "" {
		object = path.Join(prefix, name)
	}
	return &Backend{
		client: client,
		bucket: cfg.Bucket,
		object: object,
	}, nil
}

// Object returns the object name the document lives at.
func (b *Backend) Object() string {
	return b.object
}

// Read downloads the object or returns kv.ErrNotFound.
func (b *Backend) Read(ctx context.Context) ([]byte, error) {
	reader, err := b.client.Bucket(b.bucket).Object(b.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer reader.Close() //nolint:errcheck // read-only
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Write uploads data, replacing the object.
func (b *Backend) Write(ctx context.Context, data []byte) error {
	writer := b.client.Bucket(b.bucket).Object(b.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
