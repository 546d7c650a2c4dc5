package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const uploadTimeout = 60 * time.Second

// GCS stores objects in a single bucket.
type GCS struct {
	client *storage.Client
	bucket string
	log    *logrus.Logger
}

// NewGCS creates a GCS store for bucket.
func NewGCS(ctx context.Context, bucket string, log *logrus.Logger, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	return &GCS{client: c, bucket: bucket, log: log}, nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Put uploads data and returns its gs:// URI.
func (g *GCS) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing upload %s: %w", key, err)
	}

	g.log.WithFields(logrus.Fields{"bucket": g.bucket, "key": key, "bytes": len(data)}).Debug("object uploaded")

	return fmt.Sprintf("gs://%s/%s", g.bucket, key), nil
}
