package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
)

// GCSClient implements StorageClient for a Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	bucket    string
	publicURL string
	log       *logger.Logger
}

func NewGCSClient(ctx context.Context, cfg config.GCSConfig, log *logger.Logger) (*GCSClient, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("GCS bucket not configured")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	log.Info("Object storage initialized", "driver", "gcs", "bucket", cfg.Bucket, "public_url", cfg.PublicURL)
	return &GCSClient{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		log:       log.With("service", "GCSClient"),
	}, nil
}

func (c *GCSClient) Upload(ctx context.Context, key string, body io.Reader, contentType string, meta map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := c.client.Bucket(c.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = meta
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return c.GetPublicURL(key), nil
}

func (c *GCSClient) Delete(ctx context.Context, key string) error {
	err := c.client.Bucket(c.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

func (c *GCSClient) GetPublicURL(key string) string {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s", c.publicURL, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.bucket, key)
}

func (c *GCSClient) Close() error {
	return c.client.Close()
}
