package storage

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"

	"prompt-video-pipeline/config"
)

// GCSProvider uses application default credentials
type GCSProvider struct {
	client  *gcs.Client
	bucket  string
	baseURL string
}

func NewGCSProvider(ctx context.Context, sc config.StorageConfig) (*GCSProvider, error) {
	if sc.Bucket == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCS client: %w", err)
	}
	baseURL := sc.PublicBaseURL
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + sc.Bucket
	}
	return &GCSProvider{client: client, bucket: sc.Bucket, baseURL: baseURL}, nil
}

func (p *GCSProvider) Name() string { return "gcs" }

func (p *GCSProvider) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	w := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", key, err)
	}
	return publicURL(p.baseURL, key), nil
}
