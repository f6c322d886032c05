package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"prompt-video-pipeline/config"
)

// MinioProvider stores objects in a MinIO (or any S3-compatible) bucket
type MinioProvider struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewMinioProvider(sc config.StorageConfig) (*MinioProvider, error) {
	if sc.Endpoint == "" || sc.Bucket == "" {
		return nil, fmt.Errorf("minio: endpoint and bucket are required")
	}
	client, err := minio.New(sc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
		Secure: sc.UseSSL,
		Region: sc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	baseURL := sc.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if sc.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, sc.Endpoint, sc.Bucket)
	}
	return &MinioProvider{client: client, bucket: sc.Bucket, baseURL: baseURL}, nil
}

func (p *MinioProvider) Name() string { return "minio" }

func (p *MinioProvider) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return publicURL(p.baseURL, key), nil
}
