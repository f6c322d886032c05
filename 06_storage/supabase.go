package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	supa "github.com/supabase-community/storage-go"

	"prompt-video-pipeline/config"
)

type SupabaseProvider struct {
	client  *supa.Client
	bucket  string
	baseURL string
}

func NewSupabaseProvider(sc config.StorageConfig) (*SupabaseProvider, error) {
	if sc.SupabaseURL == "" || sc.SupabaseKey == "" || sc.Bucket == "" {
		return nil, fmt.Errorf("supabase: SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY and bucket are required")
	}
	baseURL := strings.TrimSuffix(sc.SupabaseURL, "/")
	return &SupabaseProvider{
		client:  supa.NewClient(baseURL+"/storage/v1", sc.SupabaseKey, nil),
		bucket:  sc.Bucket,
		baseURL: baseURL,
	}, nil
}

func (p *SupabaseProvider) Name() string { return "supabase" }

// Put returns when ctx ends even though storage-go cannot cancel the request;
// the abandoned upload finishes in the background.
func (p *SupabaseProvider) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	done := make(chan error, 1)
	go func() {
		upsert := true
		_, err := p.client.UploadFile(p.bucket, key, bytes.NewReader(data), supa.FileOptions{
			ContentType: &contentType,
			Upsert:      &upsert,
		})
		done <- err
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("failed to upload file: %w", err)
		}
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", p.baseURL, p.bucket, key), nil
}
