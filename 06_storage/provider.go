package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"prompt-video-pipeline/config"
)

// Provider persists one object and returns its public URL.
// Put with an existing key overwrites it.
type Provider interface {
	Name() string
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// NewProvider picks the provider named by cfg.Storage.Provider.
// "none" yields a nil Provider: uploads then fail, audio falls back to its local path.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	sc := cfg.Storage
	switch sc.Provider {
	case "", "none":
		return nil, nil
	case "local":
		return NewLocalProvider(sc.LocalDir, sc.PublicBaseURL)
	case "minio":
		return NewMinioProvider(sc)
	case "s3":
		return NewS3Provider(ctx, sc)
	case "gcs":
		return NewGCSProvider(ctx, sc)
	case "supabase":
		return NewSupabaseProvider(sc)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", sc.Provider)
	}
}

// ObjectKey joins folder and a sanitized name
func ObjectKey(folder, name string) string {
	return strings.TrimPrefix(path.Join(folder, sanitize(name)), "/")
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

func publicURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
