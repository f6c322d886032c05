package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalProvider writes objects under a directory on disk
type LocalProvider struct {
	dir     string
	baseURL string
}

func NewLocalProvider(dir, baseURL string) (*LocalProvider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalProvider{dir: abs, baseURL: baseURL}, nil
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(p.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	// write-then-rename so a reader never sees a half-written object
	tmp := dst + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if p.baseURL != "" {
		return publicURL(p.baseURL, key), nil
	}
	return dst, nil
}
