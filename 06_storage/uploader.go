package storage

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

// Item is one artifact to persist. Name is the stable identifier: the same
// Name in the same folder always maps to the same object key.
type Item struct {
	Data        []byte
	Name        string
	ContentType string
}

type Options struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	ItemDelay      time.Duration
	JPEGQuality    int
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:    3,
		BaseBackoff:    time.Second,
		MaxBackoff:     5 * time.Second,
		AttemptTimeout: 60 * time.Second,
		ItemDelay:      500 * time.Millisecond,
		JPEGQuality:    80,
	}
}

// Uploader holds no per-call state, so the audio and image stages share one.
type Uploader struct {
	provider Provider
	opts     Options
}

func New(provider Provider, opts Options) *Uploader {
	def := DefaultOptions()
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = def.AttemptTimeout
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = def.JPEGQuality
	}
	return &Uploader{provider: provider, opts: opts}
}

// NewFromConfig builds the provider named in the config and wraps it
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Uploader, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sc := cfg.Storage
	return New(provider, Options{
		MaxAttempts:    sc.MaxAttempts,
		BaseBackoff:    sc.BaseBackoff,
		MaxBackoff:     sc.MaxBackoff,
		AttemptTimeout: sc.AttemptTimeout,
		ItemDelay:      sc.ItemDelay,
		JPEGQuality:    sc.JPEGQuality,
	}), nil
}

// Configured reports whether a durable provider is set
func (u *Uploader) Configured() bool { return u.provider != nil }

func (u *Uploader) providerName() string {
	if u.provider == nil {
		return "none"
	}
	return u.provider.Name()
}

// Backoff returns the wait after the given failed attempt (1-based)
func (u *Uploader) Backoff(attempt int) time.Duration {
	d := u.opts.BaseBackoff << uint(attempt-1)
	if u.opts.MaxBackoff > 0 && (d > u.opts.MaxBackoff || d <= 0) {
		return u.opts.MaxBackoff
	}
	return d
}

// Upload persists one item with bounded retry. It never panics on provider errors;
// failures are reported in the result.
func (u *Uploader) Upload(ctx context.Context, item Item, folder string) types.UploadResult {
	if u.provider == nil {
		return types.UploadResult{
			Provider: "none",
			Err:      types.Errorf(types.KindStorage, "upload", "storage not configured"),
		}
	}
	if len(item.Data) == 0 {
		return types.UploadResult{
			Provider: u.providerName(),
			Err:      types.Errorf(types.KindValidation, "upload", "empty payload"),
		}
	}

	name := item.Name
	if name == "" {
		name = uuid.NewString()
	}
	data, contentType := item.Data, item.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if isImage(contentType) {
		if jpg, ct, ok := NormalizeImage(data, u.opts.JPEGQuality); ok {
			data, contentType, name = jpg, ct, withJPEGExt(name)
		}
	}
	key := ObjectKey(folder, name)

	var lastErr error
	for attempt := 1; attempt <= u.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, u.opts.AttemptTimeout)
		url, err := u.provider.Put(attemptCtx, key, data, contentType)
		cancel()
		if err == nil {
			return types.UploadResult{Success: true, URL: url, Provider: u.providerName(), Key: key}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("[storage] attempt %d/%d for %s failed: %v", attempt, u.opts.MaxAttempts, key, err)
		if attempt < u.opts.MaxAttempts {
			if err := sleep(ctx, u.Backoff(attempt)); err != nil {
				break
			}
		}
	}

	if ctx.Err() != nil {
		return types.UploadResult{Provider: u.providerName(), Key: key, Err: types.Wrap(types.KindCancelled, "upload", ctx.Err())}
	}
	return types.UploadResult{
		Provider: u.providerName(),
		Key:      key,
		Err:      types.Wrap(types.KindStorage, "upload", fmt.Errorf("failed after %d attempts: %w", u.opts.MaxAttempts, lastErr)),
	}
}

// UploadMany uploads strictly one item at a time, pausing between items.
// The result slice always matches items in length and order.
func (u *Uploader) UploadMany(ctx context.Context, items []Item, folder string) []types.UploadResult {
	results := make([]types.UploadResult, len(items))
	for i, item := range items {
		if i > 0 && u.opts.ItemDelay > 0 {
			if err := sleep(ctx, u.opts.ItemDelay); err != nil {
				for j := i; j < len(items); j++ {
					results[j] = types.UploadResult{Provider: u.providerName(), Err: types.Wrap(types.KindCancelled, "upload", err)}
				}
				return results
			}
		}
		results[i] = u.Upload(ctx, item, folder)
		if results[i].Success {
			log.Printf("[storage] ✅ %s uploaded → %s", types.SceneLabel(i, len(items)), results[i].URL)
		} else {
			log.Printf("[storage] ❌ %s failed: %v", types.SceneLabel(i, len(items)), results[i].Err)
		}
	}
	return results
}

// UploadAudio uploads a local audio file. Without a provider, or after all
// retries fail, it soft-succeeds with the local path.
func (u *Uploader) UploadAudio(ctx context.Context, localPath, folder string) types.UploadResult {
	local := types.UploadResult{Success: true, URL: localPath, Provider: types.StorageLocal}
	if u.provider == nil {
		log.Printf("[storage] ⚠️  No storage configured, keeping audio at %s", localPath)
		return local
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return types.UploadResult{Provider: u.providerName(), Err: types.Wrap(types.KindStorage, "upload audio", err)}
	}

	res := u.Upload(ctx, Item{Data: data, Name: filepath.Base(localPath), ContentType: "audio/mpeg"}, folder)
	if res.Success {
		if err := os.Remove(localPath); err != nil {
			log.Printf("[storage] Warning: could not remove %s: %v", localPath, err)
		}
		return res
	}
	if types.KindOf(res.Err) == types.KindCancelled {
		return res
	}
	log.Printf("[storage] ⚠️  Audio upload failed, using local path: %v", res.Err)
	return local
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
