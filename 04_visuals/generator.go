package visuals

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

// Options are the per-call generation parameters
type Options struct {
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	GuidanceScale  float64
}

func DefaultOptions() Options {
	return Options{
		NegativePrompt: "blurry, bad quality, distorted, ugly, low resolution",
		Width:          1024,
		Height:         1024,
		Steps:          50,
		GuidanceScale:  7.5,
	}
}

// Backend turns a prompt into encoded image bytes and their content type
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt, model string, opts Options) ([]byte, string, error)
}

// minImageBytes rejects error pages served with a 200
const minImageBytes = 100

type Generator struct {
	backends  []Backend
	opts      Options
	itemDelay time.Duration
}

// New builds the backends listed in visuals.backends, in order
func New(cfg *config.Config) *Generator {
	vc := cfg.Visuals
	var backends []Backend
	for _, name := range vc.Backends {
		switch name {
		case "huggingface":
			if vc.HFAPIKey == "" {
				log.Printf("[visuals] ⚠️  HUGGINGFACE_API_KEY not set, skipping huggingface backend")
				continue
			}
			backends = append(backends, NewHFBackend(vc.HFBaseURL, vc.HFAPIKey, vc.Timeout))
		case "pollinations":
			backends = append(backends, NewPollinationsBackend(vc.PollinationsURL, vc.Timeout))
		default:
			log.Printf("[visuals] ⚠️  unknown image backend %q ignored", name)
		}
	}
	opts := DefaultOptions()
	if vc.NegativePrompt != "" {
		opts.NegativePrompt = vc.NegativePrompt
	}
	if vc.Width > 0 && vc.Height > 0 {
		opts.Width, opts.Height = vc.Width, vc.Height
	}
	if vc.Steps > 0 {
		opts.Steps = vc.Steps
	}
	if vc.GuidanceScale > 0 {
		opts.GuidanceScale = vc.GuidanceScale
	}
	return NewWithBackends(opts, vc.ItemDelay, backends...)
}

func NewWithBackends(opts Options, itemDelay time.Duration, backends ...Backend) *Generator {
	return &Generator{backends: backends, opts: opts, itemDelay: itemDelay}
}

// Generate produces one image with the generator's default options
func (g *Generator) Generate(ctx context.Context, prompt, model string) types.ImageResult {
	return g.GenerateWithOptions(ctx, prompt, model, g.opts)
}

// GenerateWithOptions tries each backend in order and returns the first usable image
func (g *Generator) GenerateWithOptions(ctx context.Context, prompt, model string, opts Options) types.ImageResult {
	full := ResolveModel(model)
	res := types.ImageResult{Prompt: prompt, Model: full}

	if strings.TrimSpace(prompt) == "" {
		res.Err = types.Errorf(types.KindValidation, "generate image", "prompt is empty")
		return res
	}
	if len(g.backends) == 0 {
		res.Err = types.Errorf(types.KindUpstream, "generate image", "no image backends configured")
		return res
	}

	var errs []string
	for _, b := range g.backends {
		if err := ctx.Err(); err != nil {
			res.Err = types.Wrap(types.KindCancelled, "generate image", err)
			return res
		}
		data, contentType, err := b.Generate(ctx, prompt, full, opts)
		if err == nil {
			contentType, err = checkImage(data, contentType)
		}
		if err != nil {
			log.Printf("[visuals] %s failed: %v", b.Name(), err)
			errs = append(errs, b.Name()+": "+err.Error())
			continue
		}
		res.Success = true
		res.Data = data
		res.ContentType = contentType
		if b.Name() == "pollinations" && !isPollinationsModel(full) {
			res.Model = Models["POLLINATIONS"]
		}
		return res
	}

	if err := ctx.Err(); err != nil {
		res.Err = types.Wrap(types.KindCancelled, "generate image", err)
		return res
	}
	res.Err = types.Errorf(types.KindUpstream, "generate image", "%s", strings.Join(errs, "; "))
	return res
}

// GenerateMany runs prompts one at a time with a pause between them. The
// result has the same length and order as prompts; once ctx is cancelled the
// remaining entries are marked failed.
func (g *Generator) GenerateMany(ctx context.Context, prompts []string, model string) []types.ImageResult {
	results := make([]types.ImageResult, len(prompts))
	log.Printf("[visuals] Generating %d images...", len(prompts))

	for i, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			results[i] = types.ImageResult{
				Index:  i,
				Prompt: prompt,
				Model:  ResolveModel(model),
				Err:    types.Wrap(types.KindCancelled, "generate image", err),
			}
			continue
		}

		res := g.Generate(ctx, prompt, model)
		res.Index = i
		results[i] = res
		if res.Success {
			log.Printf("[visuals] ✅ Image %s generated (%d bytes)", types.SceneLabel(i, len(prompts)), len(res.Data))
		} else {
			log.Printf("[visuals] ❌ Image %s failed: %v", types.SceneLabel(i, len(prompts)), res.Err)
		}

		if i < len(prompts)-1 {
			wait(ctx, g.itemDelay)
		}
	}

	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	log.Printf("[visuals] Generated %d/%d images successfully", ok, len(prompts))
	return results
}

func checkImage(data []byte, contentType string) (string, error) {
	if len(data) < minImageBytes {
		return "", fmt.Errorf("response too small (%d bytes), likely an error", len(data))
	}
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("unexpected content type %q", contentType)
	}
	return contentType, nil
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
