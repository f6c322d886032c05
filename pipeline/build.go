package pipeline

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	script "prompt-video-pipeline/02_script"
	audio "prompt-video-pipeline/03_audio"
	visuals "prompt-video-pipeline/04_visuals"
	subtitles "prompt-video-pipeline/05_subtitles"
	storage "prompt-video-pipeline/06_storage"
	render "prompt-video-pipeline/07_render"
	"prompt-video-pipeline/config"
	"prompt-video-pipeline/events"
	"prompt-video-pipeline/ratelimit"
)

// Build wires the production adapters from config. rdb may be nil when no
// redis-backed feature is enabled.
func Build(ctx context.Context, cfg *config.Config, rdb *redis.Client) (*Orchestrator, error) {
	uploader, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	limiter, err := ratelimit.New(cfg, rdb)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	if mem, ok := limiter.(*ratelimit.Memory); ok {
		go mem.RunCleanup(ctx, cfg.RateLimit.Window)
	}

	reporters := events.Multi{events.LogReporter{}}
	if rdb != nil {
		reporters = append(reporters, events.NewRedisReporter(rdb, cfg.Redis.ProgressChannel))
	}

	deps := Deps{
		Planner:     script.New(cfg),
		Synthesizer: audio.New(cfg),
		Captioner:   subtitles.New(cfg),
		Images:      visuals.New(cfg),
		Uploader:    uploader,
		Limiter:     limiter,
		Reporter:    reporters,
	}
	if cfg.Render.Enabled {
		deps.Assembler = render.New(cfg)
	}

	return New(deps, Options{
		TTSProvider:     cfg.Audio.Provider,
		AudioFolder:     cfg.Storage.AudioFolder,
		ImageFolder:     cfg.Storage.ImageFolder,
		ImageModel:      cfg.Visuals.Model,
		CaptionLanguage: cfg.Subtitles.Language,
		SpeakerLabels:   cfg.Subtitles.SpeakerLabels,
		Assemble:        cfg.Render.Enabled,
		VideoDir:        cfg.Paths.Output,
		Width:           cfg.Render.Width,
		Height:          cfg.Render.Height,
		FPS:             cfg.Render.FPS,
	}), nil
}
