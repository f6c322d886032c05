package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	research "prompt-video-pipeline/01_research"
	metadata "prompt-video-pipeline/08_metadata"
	upload "prompt-video-pipeline/09_upload"
	"prompt-video-pipeline/config"
	"prompt-video-pipeline/pipeline"
	"prompt-video-pipeline/runlog"
	"prompt-video-pipeline/types"
)

type app struct {
	cfg       *config.Config
	orch      *pipeline.Orchestrator
	store     *runlog.Store
	metadata  *metadata.Generator
	publisher *upload.Uploader
}

func newApp(cfg *config.Config, orch *pipeline.Orchestrator, store *runlog.Store) *app {
	return &app{
		cfg:       cfg,
		orch:      orch,
		store:     store,
		metadata:  metadata.New(cfg),
		publisher: upload.New(cfg),
	}
}

// runOnce generates one video, optionally publishes it, and records the run
func (a *app) runOnce(ctx context.Context, req types.GenerationRequest) *types.PipelineState {
	started := time.Now().UTC()
	result := a.orch.Run(ctx, req)

	state := &types.PipelineState{
		RunID:     result.RunID,
		StartedAt: started.Format(time.RFC3339),
		Request:   req.WithDefaults(),
		Result:    &result,
	}
	runDir := filepath.Join(a.cfg.Paths.Output, result.RunID)
	log.Printf("📁 Output dir: %s", runDir)

	if !result.Success {
		state.Error = result.Error
	} else if a.cfg.Upload.Enabled && result.VideoPath != "" && result.Plan != nil {
		a.publish(ctx, state, runDir)
	}

	state.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	a.record(state, runDir)
	return state
}

func (a *app) publish(ctx context.Context, state *types.PipelineState, runDir string) {
	log.Println("\n━━━ Metadata ━━━")
	md, err := a.metadata.Run(ctx, state.Request, *state.Result.Plan)
	if err != nil {
		log.Printf("⚠️  Metadata failed: %v, skipping upload", err)
		return
	}
	state.Metadata = md
	_ = runlog.SaveJSON(filepath.Join(runDir, "metadata.json"), md)

	log.Println("\n━━━ YouTube Upload ━━━")
	id, url, err := a.publisher.Run(ctx, state.Result.VideoPath, md)
	if err != nil {
		log.Printf("⚠️  Upload failed: %v", err)
		return
	}
	state.YouTubeID = id
	state.YouTubeURL = url
}

// record writes the run dir files and the history row. Neither failure
// affects the run.
func (a *app) record(state *types.PipelineState, runDir string) {
	if err := runlog.SaveState(state, runDir); err != nil {
		log.Printf("⚠️  Could not save run state: %v", err)
	}
	if res := state.Result; res != nil {
		if res.Plan != nil {
			_ = runlog.SaveJSON(filepath.Join(runDir, "script.json"), res.Plan)
		}
		if res.Captions != nil && res.Captions.SRT != "" {
			if err := os.WriteFile(filepath.Join(runDir, "captions.srt"), []byte(res.Captions.SRT), 0644); err != nil {
				log.Printf("⚠️  Could not save captions: %v", err)
			}
		}
	}
	if a.store != nil {
		if err := a.store.Save(context.Background(), state); err != nil {
			log.Printf("⚠️  Could not save run history: %v", err)
		}
	}
}

// schedule generates a video from the best research topic on every cron tick
// until ctx is cancelled
func (a *app) schedule(ctx context.Context) error {
	scraper := research.New(a.cfg)
	sc := a.cfg.Schedule

	c := cron.New()
	_, err := c.AddFunc(sc.Cron, func() {
		log.Println("\n━━━ Research ━━━")
		topics, err := scraper.Run(ctx)
		if err != nil {
			log.Printf("⚠️  Research failed: %v", err)
			return
		}
		topic := topics[0]
		if err := scraper.MarkUsed(topic); err != nil {
			log.Printf("⚠️  Could not save used topics: %v", err)
		}
		req := types.GenerationRequest{
			Prompt:   research.Prompt(topic),
			Duration: sc.Duration,
			Language: sc.Language,
			Gender:   sc.Gender,
			Style:    sc.Style,
			CallerID: "scheduler",
		}
		state := a.runOnce(ctx, req)
		if state.Error != "" {
			log.Printf("❌ Scheduled run %s failed: %s", state.RunID, state.Error)
			return
		}
		log.Printf("✅ Scheduled run %s complete", state.RunID)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule.cron %q: %w", sc.Cron, err)
	}

	c.Start()
	log.Printf("⏰ Scheduler started (%s)", sc.Cron)
	<-ctx.Done()
	<-c.Stop().Done()
	log.Println("Scheduler stopped")
	return nil
}
