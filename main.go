package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/pipeline"
	"prompt-video-pipeline/runlog"
	"prompt-video-pipeline/types"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		mode       = flag.String("mode", "run", "run | schedule | history")
		req        types.GenerationRequest
	)
	flag.StringVar(&req.Prompt, "prompt", "", "what the video is about")
	flag.StringVar(&req.Duration, "duration", "", "15s | 30s | 60s")
	flag.StringVar(&req.Language, "lang", "", "en | ar | fr")
	flag.StringVar(&req.Gender, "gender", "", "male | female")
	flag.StringVar(&req.Style, "style", "", "visual style, e.g. Cinematic")
	flag.StringVar(&req.Platform, "platform", "", "target platform, e.g. YouTube")
	flag.StringVar(&req.ImageModel, "model", "", "image model id, e.g. SDXL or POLLINATIONS")
	flag.StringVar(&req.CallerID, "caller", "cli", "rate limit key")
	flag.Parse()

	// Load .env (local dev only)
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	for _, dir := range []string{cfg.Paths.Output, cfg.Paths.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create dir %s: %v", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var store *runlog.Store
	if cfg.Database.Driver != "" {
		store, err = runlog.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			log.Fatalf("Failed to open run history: %v", err)
		}
		defer store.Close()
	}

	if *mode == "history" {
		if err := printHistory(ctx, store); err != nil {
			log.Fatalf("History: %v", err)
		}
		return
	}

	orch, err := pipeline.Build(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	a := newApp(cfg, orch, store)

	switch *mode {
	case "run":
		state := a.runOnce(ctx, req)
		if state.Error != "" {
			log.Printf("❌ Pipeline failed: %s", state.Error)
			os.Exit(1)
		}
		log.Printf("✅ Pipeline complete: %s", state.Result.Message)
	case "schedule":
		if err := a.schedule(ctx); err != nil {
			log.Fatalf("Scheduler: %v", err)
		}
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

// connectRedis returns nil when nothing needs Redis. A failed ping is fatal
// only for the redis rate limiter.
func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	required := cfg.RateLimit.Backend == "redis"
	if !cfg.Redis.Enabled && !required {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		if required {
			return nil, err
		}
		log.Printf("⚠️  Redis unavailable, progress events stay local: %v", err)
		return nil, nil
	}
	log.Printf("Connected to Redis at %s", cfg.Redis.Addr)
	return rdb, nil
}

func printHistory(ctx context.Context, store *runlog.Store) error {
	if store == nil {
		return fmt.Errorf("database.driver is not configured")
	}
	runs, err := store.Recent(ctx, 20)
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "✅"
		if !r.Success {
			status = "❌"
		}
		fmt.Printf("%s %s  %s  %-10s %d images  %q\n",
			status, r.RunID, r.StartedAt.Format("2006-01-02 15:04"), r.Stage, r.ImageCount, r.Prompt)
	}
	return nil
}
