package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Research  ResearchConfig  `yaml:"research"`
	Script    ScriptConfig    `yaml:"script"`
	Audio     AudioConfig     `yaml:"audio"`
	Visuals   VisualsConfig   `yaml:"visuals"`
	Subtitles SubtitlesConfig `yaml:"subtitles"`
	Storage   StorageConfig   `yaml:"storage"`
	Render    RenderConfig    `yaml:"render"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Upload    UploadConfig    `yaml:"upload"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Paths     PathsConfig     `yaml:"paths"`
}

type ResearchConfig struct {
	Subreddits        []string `yaml:"subreddits"`
	Feeds             []string `yaml:"feeds"`
	StoryLookbackDays int      `yaml:"story_lookback_days"`
	MinRedditScore    int      `yaml:"min_reddit_score"`
	MaxPrompts        int      `yaml:"max_prompts"`
	RedditID          string   `yaml:"-"`
	RedditSecret      string   `yaml:"-"`
	RedditUsername    string   `yaml:"-"`
	RedditPassword    string   `yaml:"-"`
}

type ScriptConfig struct {
	Links       []string      `yaml:"links"`
	GroqModel   string        `yaml:"groq_model"`
	GeminiModel string        `yaml:"gemini_model"`
	HFModels    []string      `yaml:"hf_models"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	GroqAPIKey  string        `yaml:"-"`
	GeminiKey   string        `yaml:"-"`
	HFAPIKey    string        `yaml:"-"`
}

type AudioConfig struct {
	Provider  string        `yaml:"provider"`
	EdgeTTS   string        `yaml:"edge_tts_bin"`
	FFprobe   string        `yaml:"ffprobe_bin"`
	GTTSURL   string        `yaml:"gtts_url"`
	OutputDir string        `yaml:"output_dir"`
	Timeout   time.Duration `yaml:"timeout"`
}

type VisualsConfig struct {
	Model           string        `yaml:"model"`
	Backends        []string      `yaml:"backends"`
	HFBaseURL       string        `yaml:"hf_base_url"`
	PollinationsURL string        `yaml:"pollinations_url"`
	NegativePrompt  string        `yaml:"negative_prompt"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	Steps           int           `yaml:"steps"`
	GuidanceScale   float64       `yaml:"guidance_scale"`
	ItemDelay       time.Duration `yaml:"item_delay"`
	Timeout         time.Duration `yaml:"timeout"`
	HFAPIKey        string        `yaml:"-"`
}

type SubtitlesConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Language       string        `yaml:"language"`
	SpeakerLabels  bool          `yaml:"speaker_labels"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxWait        time.Duration `yaml:"max_wait"`
	MaxWordsPerCue int           `yaml:"max_words_per_cue"`
	APIKey         string        `yaml:"-"`
}

type StorageConfig struct {
	Provider       string        `yaml:"provider"` // local | minio | s3 | gcs | supabase | none
	Bucket         string        `yaml:"bucket"`
	Region         string        `yaml:"region"`
	Endpoint       string        `yaml:"endpoint"`
	UseSSL         bool          `yaml:"use_ssl"`
	PublicBaseURL  string        `yaml:"public_base_url"`
	LocalDir       string        `yaml:"local_dir"`
	AudioFolder    string        `yaml:"audio_folder"`
	ImageFolder    string        `yaml:"image_folder"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	ItemDelay      time.Duration `yaml:"item_delay"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
	AccessKey      string        `yaml:"-"`
	SecretKey      string        `yaml:"-"`
	SupabaseURL    string        `yaml:"-"`
	SupabaseKey    string        `yaml:"-"`
}

type RenderConfig struct {
	Enabled       bool   `yaml:"enabled"`
	FFmpeg        string `yaml:"ffmpeg_bin"`
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	FPS           int    `yaml:"fps"`
	FetchLimit    int    `yaml:"fetch_limit"`
	WorkDir       string `yaml:"work_dir"`
	BurnSubtitles bool   `yaml:"burn_subtitles"`
	Font          string `yaml:"font"`
	FontSize      int    `yaml:"font_size"`
}

type MetadataConfig struct {
	TitleMaxChars     int    `yaml:"title_max_chars"`
	TagsCount         int    `yaml:"tags_count"`
	YouTubeCategoryID string `yaml:"youtube_category_id"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	DefaultLanguage   string `yaml:"default_language"`
	ClientID          string `yaml:"-"`
	ClientSecret      string `yaml:"-"`
	RefreshToken      string `yaml:"-"`
}

type RateLimitConfig struct {
	Backend     string        `yaml:"backend"` // memory | redis | off
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type RedisConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Addr            string `yaml:"addr"`
	Password        string `yaml:"-"`
	DB              int    `yaml:"db"`
	ProgressChannel string `yaml:"progress_channel"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres | "" (off)
	DSN    string `yaml:"dsn"`
}

type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	Duration string `yaml:"duration"`
	Language string `yaml:"language"`
	Gender   string `yaml:"gender"`
	Style    string `yaml:"style"`
}

type PathsConfig struct {
	Output     string `yaml:"output"`
	Logs       string `yaml:"logs"`
	UsedTopics string `yaml:"used_topics"`
}

// Default returns a Config usable without any config file
func Default() *Config {
	return &Config{
		Research: ResearchConfig{
			StoryLookbackDays: 7,
			MinRedditScore:    100,
			MaxPrompts:        5,
		},
		Script: ScriptConfig{
			Links:       []string{"groq", "gemini", "huggingface"},
			GroqModel:   "llama-3.3-70b-versatile",
			GeminiModel: "gemini-2.5-flash",
			HFModels:    []string{"mistralai/Mistral-7B-Instruct-v0.2", "google/flan-t5-large"},
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Audio: AudioConfig{
			Provider:  "edge",
			EdgeTTS:   "edge-tts",
			FFprobe:   "ffprobe",
			GTTSURL:   "https://translate.google.com/translate_tts",
			OutputDir: "output/audio",
			Timeout:   60 * time.Second,
		},
		Visuals: VisualsConfig{
			Model:           "SDXL",
			Backends:        []string{"huggingface", "pollinations"},
			HFBaseURL:       "https://api-inference.huggingface.co",
			PollinationsURL: "https://image.pollinations.ai",
			NegativePrompt:  "blurry, bad quality, distorted, ugly, low resolution",
			Width:           1024,
			Height:          1024,
			Steps:           50,
			GuidanceScale:   7.5,
			ItemDelay:       time.Second,
			Timeout:         120 * time.Second,
		},
		Subtitles: SubtitlesConfig{
			BaseURL:        "https://api.assemblyai.com",
			SpeakerLabels:  false,
			PollInterval:   3 * time.Second,
			MaxWait:        10 * time.Minute,
			MaxWordsPerCue: 8,
		},
		Storage: StorageConfig{
			Provider:       "local",
			LocalDir:       "output/storage",
			AudioFolder:    "audio",
			ImageFolder:    "images",
			MaxAttempts:    3,
			BaseBackoff:    time.Second,
			MaxBackoff:     5 * time.Second,
			AttemptTimeout: 60 * time.Second,
			ItemDelay:      500 * time.Millisecond,
			JPEGQuality:    80,
		},
		Render: RenderConfig{
			FFmpeg:     "ffmpeg",
			Width:      1080,
			Height:     1920,
			FPS:        24,
			FetchLimit: 3,
			Font:       "Arial",
			FontSize:   14,
		},
		Metadata: MetadataConfig{
			TitleMaxChars:     100,
			TagsCount:         15,
			YouTubeCategoryID: "22",
		},
		Upload: UploadConfig{
			Visibility:      "private",
			DefaultLanguage: "en",
		},
		RateLimit: RateLimitConfig{
			Backend:     "memory",
			MaxRequests: 60,
			Window:      time.Minute,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			ProgressChannel: "pipeline:progress",
		},
		Schedule: ScheduleConfig{
			Cron:     "0 14 * * 2,5",
			Duration: "30s",
			Language: "en",
			Gender:   "female",
			Style:    "Cinematic",
		},
		Paths: PathsConfig{
			Output:     "output",
			Logs:       "logs",
			UsedTopics: "logs/used_topics.json",
		},
	}
}

// Load reads config.yaml over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Script.GroqAPIKey = getEnv("GROQ_API_KEY", c.Script.GroqAPIKey)
	c.Script.GeminiKey = getEnv("GEMINI_API_KEY", c.Script.GeminiKey)
	c.Script.HFAPIKey = getEnv("HUGGINGFACE_API_KEY", c.Script.HFAPIKey)
	c.Visuals.HFAPIKey = getEnv("HUGGINGFACE_API_KEY", c.Visuals.HFAPIKey)
	c.Subtitles.APIKey = getEnv("ASSEMBLYAI_API_KEY", c.Subtitles.APIKey)

	c.Storage.Provider = getEnv("STORAGE_PROVIDER", c.Storage.Provider)
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnv("STORAGE_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("STORAGE_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.SupabaseURL = getEnv("SUPABASE_URL", c.Storage.SupabaseURL)
	c.Storage.SupabaseKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", c.Storage.SupabaseKey)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		c.Redis.DB = db
	}

	c.Database.Driver = getEnv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)

	c.Research.RedditID = getEnv("REDDIT_CLIENT_ID", c.Research.RedditID)
	c.Research.RedditSecret = getEnv("REDDIT_CLIENT_SECRET", c.Research.RedditSecret)
	c.Research.RedditUsername = getEnv("REDDIT_USERNAME", c.Research.RedditUsername)
	c.Research.RedditPassword = getEnv("REDDIT_PASSWORD", c.Research.RedditPassword)

	c.Upload.ClientID = getEnv("YOUTUBE_CLIENT_ID", c.Upload.ClientID)
	c.Upload.ClientSecret = getEnv("YOUTUBE_CLIENT_SECRET", c.Upload.ClientSecret)
	c.Upload.RefreshToken = getEnv("YOUTUBE_REFRESH_TOKEN", c.Upload.RefreshToken)
}

var (
	storageProviders = []string{"none", "local", "minio", "s3", "gcs", "supabase"}
	limiterBackends  = []string{"off", "memory", "redis"}
	dbDrivers        = []string{"", "sqlite", "postgres"}
)

// Validate checks the enumerated settings
func (c *Config) Validate() error {
	if !oneOf(c.Storage.Provider, storageProviders) {
		return fmt.Errorf("storage.provider must be one of %s, got %q", strings.Join(storageProviders, "|"), c.Storage.Provider)
	}
	if !oneOf(c.RateLimit.Backend, limiterBackends) {
		return fmt.Errorf("rate_limit.backend must be one of %s, got %q", strings.Join(limiterBackends, "|"), c.RateLimit.Backend)
	}
	if !oneOf(c.Database.Driver, dbDrivers) {
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Storage.MaxAttempts < 1 {
		return fmt.Errorf("storage.max_attempts must be at least 1")
	}
	if c.Storage.JPEGQuality < 1 || c.Storage.JPEGQuality > 100 {
		return fmt.Errorf("storage.jpeg_quality must be within 1..100")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func oneOf(v string, list []string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
