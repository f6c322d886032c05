package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-video-pipeline/config"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, 3, cfg.Storage.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Storage.MaxBackoff)
	assert.Equal(t, 80, cfg.Storage.JPEGQuality)
	assert.Equal(t, 1080, cfg.Render.Width)
	assert.Equal(t, 1920, cfg.Render.Height)
	assert.Equal(t, 24, cfg.Render.FPS)
	assert.Equal(t, 60, cfg.RateLimit.MaxRequests)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := `
storage:
  provider: minio
  bucket: assets
  item_delay: 250ms
visuals:
  model: FLUX_SCHNELL
render:
  fps: 30
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0644))
	t.Setenv("STORAGE_BUCKET", "from-env")
	t.Setenv("ASSEMBLYAI_API_KEY", "aai-key")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "minio", cfg.Storage.Provider)
	assert.Equal(t, "from-env", cfg.Storage.Bucket)
	assert.Equal(t, 250*time.Millisecond, cfg.Storage.ItemDelay)
	assert.Equal(t, "FLUX_SCHNELL", cfg.Visuals.Model)
	assert.Equal(t, 30, cfg.Render.FPS)
	assert.Equal(t, 1920, cfg.Render.Height, "unset keys keep defaults")
	assert.Equal(t, "aai-key", cfg.Subtitles.APIKey)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  provider: ftp\n"), 0644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
