package upload_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	upload "prompt-video-pipeline/09_upload"
	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

func videoFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake mp4 bytes"), 0644))
	return path
}

func TestRun_UploadsWithSchedule(t *testing.T) {
	var body, path, notify string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		notify = r.URL.Query().Get("notifySubscribers")
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"vid123"}`))
	}))
	defer srv.Close()

	u := upload.NewWithOptions(config.UploadConfig{DefaultLanguage: "en"},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	md := &types.VideoMetadata{
		Title:            "Coffee in Yemen",
		Tags:             []string{"coffee"},
		CategoryID:       "22",
		Visibility:       "public",
		ScheduledTimeUTC: "2024-01-12T19:00:00Z",
	}

	id, url, err := u.Run(context.Background(), videoFile(t), md)
	require.NoError(t, err)
	assert.Equal(t, "vid123", id)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid123", url)
	assert.Contains(t, path, "videos")
	assert.Equal(t, "false", notify)
	assert.Contains(t, body, `"title":"Coffee in Yemen"`)
	assert.Contains(t, body, `"privacyStatus":"private"`)
	assert.Contains(t, body, `"publishAt":"2024-01-12T19:00:00Z"`)
	assert.Contains(t, body, "fake mp4 bytes")
}

func TestRun_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"quota"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	u := upload.NewWithOptions(config.UploadConfig{}, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	_, _, err := u.Run(context.Background(), videoFile(t), &types.VideoMetadata{Title: "x", Visibility: "private"})
	assert.ErrorIs(t, err, types.ErrUpstream)
}

func TestRun_MissingCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Upload.ClientID = ""

	_, _, err := upload.New(cfg).Run(context.Background(), videoFile(t), &types.VideoMetadata{Title: "x"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRun_MissingFile(t *testing.T) {
	u := upload.NewWithOptions(config.UploadConfig{}, option.WithEndpoint("http://127.0.0.1:1/"), option.WithHTTPClient(http.DefaultClient))
	_, _, err := u.Run(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), &types.VideoMetadata{Title: "x"})
	assert.ErrorIs(t, err, types.ErrValidation)
}
