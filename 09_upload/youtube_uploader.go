package upload

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

// Uploader publishes assembled videos via the YouTube Data API v3
type Uploader struct {
	cfg  config.UploadConfig
	opts []option.ClientOption
}

// New creates an Uploader authenticated with the configured refresh token
func New(cfg *config.Config) *Uploader {
	return &Uploader{cfg: cfg.Upload}
}

// NewWithOptions skips OAuth and builds the service from opts, e.g. an
// endpoint and HTTP client of a test server
func NewWithOptions(cfg config.UploadConfig, opts ...option.ClientOption) *Uploader {
	return &Uploader{cfg: cfg, opts: opts}
}

// Run uploads the video file with its metadata and returns the video id and URL
func (u *Uploader) Run(ctx context.Context, videoFile string, md *types.VideoMetadata) (string, string, error) {
	if md == nil {
		return "", "", types.Errorf(types.KindValidation, "youtube upload", "metadata is required")
	}

	svc, err := u.service(ctx)
	if err != nil {
		return "", "", err
	}

	log.Printf("[upload] Uploading: %q", md.Title)

	snippet := &youtube.VideoSnippet{
		Title:                md.Title,
		Description:          md.Description,
		Tags:                 md.Tags,
		CategoryId:           md.CategoryID,
		DefaultLanguage:      u.cfg.DefaultLanguage,
		DefaultAudioLanguage: u.cfg.DefaultLanguage,
	}

	status := &youtube.VideoStatus{
		PrivacyStatus:           md.Visibility,
		SelfDeclaredMadeForKids: u.cfg.MadeForKids,
	}

	// YouTube only schedules private videos
	if md.ScheduledTimeUTC != "" && md.Visibility == "public" {
		status.PrivacyStatus = "private"
		status.PublishAt = md.ScheduledTimeUTC
		log.Printf("[upload] Scheduled for: %s UTC", md.ScheduledTimeUTC)
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", "", types.Wrap(types.KindValidation, "youtube upload", fmt.Errorf("open video file: %w", err))
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		log.Printf("[upload] File size: %.1f MB", float64(fi.Size())/1024/1024)
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, &youtube.Video{Snippet: snippet, Status: status}).
		NotifySubscribers(u.cfg.NotifySubscribers).
		Media(f).
		Context(ctx)

	uploaded, err := call.Do()
	if err != nil {
		return "", "", types.Wrap(types.KindUpstream, "youtube upload", err)
	}

	videoURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id)
	log.Printf("[upload] ✅ Uploaded %s", videoURL)
	return uploaded.Id, videoURL, nil
}

func (u *Uploader) service(ctx context.Context) (*youtube.Service, error) {
	if len(u.opts) > 0 {
		svc, err := youtube.NewService(ctx, u.opts...)
		if err != nil {
			return nil, fmt.Errorf("youtube service: %w", err)
		}
		return svc, nil
	}

	log.Println("[upload] Authenticating with YouTube API...")
	if u.cfg.ClientID == "" || u.cfg.ClientSecret == "" || u.cfg.RefreshToken == "" {
		return nil, types.Errorf(types.KindValidation, "youtube auth",
			"YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     u.cfg.ClientID,
		ClientSecret: u.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	// expired token forces a refresh on first use
	token := &oauth2.Token{
		RefreshToken: u.cfg.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}
