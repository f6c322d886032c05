package types

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Supported request enumerations
const (
	Duration15s = "15s"
	Duration30s = "30s"
	Duration60s = "60s"

	GenderMale   = "male"
	GenderFemale = "female"

	StorageLocal  = "local"
	StorageRemote = "remote"
)

// IsRemoteURL reports whether s is an absolute http(s) URL
func IsRemoteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

var (
	SupportedDurations = []string{Duration15s, Duration30s, Duration60s}
	SupportedLanguages = []string{"en", "ar", "fr"}
	SupportedGenders   = []string{GenderMale, GenderFemale}
)

// GenerationRequest is the immutable input of one pipeline run
type GenerationRequest struct {
	Prompt     string `json:"prompt"`
	Platform   string `json:"platform"`
	Style      string `json:"style"`
	Duration   string `json:"duration"`
	Language   string `json:"language"`
	Gender     string `json:"gender"`
	ImageModel string `json:"image_model,omitempty"`
	CallerID   string `json:"caller_id,omitempty"`
}

// WithDefaults returns a copy with empty optional fields filled in
func (r GenerationRequest) WithDefaults() GenerationRequest {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Platform == "" {
		r.Platform = "YouTube"
	}
	if r.Style == "" {
		r.Style = "Cinematic"
	}
	if r.Duration == "" {
		r.Duration = Duration30s
	}
	if r.Language == "" {
		r.Language = "en"
	}
	if r.Gender == "" {
		r.Gender = GenderFemale
	}
	return r
}

// Validate checks the request before any external call is made
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return Errorf(KindValidation, "request", "prompt is required")
	}
	if !contains(SupportedDurations, r.Duration) {
		return Errorf(KindValidation, "request", "duration must be one of %s, got %q", strings.Join(SupportedDurations, ", "), r.Duration)
	}
	if !contains(SupportedLanguages, r.Language) {
		return Errorf(KindValidation, "request", "language must be one of %s, got %q", strings.Join(SupportedLanguages, ", "), r.Language)
	}
	if !contains(SupportedGenders, r.Gender) {
		return Errorf(KindValidation, "request", "gender must be one of %s, got %q", strings.Join(SupportedGenders, ", "), r.Gender)
	}
	return nil
}

// Scene is one narrative beat of the plan
type Scene struct {
	Number      int     `json:"sceneNumber"`
	Duration    float64 `json:"duration"`
	ImagePrompt string  `json:"imagePrompt"`
	Narration   string  `json:"narration"`
}

// ScriptPlan is the planner's output
type ScriptPlan struct {
	Script string  `json:"script"`
	Scenes []Scene `json:"scenes"`
	Source string  `json:"source,omitempty"`
}

// Narration joins scene narrations in scene-number order
func (p ScriptPlan) Narration() string {
	scenes := make([]Scene, len(p.Scenes))
	copy(scenes, p.Scenes)
	sort.SliceStable(scenes, func(i, j int) bool { return scenes[i].Number < scenes[j].Number })

	parts := make([]string, 0, len(scenes))
	for _, s := range scenes {
		if n := strings.TrimSpace(s.Narration); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " ")
}

// TotalSec sums the scene durations
func (p ScriptPlan) TotalSec() float64 {
	var total float64
	for _, s := range p.Scenes {
		total += s.Duration
	}
	return total
}

// ImagePrompts returns the image prompts in scene order
func (p ScriptPlan) ImagePrompts() []string {
	prompts := make([]string, len(p.Scenes))
	for i, s := range p.Scenes {
		prompts[i] = s.ImagePrompt
	}
	return prompts
}

// AudioArtifact is a synthesized speech file and, once uploaded, its URL
type AudioArtifact struct {
	LocalPath   string  `json:"local_path"`
	Provider    string  `json:"provider"`
	Voice       string  `json:"voice"`
	URL         string  `json:"url,omitempty"`
	Storage     string  `json:"storage,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// Caption is one word-level entry
type Caption struct {
	Text    string `json:"text"`
	StartMs int64  `json:"start"`
	EndMs   int64  `json:"end"`
	Speaker string `json:"speaker,omitempty"`
}

// CaptionSet is everything derived from one transcription
type CaptionSet struct {
	TranscriptID string    `json:"transcript_id"`
	Words        []Caption `json:"words"`
	SRT          string    `json:"srt"`
	VTT          string    `json:"vtt"`
	Text         string    `json:"text"`
	WordCount    int       `json:"word_count"`
	DurationSec  float64   `json:"duration_sec"`
}

// ImageResult is the outcome for one scene's image
type ImageResult struct {
	Index       int    `json:"index"`
	Prompt      string `json:"prompt"`
	Success     bool   `json:"success"`
	Data        []byte `json:"-"`
	ContentType string `json:"content_type,omitempty"`
	Model       string `json:"model,omitempty"`
	Err         error  `json:"-"`
}

// UploadResult is the outcome for one persisted artifact
type UploadResult struct {
	Success  bool   `json:"success"`
	URL      string `json:"url,omitempty"`
	Provider string `json:"provider"`
	Key      string `json:"key,omitempty"`
	Err      error  `json:"-"`
}

// Captions is the caller-facing subset of a CaptionSet
type Captions struct {
	SRT string `json:"srt"`
	VTT string `json:"vtt"`
}

// PipelineResult is the terminal aggregate; earlier stages stay populated on failure
type PipelineResult struct {
	Success   bool           `json:"success"`
	RunID     string         `json:"run_id"`
	Stage     string         `json:"stage"`
	Plan      *ScriptPlan    `json:"plan,omitempty"`
	Audio     *AudioArtifact `json:"audio,omitempty"`
	AudioURL  string         `json:"audio_url,omitempty"`
	Captions  *Captions      `json:"captions,omitempty"`
	ImageURLs []string       `json:"image_urls"`
	VideoPath string         `json:"video_path,omitempty"`
	Err       error          `json:"-"`
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Script returns the plan's narration script, or "" before planning
func (r PipelineResult) Script() string {
	if r.Plan == nil {
		return ""
	}
	return r.Plan.Script
}

// VideoMetadata holds publish metadata for an assembled video
type VideoMetadata struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Tags             []string `json:"tags"`
	CategoryID       string   `json:"category_id"`
	Visibility       string   `json:"visibility"`
	ScheduledTimeUTC string   `json:"scheduled_time_utc,omitempty"`
}

// Topic is a candidate prompt found by a research source
type Topic struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	Score       int       `json:"score"`
	PublishedAt time.Time `json:"published_at"`
}

// PipelineState is the run record written next to a run's outputs
type PipelineState struct {
	RunID       string            `json:"run_id"`
	StartedAt   string            `json:"started_at"`
	CompletedAt string            `json:"completed_at"`
	Request     GenerationRequest `json:"request"`
	Result      *PipelineResult   `json:"result,omitempty"`
	Metadata    *VideoMetadata    `json:"metadata,omitempty"`
	YouTubeURL  string            `json:"youtube_url,omitempty"`
	YouTubeID   string            `json:"youtube_id,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// SceneLabel is used in log lines
func SceneLabel(i, n int) string {
	return fmt.Sprintf("%d/%d", i+1, n)
}
