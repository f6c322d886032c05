package subtitles

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

// Captioner transcribes hosted audio with AssemblyAI and builds SRT/VTT
type Captioner struct {
	client       *resty.Client
	apiKey       string
	pollInterval time.Duration
	maxWait      time.Duration
	maxWords     int
}

func New(cfg *config.Config) *Captioner {
	sc := cfg.Subtitles
	return NewWithClient(sc.BaseURL, sc.APIKey, sc.PollInterval, sc.MaxWordsPerCue).WithMaxWait(sc.MaxWait)
}

func NewWithClient(baseURL, apiKey string, pollInterval time.Duration, maxWords int) *Captioner {
	if baseURL == "" {
		baseURL = "https://api.assemblyai.com"
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60*time.Second).
		SetHeader("authorization", apiKey)
	return &Captioner{client: client, apiKey: apiKey, pollInterval: pollInterval, maxWait: 10 * time.Minute, maxWords: maxWords}
}

// WithMaxWait bounds how long a transcript may stay queued or processing
func (c *Captioner) WithMaxWait(d time.Duration) *Captioner {
	if d > 0 {
		c.maxWait = d
	}
	return c
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	SpeakerLabels     bool   `json:"speaker_labels"`
	LanguageCode      string `json:"language_code,omitempty"`
	LanguageDetection bool   `json:"language_detection,omitempty"`
}

type transcriptWord struct {
	Text    string `json:"text"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Speaker string `json:"speaker"`
}

type transcript struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	Text          string           `json:"text"`
	Words         []transcriptWord `json:"words"`
	AudioDuration float64          `json:"audio_duration"`
	Error         string           `json:"error"`
}

// Transcribe submits audioURL, waits for completion and returns word captions
// plus SRT and VTT. language "auto" or "" enables language detection.
func (c *Captioner) Transcribe(ctx context.Context, audioURL, language string, speakerLabels bool) (types.CaptionSet, error) {
	if !types.IsRemoteURL(audioURL) {
		return types.CaptionSet{}, types.Errorf(types.KindValidation, "transcribe", "audio must be a public http(s) URL, got %q", audioURL)
	}
	if c.apiKey == "" {
		return types.CaptionSet{}, types.Errorf(types.KindValidation, "transcribe", "ASSEMBLYAI_API_KEY is not configured")
	}

	req := transcriptRequest{AudioURL: audioURL, SpeakerLabels: speakerLabels}
	if language == "" || language == "auto" {
		req.LanguageDetection = true
	} else {
		req.LanguageCode = language
	}

	log.Printf("[subtitles] Starting transcription with AssemblyAI (%s)...", audioURL)
	var submitted transcript
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&submitted).
		Post("/v2/transcript")
	if err != nil {
		return types.CaptionSet{}, types.Wrap(types.KindUpstream, "transcribe", err)
	}
	if resp.IsError() {
		return types.CaptionSet{}, types.Errorf(types.KindUpstream, "transcribe", "AssemblyAI HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.maxWait)
	tr, err := c.wait(waitCtx, submitted.ID)
	timedOut := ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded)
	cancel()
	if timedOut {
		return types.CaptionSet{}, types.Errorf(types.KindUpstream, "transcribe", "transcript %s not ready after %s", submitted.ID, c.maxWait)
	}
	if err != nil {
		return types.CaptionSet{}, err
	}

	set := types.CaptionSet{
		TranscriptID: tr.ID,
		Text:         tr.Text,
		WordCount:    len(tr.Words),
		DurationSec:  tr.AudioDuration,
	}
	for _, w := range tr.Words {
		set.Words = append(set.Words, types.Caption{Text: w.Text, StartMs: w.Start, EndMs: w.End, Speaker: w.Speaker})
	}

	set.SRT = c.export(ctx, tr.ID, "srt")
	if err := ValidateSRT(set.SRT); err != nil {
		if set.SRT != "" {
			log.Printf("[subtitles] ⚠️  Provider SRT rejected, building from words: %v", err)
		}
		set.SRT = BuildSRT(set.Words, c.maxWords)
	}
	set.VTT = c.export(ctx, tr.ID, "vtt")
	if set.VTT == "" {
		set.VTT = BuildVTT(set.Words, c.maxWords)
	}

	log.Printf("[subtitles] ✅ Transcript %s: %d words, %.1fs", tr.ID, set.WordCount, set.DurationSec)
	return set, nil
}

func (c *Captioner) wait(ctx context.Context, id string) (transcript, error) {
	if id == "" {
		return transcript{}, types.Errorf(types.KindUpstream, "transcribe", "AssemblyAI returned no transcript id")
	}
	for {
		var tr transcript
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&tr).
			Get("/v2/transcript/" + id)
		if err != nil {
			return transcript{}, types.Wrap(types.KindUpstream, "transcribe", err)
		}
		if resp.IsError() {
			return transcript{}, types.Errorf(types.KindUpstream, "transcribe", "AssemblyAI HTTP %d polling %s", resp.StatusCode(), id)
		}

		switch tr.Status {
		case "completed":
			return tr, nil
		case "error":
			return transcript{}, types.Errorf(types.KindUpstream, "transcribe", "Transcription failed: %s", tr.Error)
		}

		t := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return transcript{}, types.Wrap(types.KindCancelled, "transcribe", ctx.Err())
		case <-t.C:
		}
	}
}

// export fetches a subtitle rendering; failure yields "" for that format only
func (c *Captioner) export(ctx context.Context, id, format string) string {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/v2/transcript/%s/%s", id, format))
	if err != nil {
		log.Printf("[subtitles] ⚠️  %s export failed: %v", strings.ToUpper(format), err)
		return ""
	}
	if resp.IsError() {
		log.Printf("[subtitles] ⚠️  %s export failed: HTTP %d", strings.ToUpper(format), resp.StatusCode())
		return ""
	}
	return resp.String()
}
