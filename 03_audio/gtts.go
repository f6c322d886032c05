package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const gttsMaxChars = 200

// GTTSBackend uses the Google Translate TTS endpoint. The endpoint only accepts
// short text, so narration is split into chunks and the mp3 frames are joined.
type GTTSBackend struct {
	client *resty.Client
	url    string
}

func NewGTTSBackend(url string, timeout time.Duration) *GTTSBackend {
	if url == "" {
		url = "https://translate.google.com/translate_tts"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; PromptVideoPipeline/1.0)")
	return &GTTSBackend{client: client, url: url}
}

func (g *GTTSBackend) Name() string { return ProviderGTTS }

func (g *GTTSBackend) Synthesize(ctx context.Context, text, language, gender, outFile string) (string, error) {
	chunks := ChunkText(text, gttsMaxChars)
	var audio bytes.Buffer
	for i, chunk := range chunks {
		resp, err := g.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"ie":      "UTF-8",
				"client":  "tw-ob",
				"tl":      language,
				"q":       chunk,
				"total":   strconv.Itoa(len(chunks)),
				"idx":     strconv.Itoa(i),
				"textlen": strconv.Itoa(len(chunk)),
			}).
			Get(g.url)
		if err != nil {
			return "", fmt.Errorf("gtts chunk %d: %w", i, err)
		}
		if resp.IsError() {
			return "", fmt.Errorf("gtts chunk %d: HTTP %d", i, resp.StatusCode())
		}
		audio.Write(resp.Body())
	}
	if err := os.WriteFile(outFile, audio.Bytes(), 0644); err != nil {
		return "", err
	}
	// gTTS has a single voice per language
	return "gtts-" + language, nil
}

// ChunkText splits text at word boundaries into pieces of at most limit runes.
// Words longer than limit are split hard.
func ChunkText(text string, limit int) []string {
	var chunks []string
	var cur []rune
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			chunks = append(chunks, s)
		}
		cur = cur[:0]
	}
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > limit {
			flush()
			chunks = append(chunks, string(w[:limit]))
			w = w[limit:]
		}
		if len(cur) > 0 && len(cur)+1+len(w) > limit {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
	}
	flush()
	return chunks
}
