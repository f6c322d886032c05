package visuals

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// PollinationsBackend generates AI images via Pollinations.ai (free, no key needed)
type PollinationsBackend struct {
	client *resty.Client
}

func NewPollinationsBackend(baseURL string, timeout time.Duration) *PollinationsBackend {
	if baseURL == "" {
		baseURL = "https://image.pollinations.ai"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	// Pollinations occasionally times out
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; PromptVideoPipeline/1.0)")
	return &PollinationsBackend{client: client}
}

func (p *PollinationsBackend) Name() string { return "pollinations" }

// Generate fetches https://image.pollinations.ai/prompt/{encoded_prompt}?params
func (p *PollinationsBackend) Generate(ctx context.Context, prompt, model string, opts Options) ([]byte, string, error) {
	pm := "flux"
	if isPollinationsModel(model) {
		pm = strings.TrimPrefix(model, pollinationsPrefix)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"width":  strconv.Itoa(opts.Width),
			"height": strconv.Itoa(opts.Height),
			"nologo": "true",
			"model":  pm,
			"seed":   strconv.FormatUint(uint64(seedFor(prompt)), 10),
		}).
		Get("/prompt/" + url.PathEscape(prompt))
	if err != nil {
		return nil, "", fmt.Errorf("pollinations request: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("HTTP %d from Pollinations", resp.StatusCode())
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// seedFor keeps the same prompt rendering the same image across retries
func seedFor(prompt string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return h.Sum32() % 1000000
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
