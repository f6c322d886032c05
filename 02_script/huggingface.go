package script

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const hfBaseURL = "https://api-inference.huggingface.co"

// HFLink calls the Hugging Face text-generation inference API for one model
type HFLink struct {
	client      *resty.Client
	model       string
	temperature float64
}

func NewHFLink(apiKey, model string, temperature float64, timeout time.Duration) *HFLink {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(hfBaseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey)
	return &HFLink{client: client, model: model, temperature: temperature}
}

func (h *HFLink) WithBaseURL(url string) *HFLink {
	h.client.SetBaseURL(url)
	return h
}

func (h *HFLink) Name() string { return "huggingface:" + h.model }

type hfGenerated struct {
	GeneratedText string `json:"generated_text"`
}

func (h *HFLink) Attempt(ctx context.Context, system, prompt string) (string, error) {
	var out []hfGenerated
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"inputs": system + "\n\n" + prompt,
			"parameters": map[string]interface{}{
				"max_new_tokens":   2000,
				"temperature":      h.temperature,
				"return_full_text": false,
			},
		}).
		SetResult(&out).
		Post("/models/" + h.model)
	if err != nil {
		return "", fmt.Errorf("huggingface request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("huggingface HTTP %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	if len(out) == 0 || out[0].GeneratedText == "" {
		return "", fmt.Errorf("huggingface returned no text")
	}
	return out[0].GeneratedText, nil
}
