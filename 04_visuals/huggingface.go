package visuals

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HFBackend calls the Hugging Face text-to-image inference API
type HFBackend struct {
	client *resty.Client
	apiKey string
}

func NewHFBackend(baseURL, apiKey string, timeout time.Duration) *HFBackend {
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "image/png")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HFBackend{client: client, apiKey: apiKey}
}

func (h *HFBackend) Name() string { return "huggingface" }

func (h *HFBackend) Generate(ctx context.Context, prompt, model string, opts Options) ([]byte, string, error) {
	if h.apiKey == "" {
		return nil, "", fmt.Errorf("HUGGINGFACE_API_KEY is not configured")
	}
	if isPollinationsModel(model) {
		return nil, "", fmt.Errorf("%s is not a hugging face model", model)
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"inputs": prompt,
			"parameters": map[string]interface{}{
				"negative_prompt":     opts.NegativePrompt,
				"width":               opts.Width,
				"height":              opts.Height,
				"num_inference_steps": opts.Steps,
				"guidance_scale":      opts.GuidanceScale,
			},
		}).
		Post("/models/" + model)
	if err != nil {
		return nil, "", fmt.Errorf("huggingface request: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("huggingface HTTP %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}
