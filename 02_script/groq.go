package script

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqLink calls Groq's OpenAI-compatible chat completions endpoint
type GroqLink struct {
	client      *resty.Client
	model       string
	temperature float64
}

func NewGroqLink(apiKey, model string, temperature float64, timeout time.Duration) *GroqLink {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(groqBaseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &GroqLink{client: client, model: model, temperature: temperature}
}

// WithBaseURL points the link at another endpoint
func (g *GroqLink) WithBaseURL(url string) *GroqLink {
	g.client.SetBaseURL(url)
	return g
}

func (g *GroqLink) Name() string { return "groq:" + g.model }

type groqRequest struct {
	Model          string            `json:"model"`
	Messages       []groqMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *GroqLink) Attempt(ctx context.Context, system, prompt string) (string, error) {
	var out groqResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(groqRequest{
			Model: g.model,
			Messages: []groqMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: prompt},
			},
			Temperature:    g.temperature,
			MaxTokens:      4096,
			ResponseFormat: map[string]string{"type": "json_object"},
		}).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("groq request: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("groq error: %s", out.Error.Message)
	}
	if resp.IsError() {
		return "", fmt.Errorf("groq HTTP %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
