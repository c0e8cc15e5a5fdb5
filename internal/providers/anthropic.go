package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"outreach_gateway/internal/transport"
)

const (
	KindAnthropic = "anthropic"

	anthropicDefaultBaseURL   = "https://api.anthropic.com"
	anthropicDefaultModel     = "claude-3-5-haiku-latest"
	anthropicVersion          = "2023-06-01"
	anthropicDefaultMaxTokens = 1024
)

// AnthropicProvider calls the messages API.
type AnthropicProvider struct {
	client  *transport.Client
	apiKey  Secret
	baseURL string
	model   string
}

// NewAnthropic creates an Anthropic client
func NewAnthropic(cfg Config, client *transport.Client) (AIProvider, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	return &AnthropicProvider{
		client:  client,
		apiKey:  cfg.APIKey,
		baseURL: baseURL(cfg, anthropicDefaultBaseURL),
		model:   modelFor(CompletionRequest{}, cfg, anthropicDefaultModel),
	}, nil
}

func (p *AnthropicProvider) Kind() string { return KindAnthropic }

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a messages request
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := validateCompletion(req); err != nil {
		return nil, err
	}
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	body := anthropicRequest{
		Model:       modelFor(req, Config{Model: p.model}, anthropicDefaultModel),
		System:      req.System,
		Messages:    req.Messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	headers := http.Header{}
	headers.Set("x-api-key", p.apiKey.Reveal())
	headers.Set("anthropic-version", anthropicVersion)

	var out anthropicResponse
	if _, err := postJSON(ctx, p.client, p.baseURL+"/v1/messages", headers, body, &out); err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic completion: %w", ErrEmptyResponse)
	}

	return &CompletionResponse{
		Text:         text.String(),
		Model:        out.Model,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		Latency:      time.Since(start),
	}, nil
}
