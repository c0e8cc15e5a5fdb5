package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"outreach_gateway/internal/transport"
)

const (
	KindOpenAI = "openai"

	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o-mini"
)

// OpenAIProvider calls the chat completions API.
type OpenAIProvider struct {
	client  *transport.Client
	apiKey  Secret
	baseURL string
	model   string
}

// NewOpenAI creates an OpenAI client
func NewOpenAI(cfg Config, client *transport.Client) (AIProvider, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	return &OpenAIProvider{
		client:  client,
		apiKey:  cfg.APIKey,
		baseURL: baseURL(cfg, openAIDefaultBaseURL),
		model:   modelFor(CompletionRequest{}, cfg, openAIDefaultModel),
	}, nil
}

func (p *OpenAIProvider) Kind() string { return KindOpenAI }

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends a chat completion request
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := validateCompletion(req); err != nil {
		return nil, err
	}
	start := time.Now()

	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	body := openAIRequest{
		Model:       modelFor(req, Config{Model: p.model}, openAIDefaultModel),
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.apiKey.Reveal())

	var out openAIResponse
	if _, err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", headers, body, &out); err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: %w", ErrEmptyResponse)
	}

	return &CompletionResponse{
		Text:         out.Choices[0].Message.Content,
		Model:        out.Model,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
		Latency:      time.Since(start),
	}, nil
}
