package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"outreach_gateway/internal/transport"
)

const (
	KindGemini = "gemini"

	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"
	geminiDefaultModel   = "gemini-1.5-flash"
)

// GeminiProvider calls the generateContent API.
type GeminiProvider struct {
	client  *transport.Client
	apiKey  Secret
	baseURL string
	model   string
}

// NewGemini creates a Gemini client
func NewGemini(cfg Config, client *transport.Client) (AIProvider, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	return &GeminiProvider{
		client:  client,
		apiKey:  cfg.APIKey,
		baseURL: baseURL(cfg, geminiDefaultBaseURL),
		model:   modelFor(CompletionRequest{}, cfg, geminiDefaultModel),
	}, nil
}

func (p *GeminiProvider) Kind() string { return KindGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Complete sends a generateContent request
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := validateCompletion(req); err != nil {
		return nil, err
	}
	start := time.Now()

	model := modelFor(req, Config{Model: p.model}, geminiDefaultModel)

	body := geminiRequest{}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.MaxTokens > 0 || req.Temperature != nil {
		body.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens, Temperature: req.Temperature}
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", p.apiKey.Reveal())

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(model))

	var out geminiResponse
	if _, err := postJSON(ctx, p.client, endpoint, headers, body, &out); err != nil {
		return nil, fmt.Errorf("gemini completion: %w", err)
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("gemini completion: %w", ErrEmptyResponse)
	}

	var text strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	if out.ModelVersion != "" {
		model = out.ModelVersion
	}

	return &CompletionResponse{
		Text:         text.String(),
		Model:        model,
		InputTokens:  out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
		Latency:      time.Since(start),
	}, nil
}
