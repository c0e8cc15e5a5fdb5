package httpapi

import (
	"net/http"
	"time"

	"outreach_gateway/internal/models"
	"outreach_gateway/internal/providers"
	"outreach_gateway/internal/resolver"
	"outreach_gateway/internal/utils"
)

// CompleteRequest is the body of POST /v1/ai/complete. Prompt is shorthand
// for a single user message.
type CompleteRequest struct {
	ProviderID  string              `json:"provider_id,omitempty"`
	Model       string              `json:"model,omitempty"`
	System      string              `json:"system,omitempty"`
	Prompt      string              `json:"prompt,omitempty"`
	Messages    []providers.Message `json:"messages,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
}

// CompleteResponse is returned by POST /v1/ai/complete
type CompleteResponse struct {
	Text         string                `json:"text"`
	Model        string                `json:"model"`
	InputTokens  int                   `json:"input_tokens"`
	OutputTokens int                   `json:"output_tokens"`
	LatencyMs    int64                 `json:"latency_ms"`
	Provider     resolver.ProviderInfo `json:"provider"`
}

// handleComplete handles POST /v1/ai/complete
func (d *Dependencies) handleComplete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req CompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	messages := req.Messages
	if req.Prompt != "" {
		messages = append(messages, providers.Message{Role: "user", Content: req.Prompt})
	}
	if len(messages) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "prompt or messages is required")
		return
	}

	if !d.allow(w, r, tenantID, models.CapabilityAI) {
		return
	}

	bound, err := d.Resolver.Resolve(r.Context(), tenantID, models.CapabilityAI, req.ProviderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	start := time.Now()
	resp, err := bound.AI().Complete(r.Context(), providers.CompletionRequest{
		Model:       req.Model,
		System:      req.System,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	latency := resp.Latency
	if latency == 0 {
		latency = time.Since(start)
	}

	utils.RespondWithJSON(w, http.StatusOK, CompleteResponse{
		Text:         resp.Text,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		LatencyMs:    latency.Milliseconds(),
		Provider:     bound.Info,
	})
}
