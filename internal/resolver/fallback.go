package resolver

import (
	"outreach_gateway/internal/config"
	"outreach_gateway/internal/providers"
)

// FallbackPriority is the order in which deployment-wide AI keys are tried
// when a tenant has no AI provider of its own.
var FallbackPriority = []string{
	providers.KindOpenAI,
	providers.KindAnthropic,
	providers.KindGemini,
}

// Fallback is an operator-supplied AI key.
type Fallback struct {
	Kind   string
	APIKey string
	Model  string
}

// FallbacksFromConfig returns the configured deployment keys in
// FallbackPriority order. Kinds without a key are skipped.
func FallbacksFromConfig(cfg config.FallbackConfig) []Fallback {
	byKind := map[string]Fallback{
		providers.KindOpenAI:    {Kind: providers.KindOpenAI, APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel},
		providers.KindAnthropic: {Kind: providers.KindAnthropic, APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel},
		providers.KindGemini:    {Kind: providers.KindGemini, APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel},
	}

	var out []Fallback
	for _, kind := range FallbackPriority {
		if fb := byKind[kind]; fb.APIKey != "" {
			out = append(out, fb)
		}
	}
	return out
}
