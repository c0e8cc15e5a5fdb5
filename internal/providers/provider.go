package providers

import (
	"context"
	"encoding/json"
	"time"
)

// Secret is a decrypted credential. It formats as a placeholder so it cannot
// leak through logs, %v or JSON; Reveal returns the real value.
type Secret string

const redacted = "[redacted]"

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }
func (s Secret) Reveal() string   { return string(s) }

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

// Config is everything a factory needs to build a provider client.
type Config struct {
	ProviderID  string
	Kind        string
	DisplayName string
	BaseURL     string // empty means the vendor's public endpoint
	Model       string // AI only
	Sender      string // email only
	Options     map[string]any
	APIKey      Secret
}

// Option returns a string option, or "" when absent.
func (c Config) Option(key string) string {
	s, _ := c.Options[key].(string)
	return s
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest is a normalized text generation request.
type CompletionRequest struct {
	Model       string // overrides the configured model
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// CompletionResponse is a normalized text generation result.
type CompletionResponse struct {
	Text         string        `json:"text"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
}

// AIProvider is implemented by each text generation vendor.
type AIProvider interface {
	Kind() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Email is one message to one recipient.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// SendResult identifies an accepted message.
type SendResult struct {
	MessageID string `json:"message_id,omitempty"`
}

// EmailProvider is implemented by each email delivery vendor.
type EmailProvider interface {
	Kind() string
	Send(ctx context.Context, msg Email) (*SendResult, error)
}

// PeopleQuery describes a prospect search.
type PeopleQuery struct {
	Keywords string   `json:"keywords,omitempty"`
	Titles   []string `json:"titles,omitempty"`
	Domains  []string `json:"domains,omitempty"`
	Page     int      `json:"page,omitempty"`
	PerPage  int      `json:"per_page,omitempty"`
}

// Person is one search hit.
type Person struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title,omitempty"`
	Email        string `json:"email,omitempty"`
	LinkedInURL  string `json:"linkedin_url,omitempty"`
	Organization string `json:"organization,omitempty"`
	Domain       string `json:"domain,omitempty"`
}

// PeopleResult is one page of search hits.
type PeopleResult struct {
	People []Person `json:"people"`
	Total  int      `json:"total"`
	Page   int      `json:"page"`
}

// PeopleSearchProvider is implemented by each prospect data vendor.
type PeopleSearchProvider interface {
	Kind() string
	Search(ctx context.Context, q PeopleQuery) (*PeopleResult, error)
}
