package providers

import (
	"context"
	"fmt"
	"net/http"

	"outreach_gateway/internal/transport"
)

const (
	KindResend = "resend"

	resendDefaultBaseURL = "https://api.resend.com"
)

// ResendProvider calls the Resend emails API.
type ResendProvider struct {
	client  *transport.Client
	apiKey  Secret
	baseURL string
	from    string
}

// NewResend creates a Resend client
func NewResend(cfg Config, client *transport.Client) (EmailProvider, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	from, err := parseSender(cfg)
	if err != nil {
		return nil, err
	}
	return &ResendProvider{
		client:  client,
		apiKey:  cfg.APIKey,
		baseURL: baseURL(cfg, resendDefaultBaseURL),
		from:    from.String(),
	}, nil
}

func (p *ResendProvider) Kind() string { return KindResend }

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

// Send delivers one message
func (p *ResendProvider) Send(ctx context.Context, msg Email) (*SendResult, error) {
	if err := validateEmail(msg); err != nil {
		return nil, err
	}

	body := resendRequest{
		From:    p.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.apiKey.Reveal())

	var out resendResponse
	if _, err := postJSON(ctx, p.client, p.baseURL+"/emails", headers, body, &out); err != nil {
		return nil, fmt.Errorf("resend send: %w", err)
	}

	return &SendResult{MessageID: out.ID}, nil
}
