package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"outreach_gateway/internal/transport"
)

const (
	KindSendGrid = "sendgrid"

	sendGridDefaultBaseURL = "https://api.sendgrid.com"
)

// SendGridProvider calls the v3 mail send API.
type SendGridProvider struct {
	client  *transport.Client
	apiKey  Secret
	baseURL string
	from    *mail.Address
}

// NewSendGrid creates a SendGrid client
func NewSendGrid(cfg Config, client *transport.Client) (EmailProvider, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	from, err := parseSender(cfg)
	if err != nil {
		return nil, err
	}
	return &SendGridProvider{
		client:  client,
		apiKey:  cfg.APIKey,
		baseURL: baseURL(cfg, sendGridDefaultBaseURL),
		from:    from,
	}, nil
}

func (p *SendGridProvider) Kind() string { return KindSendGrid }

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// Send delivers one message
func (p *SendGridProvider) Send(ctx context.Context, msg Email) (*SendResult, error) {
	if err := validateEmail(msg); err != nil {
		return nil, err
	}

	body := sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: msg.To}}}},
		From:             sendGridAddress{Email: p.from.Address, Name: p.from.Name},
		Subject:          msg.Subject,
	}
	if msg.ReplyTo != "" {
		body.ReplyTo = &sendGridAddress{Email: msg.ReplyTo}
	}
	// text/plain must come before text/html
	if msg.Text != "" {
		body.Content = append(body.Content, sendGridContent{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		body.Content = append(body.Content, sendGridContent{Type: "text/html", Value: msg.HTML})
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.apiKey.Reveal())

	respHeaders, err := postJSON(ctx, p.client, p.baseURL+"/v3/mail/send", headers, body, nil)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}

	return &SendResult{MessageID: respHeaders.Get("X-Message-Id")}, nil
}

func parseSender(cfg Config) (*mail.Address, error) {
	if cfg.Sender == "" {
		return nil, ErrMissingSender
	}
	addr, err := mail.ParseAddress(cfg.Sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMissingSender, cfg.Sender, err)
	}
	return addr, nil
}
