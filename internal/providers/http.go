package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"outreach_gateway/internal/transport"
)

// maxResponseBody caps how much of a vendor response is read.
const maxResponseBody = 8 << 20

// postJSON sends body as JSON through client and decodes a 2xx answer into
// out, which may be nil. Non-2xx answers come back as *transport.StatusError.
func postJSON(ctx context.Context, client *transport.Client, url string, headers http.Header, body, out any) (http.Header, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.DoRead(ctx, req, transport.Options{}, maxResponseBody)
	if err != nil {
		return nil, err
	}
	if err := transport.CheckStatus(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return resp.Header, ErrEmptyResponse
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Header, nil
}

func baseURL(cfg Config, fallback string) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return fallback
}

func requireKey(cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("%w for %s", ErrMissingCredential, cfg.Kind)
	}
	return nil
}

func modelFor(req CompletionRequest, cfg Config, fallback string) string {
	switch {
	case req.Model != "":
		return req.Model
	case cfg.Model != "":
		return cfg.Model
	default:
		return fallback
	}
}

func validateCompletion(req CompletionRequest) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}
	return nil
}

func validateEmail(msg Email) error {
	if msg.To == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidRequest)
	}
	if msg.Text == "" && msg.HTML == "" {
		return fmt.Errorf("%w: text or html body is required", ErrInvalidRequest)
	}
	return nil
}
