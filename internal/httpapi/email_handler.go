package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"outreach_gateway/internal/logging"
	"outreach_gateway/internal/middleware"
	"outreach_gateway/internal/models"
	"outreach_gateway/internal/providers"
	"outreach_gateway/internal/ratelimit"
	"outreach_gateway/internal/resolver"
	"outreach_gateway/internal/utils"
)

const (
	maxEmailsPerRequest = 100
	emailConcurrency    = 5
)

var errRateLimited = errors.New("rate limit exceeded")

// SendEmailRequest is the body of POST /v1/email/send
type SendEmailRequest struct {
	ProviderID string            `json:"provider_id,omitempty"`
	Messages   []providers.Email `json:"messages"`
}

// EmailResult reports the outcome for one recipient.
type EmailResult struct {
	To        string `json:"to"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendEmailResponse is returned by POST /v1/email/send
type SendEmailResponse struct {
	Sent     int                   `json:"sent"`
	Failed   int                   `json:"failed"`
	Results  []EmailResult         `json:"results"`
	Provider resolver.ProviderInfo `json:"provider"`
}

// handleSendEmail handles POST /v1/email/send. Each message counts against
// the email budget on its own; the response accounts for every recipient
// and is 207 when only some were accepted.
func (d *Dependencies) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req SendEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "messages is required")
		return
	}
	if len(req.Messages) > maxEmailsPerRequest {
		utils.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("at most %d messages per request", maxEmailsPerRequest))
		return
	}

	bound, err := d.Resolver.Resolve(r.Context(), tenantID, models.CapabilityEmail, req.ProviderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sender := bound.Email()

	ctx := r.Context()
	limit := d.limitFor(models.CapabilityEmail)
	key := ratelimit.Key(models.CapabilityEmail.String(), tenantID)

	results := make([]EmailResult, len(req.Messages))
	var (
		mu       sync.Mutex
		errs     *multierror.Error
		last     ratelimit.Decision
		limited  int
		upstream error
	)

	var g errgroup.Group
	g.SetLimit(emailConcurrency)
	for i, msg := range req.Messages {
		results[i].To = msg.To
		g.Go(func() error {
			decision := d.Limiter.CheckAndIncrement(ctx, key, limit.Requests, limit.Window)

			var (
				res *providers.SendResult
				err error
			)
			if decision.Allowed {
				res, err = sender.Send(ctx, msg)
			} else {
				err = errRateLimited
			}

			mu.Lock()
			defer mu.Unlock()
			last = decision
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", msg.To, err))
				if errors.Is(err, errRateLimited) {
					limited++
					results[i].Error = err.Error()
				} else {
					_, results[i].Error = statusFor(err)
					upstream = err
				}
				return nil
			}
			results[i].MessageID = res.MessageID
			return nil
		})
	}
	_ = g.Wait()

	setRateLimitHeaders(w, limit.Requests, last)

	failed := 0
	if errs != nil {
		failed = len(errs.Errors)
		logging.Warningf("email send tenant=%s request_id=%s: %d of %d failed: %v",
			tenantID, middleware.GetRequestID(ctx), failed, len(req.Messages), errs)
	}

	resp := SendEmailResponse{
		Sent:     len(req.Messages) - failed,
		Failed:   failed,
		Results:  results,
		Provider: bound.Info,
	}

	switch {
	case failed == 0:
		utils.RespondWithJSON(w, http.StatusOK, resp)
	case limited == len(req.Messages):
		respondRateLimited(w, last)
	case failed < len(req.Messages):
		utils.RespondWithJSON(w, http.StatusMultiStatus, resp)
	default:
		code, _ := statusFor(upstream)
		utils.RespondWithJSON(w, code, resp)
	}
}
