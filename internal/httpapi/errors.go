package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"outreach_gateway/internal/logging"
	"outreach_gateway/internal/middleware"
	"outreach_gateway/internal/models"
	"outreach_gateway/internal/providers"
	"outreach_gateway/internal/ratelimit"
	"outreach_gateway/internal/resolver"
	"outreach_gateway/internal/settings"
	"outreach_gateway/internal/storage"
	"outreach_gateway/internal/transport"
	"outreach_gateway/internal/utils"
)

const maxRequestBody = 1 << 20

// statusFor maps a service error to an HTTP status and a message safe to
// show the tenant.
func statusFor(err error) (int, string) {
	var (
		notConfigured *resolver.NotConfiguredError
		statusErr     *transport.StatusError
		timeoutErr    *transport.TimeoutError
		retryErr      *transport.RetryError
	)

	switch {
	case errors.As(err, &notConfigured):
		return http.StatusPreconditionFailed, notConfigured.Error()
	case errors.Is(err, models.ErrInvalidCapability),
		errors.Is(err, settings.ErrInvalidInput),
		errors.Is(err, settings.ErrCredentialRequired),
		errors.Is(err, providers.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, storage.ErrProviderNotFound):
		return http.StatusNotFound, "Provider not found"
	case errors.Is(err, storage.ErrDefaultConflict):
		return http.StatusConflict, "Another provider became the default concurrently, retry"
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, fmt.Sprintf("Upstream provider returned %d", statusErr.StatusCode)
	case errors.As(err, &timeoutErr), errors.Is(err, transport.ErrCanceled):
		return http.StatusGatewayTimeout, "Upstream provider timed out"
	case errors.As(err, &retryErr), errors.Is(err, providers.ErrEmptyResponse):
		return http.StatusBadGateway, "Upstream provider unavailable"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.Errorf("%s %s request_id=%s: %v", r.Method, r.URL.Path, middleware.GetRequestID(r.Context()), err)
	} else {
		logging.Debugf("%s %s request_id=%s: %v", r.Method, r.URL.Path, middleware.GetRequestID(r.Context()), err)
	}
	utils.RespondWithError(w, code, msg)
}

// respondUnavailable reports a dependency outage as 503.
func respondUnavailable(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.Warningf("%s %s request_id=%s: %v", r.Method, r.URL.Path, middleware.GetRequestID(r.Context()), err)
	utils.RespondWithError(w, http.StatusServiceUnavailable, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			utils.RespondWithError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// tenantFrom returns the tenant the JWT middleware put in the context.
func tenantFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := middleware.GetTenantID(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing tenant")
		return "", false
	}
	return tenantID, true
}

func actorFrom(r *http.Request, tenantID string) settings.Actor {
	userID, _ := middleware.GetUserID(r.Context())
	return settings.Actor{
		TenantID:  tenantID,
		ActorID:   userID,
		RequestID: middleware.GetRequestID(r.Context()),
	}
}

// setRateLimitHeaders describes d on w. Unlimited decisions carry none.
func setRateLimitHeaders(w http.ResponseWriter, limit int, d ratelimit.Decision) {
	if d.Remaining < 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func respondRateLimited(w http.ResponseWriter, d ratelimit.Decision) {
	retryAfter := int(time.Until(d.ResetAt).Seconds()) + 1
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	utils.RespondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
}

// allow charges one call against the tenant's budget for capability and
// writes a 429 when it is exhausted.
func (d *Dependencies) allow(w http.ResponseWriter, r *http.Request, tenantID string, capability models.Capability) bool {
	limit := d.limitFor(capability)
	decision := d.Limiter.CheckAndIncrement(r.Context(), ratelimit.Key(capability.String(), tenantID), limit.Requests, limit.Window)
	setRateLimitHeaders(w, limit.Requests, decision)
	if !decision.Allowed {
		respondRateLimited(w, decision)
		return false
	}
	return true
}
