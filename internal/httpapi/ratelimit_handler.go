package httpapi

import (
	"net/http"

	"outreach_gateway/internal/models"
	"outreach_gateway/internal/ratelimit"
	"outreach_gateway/internal/utils"
)

// RateLimitUsage is the tenant's standing in the current window.
type RateLimitUsage struct {
	Capability    string `json:"capability"`
	Limit         int    `json:"limit"`
	WindowSeconds int64  `json:"window_seconds"`
	Used          int64  `json:"used"`
}

// rateLimitTarget parses the capability path value and returns the
// counter key for the caller's tenant.
func (d *Dependencies) rateLimitTarget(w http.ResponseWriter, r *http.Request) (models.Capability, string, bool) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return "", "", false
	}
	capability, err := models.ParseCapability(r.PathValue("capability"))
	if err != nil {
		respondError(w, r, err)
		return "", "", false
	}
	return capability, ratelimit.Key(capability.String(), tenantID), true
}

func (d *Dependencies) inspector(w http.ResponseWriter) (ratelimit.Inspector, bool) {
	insp, ok := d.Limiter.(ratelimit.Inspector)
	if !ok {
		utils.RespondWithError(w, http.StatusNotImplemented, "Rate limit counters are not inspectable")
	}
	return insp, ok
}

// handleGetRateLimit handles GET /v1/ratelimits/{capability}
func (d *Dependencies) handleGetRateLimit(w http.ResponseWriter, r *http.Request) {
	capability, key, ok := d.rateLimitTarget(w, r)
	if !ok {
		return
	}
	insp, ok := d.inspector(w)
	if !ok {
		return
	}

	used, err := insp.GetCurrentUsage(r.Context(), key)
	if err != nil {
		respondUnavailable(w, r, "Rate limit store unavailable", err)
		return
	}

	limit := d.limitFor(capability)
	utils.RespondWithJSON(w, http.StatusOK, RateLimitUsage{
		Capability:    capability.String(),
		Limit:         limit.Requests,
		WindowSeconds: int64(limit.Window.Seconds()),
		Used:          used,
	})
}

// handleResetRateLimit handles DELETE /v1/ratelimits/{capability}
func (d *Dependencies) handleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	_, key, ok := d.rateLimitTarget(w, r)
	if !ok {
		return
	}
	insp, ok := d.inspector(w)
	if !ok {
		return
	}

	if err := insp.Reset(r.Context(), key); err != nil {
		respondUnavailable(w, r, "Rate limit store unavailable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
