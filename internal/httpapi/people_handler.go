package httpapi

import (
	"net/http"

	"outreach_gateway/internal/models"
	"outreach_gateway/internal/providers"
	"outreach_gateway/internal/utils"
)

// PeopleSearchRequest is the body of POST /v1/people/search
type PeopleSearchRequest struct {
	ProviderID string `json:"provider_id,omitempty"`
	providers.PeopleQuery
}

// handlePeopleSearch handles POST /v1/people/search
func (d *Dependencies) handlePeopleSearch(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req PeopleSearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if !d.allow(w, r, tenantID, models.CapabilityPeopleSearch) {
		return
	}

	bound, err := d.Resolver.Resolve(r.Context(), tenantID, models.CapabilityPeopleSearch, req.ProviderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := bound.PeopleSearch().Search(r.Context(), req.PeopleQuery)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"people":   result.People,
		"total":    result.Total,
		"page":     result.Page,
		"provider": bound.Info,
	})
}
