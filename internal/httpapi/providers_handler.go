package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"outreach_gateway/internal/models"
	"outreach_gateway/internal/settings"
	"outreach_gateway/internal/utils"
)

// ProviderResponse represents a provider response. Credentials never leave
// the service; HasCredential tells the UI whether one is set.
type ProviderResponse struct {
	ID            string         `json:"id"`
	Capability    string         `json:"capability"`
	Kind          string         `json:"kind"`
	DisplayName   string         `json:"display_name"`
	BaseURL       string         `json:"base_url,omitempty"`
	Model         string         `json:"model,omitempty"`
	Sender        string         `json:"sender,omitempty"`
	Config        map[string]any `json:"config"`
	Enabled       bool           `json:"enabled"`
	IsDefault     bool           `json:"is_default"`
	HasCredential bool           `json:"has_credential"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

func toProviderResponse(p *models.ProviderConfig) ProviderResponse {
	config := map[string]any(p.Config)
	if config == nil {
		config = make(map[string]any)
	}
	return ProviderResponse{
		ID:            p.ID.String(),
		Capability:    p.Capability.String(),
		Kind:          p.Kind,
		DisplayName:   p.DisplayName,
		BaseURL:       p.BaseURL,
		Model:         p.DefaultModel,
		Sender:        p.SenderIdentity,
		Config:        config,
		Enabled:       p.Enabled,
		IsDefault:     p.IsDefault,
		HasCredential: p.HasCredential(),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
}

// SetEnabledRequest is the body of PATCH /v1/providers/{id}
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func parseProviderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID")
		return uuid.Nil, false
	}
	return id, true
}

// handleListProviders handles GET /v1/providers?capability=...
func (d *Dependencies) handleListProviders(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var capability models.Capability
	if raw := r.URL.Query().Get("capability"); raw != "" {
		parsed, err := models.ParseCapability(raw)
		if err != nil {
			respondError(w, r, err)
			return
		}
		capability = parsed
	}

	list, err := d.Settings.List(r.Context(), tenantID, capability)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]ProviderResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toProviderResponse(p))
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{"providers": out})
}

// handleGetProvider handles GET /v1/providers/{id}
func (d *Dependencies) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseProviderID(w, r)
	if !ok {
		return
	}

	p, err := d.Settings.Get(r.Context(), tenantID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toProviderResponse(p))
}

// handleCreateProvider handles POST /v1/providers
func (d *Dependencies) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var in settings.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := d.Settings.Create(r.Context(), actorFrom(r, tenantID), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, toProviderResponse(p))
}

// handleUpdateProvider handles PUT /v1/providers/{id}. An omitted credential
// keeps the stored one.
func (d *Dependencies) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseProviderID(w, r)
	if !ok {
		return
	}

	var in settings.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := d.Settings.Update(r.Context(), actorFrom(r, tenantID), id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toProviderResponse(p))
}

// handleSetProviderEnabled handles PATCH /v1/providers/{id}
func (d *Dependencies) handleSetProviderEnabled(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseProviderID(w, r)
	if !ok {
		return
	}

	var req SetEnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		utils.RespondWithError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	p, err := d.Settings.SetEnabled(r.Context(), actorFrom(r, tenantID), id, *req.Enabled)
	if err != nil {
		respondError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toProviderResponse(p))
}

// handleDeleteProvider handles DELETE /v1/providers/{id}
func (d *Dependencies) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseProviderID(w, r)
	if !ok {
		return
	}

	if err := d.Settings.Delete(r.Context(), actorFrom(r, tenantID), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
