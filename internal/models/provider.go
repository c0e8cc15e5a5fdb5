package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Capability is a class of external function a tenant configures a provider for.
type Capability string

const (
	CapabilityAI           Capability = "ai"
	CapabilityEmail        Capability = "email"
	CapabilityPeopleSearch Capability = "people_search"
)

// ErrInvalidCapability is returned for capability names outside the known set.
var ErrInvalidCapability = errors.New("invalid capability")

// Capabilities lists every known capability.
func Capabilities() []Capability {
	return []Capability{CapabilityAI, CapabilityEmail, CapabilityPeopleSearch}
}

func (c Capability) String() string {
	return string(c)
}

// IsValid reports whether c is a known capability
func (c Capability) IsValid() bool {
	return slices.Contains(Capabilities(), c)
}

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q, expected one of %v", ErrInvalidCapability, s, Capabilities())
	}
	return c, nil
}

// ProviderConfig is a tenant's configuration of one vendor for one capability.
// At most one record per (TenantID, Capability) has IsDefault set.
type ProviderConfig struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	TenantID       string      `db:"tenant_id" json:"tenant_id"`
	Capability     Capability  `db:"capability" json:"capability"`
	Kind           string      `db:"kind" json:"kind"`
	DisplayName    string      `db:"display_name" json:"display_name"`
	BaseURL        string      `db:"base_url" json:"base_url,omitempty"`
	DefaultModel   string      `db:"default_model" json:"default_model,omitempty"`
	SenderIdentity string      `db:"sender_identity" json:"sender_identity,omitempty"`
	Enabled        bool        `db:"enabled" json:"enabled"`
	IsDefault      bool        `db:"is_default" json:"is_default"`
	Config         JSONB       `db:"config" json:"config,omitempty"`
	Credential     *Credential `db:"credential" json:"credential,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// HasCredential reports whether an encrypted credential is attached
func (p *ProviderConfig) HasCredential() bool {
	return p.Credential != nil && p.Credential.Ciphertext != ""
}

// Clone returns a copy that shares no mutable state with p.
func (p *ProviderConfig) Clone() *ProviderConfig {
	cp := *p
	cp.Config = p.Config.Clone()
	if p.Credential != nil {
		cred := *p.Credential
		cp.Credential = &cred
	}
	return &cp
}
