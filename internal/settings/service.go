package settings

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"outreach_gateway/internal/logging"
	"outreach_gateway/internal/models"
	"outreach_gateway/internal/providers"
	"outreach_gateway/internal/storage"
)

const (
	ActionCreate  = "provider.create"
	ActionUpdate  = "provider.update"
	ActionEnable  = "provider.enable"
	ActionDisable = "provider.disable"
	ActionDelete  = "provider.delete"

	auditResource = "provider_config"
)

// Store is the persistent side of the write path.
type Store interface {
	GetByID(ctx context.Context, tenantID string, capability models.Capability, id uuid.UUID) (*models.ProviderConfig, error)
	List(ctx context.Context, tenantID string, capability models.Capability) ([]*models.ProviderConfig, error)
	Create(ctx context.Context, p *models.ProviderConfig) error
	Update(ctx context.Context, p *models.ProviderConfig) error
	SetEnabled(ctx context.Context, tenantID string, id uuid.UUID, enabled bool) (*models.ProviderConfig, error)
	Delete(ctx context.Context, tenantID string, id uuid.UUID) (*models.ProviderConfig, error)
}

// Vault seals credentials before they are stored.
type Vault interface {
	Encrypt(plaintext string) (*models.Credential, error)
}

// Actor identifies who is making a change.
type Actor struct {
	TenantID  string
	ActorID   string
	RequestID string
}

// Input is a provider as submitted by an administrator. On update, an empty
// Credential keeps the stored one and a nil Enabled keeps the current flag.
type Input struct {
	Capability  models.Capability `json:"capability"`
	Kind        string            `json:"kind"`
	DisplayName string            `json:"display_name"`
	BaseURL     string            `json:"base_url,omitempty"`
	Model       string            `json:"model,omitempty"`
	Sender      string            `json:"sender,omitempty"`
	Config      map[string]any    `json:"config,omitempty"`
	Credential  string            `json:"credential,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	IsDefault   bool              `json:"is_default"`
}

// Service is the only write path for provider settings. Every successful
// write drops the tenant's cached resolutions for the capability before it
// returns, then appends an audit record.
type Service struct {
	store    Store
	vault    Vault
	cache    *storage.Cache
	registry *providers.Registry
	audit    logging.Sink
}

func NewService(store Store, vault Vault, cache *storage.Cache, registry *providers.Registry, audit logging.Sink) *Service {
	if audit == nil {
		audit = logging.NewNoopSink()
	}
	return &Service{
		store:    store,
		vault:    vault,
		cache:    cache,
		registry: registry,
		audit:    audit,
	}
}

// List returns the tenant's providers. An empty capability lists all.
func (s *Service) List(ctx context.Context, tenantID string, capability models.Capability) ([]*models.ProviderConfig, error) {
	if capability != "" && !capability.IsValid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidCapability, capability)
	}
	return s.store.List(ctx, tenantID, capability)
}

// Get returns one of the tenant's providers.
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.ProviderConfig, error) {
	return s.store.GetByID(ctx, tenantID, "", id)
}

// Create stores a new provider.
func (s *Service) Create(ctx context.Context, actor Actor, in Input) (*models.ProviderConfig, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if in.Credential == "" {
		return nil, ErrCredentialRequired
	}

	cred, err := s.vault.Encrypt(in.Credential)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	p := &models.ProviderConfig{
		ID:         uuid.New(),
		TenantID:   actor.TenantID,
		Capability: in.Capability,
		Enabled:    true,
		Credential: cred,
	}
	apply(p, in)

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	s.invalidate(ctx, p.TenantID, p.Capability)
	s.record(ctx, actor, ActionCreate, p, true)
	return p, nil
}

// Update overwrites a provider. Capability cannot change.
func (s *Service) Update(ctx context.Context, actor Actor, id uuid.UUID, in Input) (*models.ProviderConfig, error) {
	existing, err := s.store.GetByID(ctx, actor.TenantID, "", id)
	if err != nil {
		return nil, err
	}

	if in.Capability == "" {
		in.Capability = existing.Capability
	}
	if in.Capability != existing.Capability {
		return nil, fmt.Errorf("%w: capability cannot change", ErrInvalidInput)
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	p := *existing
	credentialUpdated := in.Credential != ""
	switch {
	case credentialUpdated:
		cred, err := s.vault.Encrypt(in.Credential)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt credential: %w", err)
		}
		p.Credential = cred
	case in.Kind != existing.Kind:
		// A key for one vendor is never valid for another.
		return nil, ErrCredentialRequired
	}
	apply(&p, in)

	if err := s.store.Update(ctx, &p); err != nil {
		return nil, err
	}

	s.invalidate(ctx, p.TenantID, p.Capability)
	s.record(ctx, actor, ActionUpdate, &p, credentialUpdated)
	return &p, nil
}

// Save creates the provider when id is nil and updates it otherwise.
func (s *Service) Save(ctx context.Context, actor Actor, id uuid.UUID, in Input) (*models.ProviderConfig, error) {
	if id == uuid.Nil {
		return s.Create(ctx, actor, in)
	}
	return s.Update(ctx, actor, id, in)
}

// SetEnabled enables or disables a provider without touching anything else.
func (s *Service) SetEnabled(ctx context.Context, actor Actor, id uuid.UUID, enabled bool) (*models.ProviderConfig, error) {
	p, err := s.store.SetEnabled(ctx, actor.TenantID, id, enabled)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, p.TenantID, p.Capability)
	action := ActionDisable
	if enabled {
		action = ActionEnable
	}
	s.record(ctx, actor, action, p, false)
	return p, nil
}

// Delete removes a provider and its credential.
func (s *Service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	p, err := s.store.Delete(ctx, actor.TenantID, id)
	if err != nil {
		return err
	}

	s.invalidate(ctx, p.TenantID, p.Capability)
	s.record(ctx, actor, ActionDelete, p, false)
	return nil
}

func (s *Service) validate(in Input) error {
	if !in.Capability.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidCapability, in.Capability)
	}
	if in.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidInput)
	}
	if s.registry != nil && !s.registry.Supports(in.Capability, in.Kind) {
		return fmt.Errorf("%w: %s does not support %s (known: %s)", ErrInvalidInput, in.Kind, in.Capability,
			strings.Join(s.registry.Kinds(in.Capability), ", "))
	}
	if in.BaseURL != "" {
		u, err := url.Parse(in.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: base_url must be an http(s) URL", ErrInvalidInput)
		}
	}
	if in.Capability == models.CapabilityEmail {
		if in.Sender == "" {
			return fmt.Errorf("%w: sender is required for email", ErrInvalidInput)
		}
		if _, err := mail.ParseAddress(in.Sender); err != nil {
			return fmt.Errorf("%w: sender %q is not an address", ErrInvalidInput, in.Sender)
		}
	}
	return nil
}

func apply(p *models.ProviderConfig, in Input) {
	p.Kind = in.Kind
	p.DisplayName = strings.TrimSpace(in.DisplayName)
	if p.DisplayName == "" {
		p.DisplayName = in.Kind
	}
	p.BaseURL = strings.TrimRight(in.BaseURL, "/")
	p.DefaultModel = in.Model
	p.SenderIdentity = in.Sender
	p.Config = models.JSONB(in.Config)
	p.IsDefault = in.IsDefault
	if in.Enabled != nil {
		p.Enabled = *in.Enabled
	}
}

// invalidate bumps the generation before dropping entries, so a resolve
// that read the store before this write cannot cache what it read.
func (s *Service) invalidate(ctx context.Context, tenantID string, capability models.Capability) {
	gen := s.cache.Bump(ctx, storage.ProviderGenerationKey(tenantID, capability))
	n := s.cache.DeletePattern(ctx, storage.ProviderCachePattern(tenantID, capability))
	logging.Debugf("settings: dropped %d cached %s resolutions for tenant %s, generation %d", n, capability, tenantID, gen)
}

func (s *Service) record(ctx context.Context, actor Actor, action string, p *models.ProviderConfig, credentialUpdated bool) {
	logging.Append(ctx, s.audit, &logging.AuditRecord{
		RequestID:  actor.RequestID,
		TenantID:   actor.TenantID,
		ActorID:    actor.ActorID,
		Action:     action,
		Resource:   auditResource,
		ResourceID: p.ID.String(),
		Details: map[string]string{
			"capability":         p.Capability.String(),
			"kind":               p.Kind,
			"display_name":       p.DisplayName,
			"enabled":            strconv.FormatBool(p.Enabled),
			"is_default":         strconv.FormatBool(p.IsDefault),
			"credential_updated": strconv.FormatBool(credentialUpdated),
		},
	})
}
