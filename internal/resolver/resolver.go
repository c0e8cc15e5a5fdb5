package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"outreach_gateway/internal/logging"
	"outreach_gateway/internal/models"
	"outreach_gateway/internal/providers"
	"outreach_gateway/internal/storage"
)

const DefaultCacheTTL = 60 * time.Second

// Store is the persistent side of resolution.
type Store interface {
	GetByID(ctx context.Context, tenantID string, capability models.Capability, id uuid.UUID) (*models.ProviderConfig, error)
	GetDefault(ctx context.Context, tenantID string, capability models.Capability) (*models.ProviderConfig, error)
}

// Vault opens stored credentials.
type Vault interface {
	Decrypt(cred *models.Credential) (string, error)
}

// ProviderInfo describes a resolved provider without its credential.
type ProviderInfo struct {
	Capability  models.Capability `json:"capability"`
	Kind        string            `json:"kind"`
	ProviderID  string            `json:"provider_id,omitempty"`
	DisplayName string            `json:"display_name"`
	Model       string            `json:"model,omitempty"`
	Sender      string            `json:"sender,omitempty"`
	Fallback    bool              `json:"fallback,omitempty"`
}

// Bound is a provider client ready to call, holding its decrypted credential.
// Only the accessor for its own capability returns a client.
type Bound struct {
	Info ProviderInfo

	ai     providers.AIProvider
	email  providers.EmailProvider
	people providers.PeopleSearchProvider
}

func (b *Bound) AI() providers.AIProvider                     { return b.ai }
func (b *Bound) Email() providers.EmailProvider               { return b.email }
func (b *Bound) PeopleSearch() providers.PeopleSearchProvider { return b.people }

func (b *Bound) String() string {
	return fmt.Sprintf("%s/%s(%s)", b.Info.Capability, b.Info.Kind, b.Info.DisplayName)
}

// Options tunes a Resolver.
type Options struct {
	CacheTTL  time.Duration
	Fallbacks []Fallback // AI only, in priority order
}

// Resolver selects the provider a tenant has configured for a capability and
// binds a client to it.
type Resolver struct {
	store     Store
	cache     *storage.Cache
	vault     Vault
	registry  *providers.Registry
	ttl       time.Duration
	fallbacks []Fallback

	group singleflight.Group
}

// New creates a resolver. cache may be nil, in which case every resolution
// reads the store.
func New(store Store, cache *storage.Cache, vault Vault, registry *providers.Registry, opts Options) *Resolver {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{
		store:     store,
		cache:     cache,
		vault:     vault,
		registry:  registry,
		ttl:       ttl,
		fallbacks: opts.Fallbacks,
	}
}

// Resolve returns a bound client for the tenant's provider. With an empty
// providerID the enabled default for the capability is used. A tenant
// without a usable provider gets a *NotConfiguredError; only AI falls back
// to deployment keys, and only when no explicit provider was asked for.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, capability models.Capability, providerID string) (*Bound, error) {
	if !capability.IsValid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidCapability, capability)
	}

	cfg, err := r.lookup(ctx, tenantID, capability, providerID)
	if err != nil {
		var nc *NotConfiguredError
		if errors.As(err, &nc) && providerID == "" && capability == models.CapabilityAI {
			if b, ok := r.fallback(); ok {
				logging.Debugf("resolver: tenant %s has no ai provider, using deployment %s key", tenantID, b.Info.Kind)
				return b, nil
			}
		}
		return nil, err
	}

	if !cfg.Enabled {
		return r.disabled(tenantID, capability, providerID, cfg)
	}

	return r.bind(tenantID, cfg)
}

func (r *Resolver) disabled(tenantID string, capability models.Capability, providerID string, cfg *models.ProviderConfig) (*Bound, error) {
	if providerID == "" && capability == models.CapabilityAI {
		if b, ok := r.fallback(); ok {
			return b, nil
		}
	}
	return nil, notConfigured(tenantID, capability, providerID, fmt.Sprintf("%s is disabled", cfg.DisplayName), nil)
}

// cachedProvider is a cache entry tagged with the settings generation that
// was current before its store read.
type cachedProvider struct {
	Generation int64                  `json:"generation"`
	Provider   *models.ProviderConfig `json:"provider"`
}

// lookup reads through the cache. Concurrent misses on one key share a
// single store read. Entries from an older settings generation are misses,
// so a read that raced a settings write cannot outlive the invalidation.
// When the generation cannot be read the cache is bypassed entirely.
func (r *Resolver) lookup(ctx context.Context, tenantID string, capability models.Capability, providerID string) (*models.ProviderConfig, error) {
	var id uuid.UUID
	if providerID != "" {
		parsed, err := uuid.Parse(providerID)
		if err != nil {
			return nil, notConfigured(tenantID, capability, providerID, "no such provider", nil)
		}
		id = parsed
	}

	key := storage.ProviderCacheKey(tenantID, capability, providerID)
	gen, cacheable := r.cache.Generation(ctx, storage.ProviderGenerationKey(tenantID, capability))

	if cacheable {
		var cached cachedProvider
		if r.cache.Get(ctx, key, &cached) && cached.Generation == gen && cached.Provider != nil {
			return cached.Provider, nil
		}
	}

	// Callers on different generations must not share a read.
	flight := fmt.Sprintf("%s@%d", key, gen)
	if !cacheable {
		flight = key + "@uncached"
	}

	v, err, _ := r.group.Do(flight, func() (any, error) {
		// The read is shared, so one caller going away must not fail the rest.
		ctx := context.WithoutCancel(ctx)

		var (
			cfg *models.ProviderConfig
			err error
		)
		if providerID == "" {
			cfg, err = r.store.GetDefault(ctx, tenantID, capability)
		} else {
			cfg, err = r.store.GetByID(ctx, tenantID, capability, id)
		}
		if err != nil {
			return nil, err
		}
		if cacheable {
			r.cache.Set(ctx, key, cachedProvider{Generation: gen, Provider: cfg}, r.ttl)
		}
		return cfg, nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			reason := "no default provider"
			if providerID != "" {
				reason = "no such provider"
			}
			return nil, notConfigured(tenantID, capability, providerID, reason, err)
		}
		return nil, fmt.Errorf("resolve %s provider: %w", capability, err)
	}

	// Callers of one flight share the record; hand each its own copy.
	return v.(*models.ProviderConfig).Clone(), nil
}

func (r *Resolver) bind(tenantID string, cfg *models.ProviderConfig) (*Bound, error) {
	providerID := cfg.ID.String()

	if !cfg.HasCredential() {
		return nil, notConfigured(tenantID, cfg.Capability, providerID, "credential missing", storage.ErrNoCredential)
	}

	apiKey, err := r.vault.Decrypt(cfg.Credential)
	if err != nil {
		logging.Errorf("resolver: credential for tenant=%s provider=%s (%s) cannot be decrypted: %v",
			tenantID, providerID, cfg.Kind, err)
		return nil, notConfigured(tenantID, cfg.Capability, providerID, "credential cannot be read, re-enter it", err)
	}

	pc := providers.Config{
		ProviderID:  providerID,
		Kind:        cfg.Kind,
		DisplayName: cfg.DisplayName,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.DefaultModel,
		Sender:      cfg.SenderIdentity,
		Options:     cfg.Config,
		APIKey:      providers.Secret(apiKey),
	}

	info := ProviderInfo{
		Capability:  cfg.Capability,
		Kind:        cfg.Kind,
		ProviderID:  providerID,
		DisplayName: cfg.DisplayName,
		Model:       cfg.DefaultModel,
		Sender:      cfg.SenderIdentity,
	}

	b, err := r.build(cfg.Capability, pc, info)
	if err != nil {
		return nil, notConfigured(tenantID, cfg.Capability, providerID, err.Error(), err)
	}
	return b, nil
}

func (r *Resolver) build(capability models.Capability, pc providers.Config, info ProviderInfo) (*Bound, error) {
	b := &Bound{Info: info}

	var err error
	switch capability {
	case models.CapabilityAI:
		b.ai, err = r.registry.AI(pc)
	case models.CapabilityEmail:
		b.email, err = r.registry.Email(pc)
	case models.CapabilityPeopleSearch:
		b.people, err = r.registry.PeopleSearch(pc)
	default:
		err = models.ErrInvalidCapability
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// fallback binds the first deployment key that builds.
func (r *Resolver) fallback() (*Bound, bool) {
	for _, fb := range r.fallbacks {
		pc := providers.Config{
			Kind:        fb.Kind,
			DisplayName: fb.Kind + " (deployment)",
			Model:       fb.Model,
			APIKey:      providers.Secret(fb.APIKey),
		}
		info := ProviderInfo{
			Capability:  models.CapabilityAI,
			Kind:        fb.Kind,
			DisplayName: pc.DisplayName,
			Model:       fb.Model,
			Fallback:    true,
		}
		b, err := r.build(models.CapabilityAI, pc, info)
		if err != nil {
			logging.Warningf("resolver: deployment %s key unusable: %v", fb.Kind, err)
			continue
		}
		return b, true
	}
	return nil, false
}
