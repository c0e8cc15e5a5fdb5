package providers

import (
	"fmt"
	"sort"
	"sync"

	"outreach_gateway/internal/models"
	"outreach_gateway/internal/transport"
)

// Factories build a provider client from its config. They must not call out.
type (
	AIFactory           func(cfg Config, client *transport.Client) (AIProvider, error)
	EmailFactory        func(cfg Config, client *transport.Client) (EmailProvider, error)
	PeopleSearchFactory func(cfg Config, client *transport.Client) (PeopleSearchProvider, error)
)

// Registry maps (capability, kind) to a factory. Built-in vendors are
// registered by NewRegistry; more can be added with the Register methods.
type Registry struct {
	client *transport.Client

	mu     sync.RWMutex
	ai     map[string]AIFactory
	email  map[string]EmailFactory
	people map[string]PeopleSearchFactory
}

// NewRegistry creates a registry whose providers send through client.
func NewRegistry(client *transport.Client) *Registry {
	if client == nil {
		client = transport.NewClient(nil, transport.Options{})
	}

	r := &Registry{
		client: client,
		ai:     make(map[string]AIFactory),
		email:  make(map[string]EmailFactory),
		people: make(map[string]PeopleSearchFactory),
	}

	r.RegisterAI(KindOpenAI, NewOpenAI)
	r.RegisterAI(KindAnthropic, NewAnthropic)
	r.RegisterAI(KindGemini, NewGemini)

	r.RegisterEmail(KindSendGrid, NewSendGrid)
	r.RegisterEmail(KindResend, NewResend)
	r.RegisterEmail(KindSMTP, NewSMTP)

	r.RegisterPeopleSearch(KindApollo, NewApollo)

	return r
}

func (r *Registry) RegisterAI(kind string, f AIFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ai[kind] = f
}

func (r *Registry) RegisterEmail(kind string, f EmailFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.email[kind] = f
}

func (r *Registry) RegisterPeopleSearch(kind string, f PeopleSearchFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.people[kind] = f
}

// Supports reports whether kind is registered for capability.
func (r *Registry) Supports(capability models.Capability, kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch capability {
	case models.CapabilityAI:
		_, ok := r.ai[kind]
		return ok
	case models.CapabilityEmail:
		_, ok := r.email[kind]
		return ok
	case models.CapabilityPeopleSearch:
		_, ok := r.people[kind]
		return ok
	default:
		return false
	}
}

// Kinds lists the registered kinds for capability, sorted.
func (r *Registry) Kinds(capability models.Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var kinds []string
	switch capability {
	case models.CapabilityAI:
		for k := range r.ai {
			kinds = append(kinds, k)
		}
	case models.CapabilityEmail:
		for k := range r.email {
			kinds = append(kinds, k)
		}
	case models.CapabilityPeopleSearch:
		for k := range r.people {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// AI builds a text generation client.
func (r *Registry) AI(cfg Config) (AIProvider, error) {
	r.mu.RLock()
	f, ok := r.ai[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedProvider, models.CapabilityAI, cfg.Kind)
	}
	return f(cfg, r.client)
}

// Email builds an email delivery client.
func (r *Registry) Email(cfg Config) (EmailProvider, error) {
	r.mu.RLock()
	f, ok := r.email[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedProvider, models.CapabilityEmail, cfg.Kind)
	}
	return f(cfg, r.client)
}

// PeopleSearch builds a prospect search client.
func (r *Registry) PeopleSearch(cfg Config) (PeopleSearchProvider, error) {
	r.mu.RLock()
	f, ok := r.people[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedProvider, models.CapabilityPeopleSearch, cfg.Kind)
	}
	return f(cfg, r.client)
}
