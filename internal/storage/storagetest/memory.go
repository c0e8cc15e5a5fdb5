// Package storagetest provides an in-memory ProviderConfigRepository for
// tests of packages that sit above storage.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"outreach_gateway/internal/models"
	"outreach_gateway/internal/storage"
)

// ProviderStore mirrors storage.ProviderConfigRepository semantics,
// including tenant scoping and default exclusivity, without a database.
type ProviderStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]models.ProviderConfig
}

func NewProviderStore() *ProviderStore {
	return &ProviderStore{records: make(map[uuid.UUID]models.ProviderConfig)}
}

func (s *ProviderStore) GetByID(ctx context.Context, tenantID string, capability models.Capability, id uuid.UUID) (*models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[id]
	if !ok || p.TenantID != tenantID || (capability != "" && p.Capability != capability) {
		return nil, storage.ErrProviderNotFound
	}
	return p.Clone(), nil
}

func (s *ProviderStore) GetDefault(ctx context.Context, tenantID string, capability models.Capability) (*models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.records {
		if p.TenantID == tenantID && p.Capability == capability && p.IsDefault {
			return p.Clone(), nil
		}
	}
	return nil, storage.ErrProviderNotFound
}

// List orders like the repository: capability, default first, then name.
func (s *ProviderStore) List(ctx context.Context, tenantID string, capability models.Capability) ([]*models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ProviderConfig
	for _, p := range s.records {
		if p.TenantID == tenantID && (capability == "" || p.Capability == capability) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Capability != b.Capability {
			return a.Capability < b.Capability
		}
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		return a.DisplayName < b.DisplayName
	})
	return out, nil
}

func (s *ProviderStore) Create(ctx context.Context, p *models.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	s.write(p)
	return nil
}

func (s *ProviderStore) Update(ctx context.Context, p *models.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[p.ID]
	if !ok || existing.TenantID != p.TenantID || existing.Capability != p.Capability {
		return storage.ErrProviderNotFound
	}
	p.CreatedAt = existing.CreatedAt
	s.write(p)
	return nil
}

func (s *ProviderStore) SetEnabled(ctx context.Context, tenantID string, id uuid.UUID, enabled bool) (*models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[id]
	if !ok || p.TenantID != tenantID {
		return nil, storage.ErrProviderNotFound
	}
	p.Enabled = enabled
	p.UpdatedAt = time.Now().UTC()
	s.records[id] = p
	return p.Clone(), nil
}

func (s *ProviderStore) Delete(ctx context.Context, tenantID string, id uuid.UUID) (*models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[id]
	if !ok || p.TenantID != tenantID {
		return nil, storage.ErrProviderNotFound
	}
	delete(s.records, id)
	return p.Clone(), nil
}

// Len reports how many records are stored across all tenants.
func (s *ProviderStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *ProviderStore) write(p *models.ProviderConfig) {
	if p.IsDefault {
		for id, other := range s.records {
			if id != p.ID && other.TenantID == p.TenantID && other.Capability == p.Capability && other.IsDefault {
				other.IsDefault = false
				s.records[id] = other
			}
		}
	}
	p.UpdatedAt = time.Now().UTC()
	s.records[p.ID] = *p.Clone()
}
