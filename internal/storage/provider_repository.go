package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"outreach_gateway/internal/models"
)

const providerConfigColumns = `
	id, tenant_id, capability, kind, display_name, base_url, default_model,
	sender_identity, enabled, is_default, config, credential, created_at, updated_at`

const (
	uniqueViolation = "23505"
	oneDefaultIndex = "provider_configs_one_default_idx"
)

// ProviderConfigRepository handles provider_configs database operations.
// Every query is scoped to one tenant.
type ProviderConfigRepository struct {
	db *DB
}

// NewProviderConfigRepository creates a new provider config repository
func NewProviderConfigRepository(db *DB) *ProviderConfigRepository {
	return &ProviderConfigRepository{db: db}
}

// GetByID retrieves one of the tenant's providers. A capability of "" matches any.
func (r *ProviderConfigRepository) GetByID(ctx context.Context, tenantID string, capability models.Capability, id uuid.UUID) (*models.ProviderConfig, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + providerConfigColumns + `
		FROM provider_configs
		WHERE tenant_id = $1 AND id = $2 AND ($3 = '' OR capability = $3)`

	var p models.ProviderConfig
	err := r.db.conn.GetContext(ctx, &p, query, tenantID, id, string(capability))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return &p, nil
}

// GetDefault retrieves the record flagged default for the tenant and capability.
func (r *ProviderConfigRepository) GetDefault(ctx context.Context, tenantID string, capability models.Capability) (*models.ProviderConfig, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + providerConfigColumns + `
		FROM provider_configs
		WHERE tenant_id = $1 AND capability = $2 AND is_default
		LIMIT 1`

	var p models.ProviderConfig
	err := r.db.conn.GetContext(ctx, &p, query, tenantID, string(capability))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get default provider: %w", err)
	}

	return &p, nil
}

// List returns the tenant's providers, optionally for a single capability.
// Defaults sort first within each capability.
func (r *ProviderConfigRepository) List(ctx context.Context, tenantID string, capability models.Capability) ([]*models.ProviderConfig, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + providerConfigColumns + `
		FROM provider_configs
		WHERE tenant_id = $1 AND ($2 = '' OR capability = $2)
		ORDER BY capability, is_default DESC, display_name, created_at`

	var providers []*models.ProviderConfig
	if err := r.db.conn.SelectContext(ctx, &providers, query, tenantID, string(capability)); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	return providers, nil
}

// Create inserts a provider. If it is flagged default, the previous default
// for the same tenant and capability loses the flag in the same transaction.
func (r *ProviderConfigRepository) Create(ctx context.Context, p *models.ProviderConfig) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	return r.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if p.IsDefault {
			if err := clearDefault(ctx, tx, p.TenantID, p.Capability, p.ID); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO provider_configs (id, tenant_id, capability, kind, display_name,
			                              base_url, default_model, sender_identity,
			                              enabled, is_default, config, credential)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING created_at, updated_at`

		err := tx.QueryRowxContext(
			ctx, query,
			p.ID, p.TenantID, string(p.Capability), p.Kind, p.DisplayName,
			p.BaseURL, p.DefaultModel, p.SenderIdentity,
			p.Enabled, p.IsDefault, p.Config, p.Credential,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return translateWriteError("create", err)
		}
		return nil
	})
}

// Update overwrites a provider. Capability and tenant are immutable.
func (r *ProviderConfigRepository) Update(ctx context.Context, p *models.ProviderConfig) error {
	return r.inTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if p.IsDefault {
			if err := clearDefault(ctx, tx, p.TenantID, p.Capability, p.ID); err != nil {
				return err
			}
		}

		query := `
			UPDATE provider_configs
			SET kind = $4, display_name = $5, base_url = $6, default_model = $7,
			    sender_identity = $8, enabled = $9, is_default = $10, config = $11,
			    credential = $12, updated_at = NOW()
			WHERE tenant_id = $1 AND capability = $2 AND id = $3
			RETURNING created_at, updated_at`

		err := tx.QueryRowxContext(
			ctx, query,
			p.TenantID, string(p.Capability), p.ID,
			p.Kind, p.DisplayName, p.BaseURL, p.DefaultModel,
			p.SenderIdentity, p.Enabled, p.IsDefault, p.Config,
			p.Credential,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrProviderNotFound
			}
			return translateWriteError("update", err)
		}
		return nil
	})
}

// SetEnabled flips the enabled flag and returns the updated record.
func (r *ProviderConfigRepository) SetEnabled(ctx context.Context, tenantID string, id uuid.UUID, enabled bool) (*models.ProviderConfig, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE provider_configs SET enabled = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + providerConfigColumns

	var p models.ProviderConfig
	if err := r.db.conn.GetContext(ctx, &p, query, tenantID, id, enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to update provider: %w", err)
	}

	return &p, nil
}

// Delete removes a provider and returns what was removed.
func (r *ProviderConfigRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) (*models.ProviderConfig, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `DELETE FROM provider_configs WHERE tenant_id = $1 AND id = $2 RETURNING ` + providerConfigColumns

	var p models.ProviderConfig
	if err := r.db.conn.GetContext(ctx, &p, query, tenantID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to delete provider: %w", err)
	}

	return &p, nil
}

func (r *ProviderConfigRepository) inTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return translateWriteError("commit", err)
	}
	return nil
}

func clearDefault(ctx context.Context, tx *sqlx.Tx, tenantID string, capability models.Capability, keep uuid.UUID) error {
	query := `
		UPDATE provider_configs SET is_default = FALSE, updated_at = NOW()
		WHERE tenant_id = $1 AND capability = $2 AND id <> $3 AND is_default`

	if _, err := tx.ExecContext(ctx, query, tenantID, string(capability), keep); err != nil {
		return fmt.Errorf("failed to clear previous default: %w", err)
	}
	return nil
}

func translateWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == oneDefaultIndex {
		return ErrDefaultConflict
	}
	return fmt.Errorf("failed to %s provider: %w", op, err)
}
