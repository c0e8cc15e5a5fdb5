package resolver

import (
	"errors"
	"fmt"

	"outreach_gateway/internal/models"
)

// ErrNotConfigured matches every *NotConfiguredError
var ErrNotConfigured = errors.New("provider not configured")

// NotConfiguredError means the tenant has no usable provider for a capability.
// It is user-actionable and never retried. Cause is for operator logs and is
// not meant to be shown to the tenant.
type NotConfiguredError struct {
	TenantID   string
	Capability models.Capability
	ProviderID string
	Reason     string
	Cause      error
}

func (e *NotConfiguredError) Error() string {
	if e.ProviderID != "" {
		return fmt.Sprintf("%s provider %s is not configured: %s", e.Capability, e.ProviderID, e.Reason)
	}
	return fmt.Sprintf("no %s provider configured: %s", e.Capability, e.Reason)
}

func (e *NotConfiguredError) Unwrap() error { return e.Cause }

func (e *NotConfiguredError) Is(target error) bool { return target == ErrNotConfigured }

func notConfigured(tenantID string, capability models.Capability, providerID, reason string, cause error) *NotConfiguredError {
	return &NotConfiguredError{
		TenantID:   tenantID,
		Capability: capability,
		ProviderID: providerID,
		Reason:     reason,
		Cause:      cause,
	}
}
