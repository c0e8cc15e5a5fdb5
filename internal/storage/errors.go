package storage

import "errors"

var (
	// ErrProviderNotFound is returned when a provider config is not found
	ErrProviderNotFound = errors.New("provider not found")

	// ErrDefaultConflict is returned when a second default is written for a
	// tenant and capability outside of SetDefault
	ErrDefaultConflict = errors.New("another provider is already the default for this capability")
)
