package settings

import "errors"

var (
	// ErrInvalidInput is returned for malformed provider settings
	ErrInvalidInput = errors.New("invalid provider settings")

	// ErrCredentialRequired is returned when a new provider, or one whose kind
	// changes, is saved without a credential
	ErrCredentialRequired = errors.New("credential is required")
)
