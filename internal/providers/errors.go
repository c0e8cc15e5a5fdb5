package providers

import "errors"

var (
	// ErrUnsupportedProvider is returned for a kind with no registered factory
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingCredential is returned when a provider that needs a key has none
	ErrMissingCredential = errors.New("provider credential is missing")

	// ErrMissingSender is returned when an email provider has no sender identity
	ErrMissingSender = errors.New("email provider has no sender identity")

	// ErrInvalidRequest is returned for requests rejected before any call is made
	ErrInvalidRequest = errors.New("invalid provider request")

	// ErrEmptyResponse is returned when the vendor answered 2xx without usable content
	ErrEmptyResponse = errors.New("provider returned an empty response")
)
