package auth

import "errors"

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingTenant = errors.New("token carries no tenant")
	ErrInvalidRole   = errors.New("invalid role")
)
