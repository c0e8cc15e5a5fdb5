package auth

import (
	"fmt"
	"strings"
)

// Role represents a tenant user's role for role-based access control
type Role string

const (
	// RoleAdmin may change the tenant's provider settings
	RoleAdmin Role = "admin"

	// RoleMember may use the tenant's providers and read settings
	RoleMember Role = "member"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role has permission for a required role.
// Admin has all permissions, member only has member permissions.
func (r Role) HasPermission(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}

// ParseRoles reads a comma separated role list such as "admin,member".
func ParseRoles(list string) ([]Role, error) {
	var roles []Role
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		role := Role(strings.ToLower(name))
		if !role.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, name)
		}
		roles = append(roles, role)
	}
	return roles, nil
}
