package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const DefaultTokenTTL = 15 * time.Minute

// Claims identify a tenant user. The session system that issues them is
// outside this service; the gateway only verifies them.
type Claims struct {
	TenantID string   `json:"tenant_id"`
	UserID   string   `json:"user_id"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether any of the claimed roles grants required.
func (c *Claims) HasRole(required Role) bool {
	for _, r := range c.Roles {
		if Role(r).HasPermission(required) {
			return true
		}
	}
	return false
}

// GenerateJWT signs a token for a tenant user with HS256
func GenerateJWT(secret []byte, tenantID, userID string, roles []Role, ttl time.Duration) (string, int64, error) {
	if tenantID == "" {
		return "", 0, ErrMissingTenant
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if !r.IsValid() {
			return "", 0, fmt.Errorf("%w: %q", ErrInvalidRole, r)
		}
		names = append(names, r.String())
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		TenantID: tenantID,
		UserID:   userID,
		Roles:    names,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", 0, err
	}
	return signed, expiresAt.Unix(), nil
}

// ValidateJWT verifies signature and expiry and returns the claims.
func ValidateJWT(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenant
	}
	return claims, nil
}
