package middleware

import (
	"context"
	"net/http"
	"strings"

	"outreach_gateway/internal/auth"
	"outreach_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

// Context keys for storing authentication data
const (
	ClaimsKey   ContextKey = "claims"
	TenantIDKey ContextKey = "tenantID"
	UserIDKey   ContextKey = "userID"
)

// JWTMiddleware validates tenant session tokens and, when roles are given,
// requires at least one of them.
func JWTMiddleware(secret []byte, requiredRoles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := auth.ValidateJWT(tokenString, secret)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			if len(requiredRoles) > 0 && !hasAnyRole(claims, requiredRoles) {
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole rejects requests whose claims do not grant role. It must run
// after JWTMiddleware.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			if !claims.HasRole(role) {
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyRole(claims *auth.Claims, roles []auth.Role) bool {
	for _, role := range roles {
		if claims.HasRole(role) {
			return true
		}
	}
	return false
}

// WithClaims embeds claims into ctx
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	ctx = context.WithValue(ctx, TenantIDKey, claims.TenantID)
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	return ctx
}

// GetClaims retrieves the claims from the request context
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}

// GetTenantID retrieves the tenant ID from the request context
func GetTenantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(TenantIDKey).(string)
	return id, ok && id != ""
}

// GetUserID retrieves the user ID from the request context
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok
}
