package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/photo-challenges/internal/http/response"
	"github.com/diagnosis/photo-challenges/pkg/auth"
	"github.com/diagnosis/photo-challenges/pkg/logger"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireRole accepts a bearer token signed with secret whose role is one of roles.
func RequireRole(secret string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "invalid authorization header")
				return
			}
			claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "), secret)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid authorization token", response.CodeInvalidToken)
				return
			}
			if !hasRole(claims.Role, roles) {
				response.Forbidden(w, "insufficient role")
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			ctx = context.WithValue(ctx, logger.UserIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Claims(r *http.Request) *auth.Claims {
	v := r.Context().Value(CtxClaims)
	if v == nil {
		return nil
	}
	return v.(*auth.Claims)
}

func hasRole(role string, allowed []string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
