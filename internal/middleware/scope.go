package middleware

import (
	"fmt"
	"net/http"

	"github.com/platformx/platformx/internal/auth"
	"github.com/platformx/platformx/internal/model"
)

// RequireScope returns middleware that enforces scope requirements.
// Must be applied after APIKeyAuth. Having ANY of the listed scopes is
// sufficient and admin implies every scope.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			for _, scope := range required {
				if authCtx.HasScope(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "FORBIDDEN",
				fmt.Sprintf("Insufficient permissions. Required scope: %s", required[0]))
		})
	}
}

// RequireDataRead guards the raw data API.
func RequireDataRead() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeDataRead)
}

// RequireAdmin guards operator-only routes.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeAdmin)
}
