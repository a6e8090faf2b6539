package auth

import (
	"context"

	"github.com/platformx/platformx/internal/model"
)

type authContextKey struct{}

// ContextWithAuth stores the authenticated caller on ctx. The token guard and
// the API-key guard both put a caller here; handlers only read it.
func ContextWithAuth(ctx context.Context, caller *model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, caller)
}

// AuthFromContext returns the caller, or nil on unguarded routes.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	caller, _ := ctx.Value(authContextKey{}).(*model.AuthContext)
	return caller
}

// UserIDFromContext returns the id of the user behind the request, whether
// they signed in with an access token or called with one of their API keys.
func UserIDFromContext(ctx context.Context) string {
	if caller := AuthFromContext(ctx); caller != nil {
		return caller.UserID
	}
	return ""
}
