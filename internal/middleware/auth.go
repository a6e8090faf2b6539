package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/platformx/platformx/internal/auth"
	"github.com/platformx/platformx/internal/model"
)

const (
	// defaultMinAuthDuration is the minimum time spent on API key auth so
	// failures and successes take the same time.
	defaultMinAuthDuration = 200 * time.Millisecond

	lastUsedTimeout = 5 * time.Second
)

// KeyStore looks up API keys for the API key guard.
type KeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// AuthCache caches resolved auth contexts keyed by a fast hash of the key.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

// APIKeyAuthConfig holds configuration for the API key guard.
type APIKeyAuthConfig struct {
	Logger *slog.Logger
	Keys   KeyStore
	Cache  AuthCache
	// MinDuration pads every attempt to at least this long. Zero means the default.
	MinDuration time.Duration
}

// APIKeyAuth returns a middleware that authenticates machine clients by API key.
// The key is read from "Authorization: Bearer <key>" or "X-API-Key". A user
// access token is not accepted here.
func APIKeyAuth(cfg APIKeyAuthConfig) func(http.Handler) http.Handler {
	minDuration := cfg.MinDuration
	if minDuration == 0 {
		minDuration = defaultMinAuthDuration
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			authCtx, reason := resolveAPIKey(r, cfg)

			if elapsed := time.Since(startTime); elapsed < minDuration {
				time.Sleep(minDuration - elapsed)
			}

			if authCtx == nil {
				logAuthFailure(cfg.Logger, r, reason)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			cfg.Logger.Info("authentication successful",
				slog.String("method", string(authCtx.Method)),
				slog.String("key_id", authCtx.KeyID),
				slog.String("key_prefix", authCtx.KeyPrefix),
				slog.String("user_id", authCtx.UserID),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			recordCaller(r.Context(), authCtx)
			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveAPIKey returns the auth context for the request's key, or nil and
// the reason it was rejected.
func resolveAPIKey(r *http.Request, cfg APIKeyAuthConfig) (*model.AuthContext, string) {
	key := extractAPIKey(r)
	if key == "" {
		return nil, "missing_key"
	}

	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		return nil, "invalid_format"
	}

	cacheKey := auth.QuickHash(key)
	if cached, _ := cfg.Cache.GetAuthContext(r.Context(), cacheKey); cached != nil {
		return cached, ""
	}

	keys, err := cfg.Keys.GetAPIKeysByPrefix(r.Context(), parsed.Prefix)
	if err != nil {
		cfg.Logger.Error("database error during auth",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		return nil, "lookup_failed"
	}

	// Several keys may share a prefix; verify each candidate.
	var matched *model.APIKey
	for _, k := range keys {
		if ok, err := auth.VerifyPassword(key, k.KeyHash); err == nil && ok {
			matched = k
			break
		}
	}
	if matched == nil {
		return nil, "invalid_key"
	}

	authCtx := &model.AuthContext{
		Method:        model.AuthMethodAPIKey,
		KeyID:         matched.ID,
		KeyPrefix:     matched.KeyPrefix,
		UserID:        matched.UserID,
		Scopes:        matched.Scopes,
		RateLimitTier: matched.RateLimitTier,
	}
	_ = cfg.Cache.SetAuthContext(r.Context(), cacheKey, authCtx)

	go func(ctx context.Context, id string) {
		ctx, cancel := context.WithTimeout(ctx, lastUsedTimeout)
		defer cancel()
		if err := cfg.Keys.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			cfg.Logger.Warn("failed to record key usage",
				slog.String("key_id", id),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(r.Context()), matched.ID)

	return authCtx, ""
}

// TokenVerifier verifies user access tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.TokenClaims, error)
}

// TokenAuthConfig holds configuration for the user token guard.
type TokenAuthConfig struct {
	Logger   *slog.Logger
	Verifier TokenVerifier
}

// TokenAuth returns a middleware that authenticates signed-in users by the
// access token issued at OTP verification.
func TokenAuth(cfg TokenAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				logAuthFailure(cfg.Logger, r, "missing_token")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing access token")
				return
			}

			claims, err := cfg.Verifier.Verify(token)
			if err != nil {
				logAuthFailure(cfg.Logger, r, "invalid_token")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing access token")
				return
			}

			authCtx := &model.AuthContext{
				Method:        model.AuthMethodToken,
				UserID:        claims.Subject,
				Email:         claims.Email,
				RateLimitTier: model.TierSession,
			}
			recordCaller(r.Context(), authCtx)
			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", getClientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// extractAPIKey supports both "Authorization: Bearer <key>" and "X-API-Key: <key>".
func extractAPIKey(r *http.Request) string {
	if key := bearerToken(r); key != "" {
		return key
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
