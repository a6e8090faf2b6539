package model

import (
	"slices"
	"time"
)

// Scope constants for API key authorization.
const (
	// ScopeDataRead allows pulling raw marketplace data through the data API.
	ScopeDataRead = "data:read"
	ScopeAdmin    = "admin"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []string{ScopeDataRead, ScopeAdmin}

// RateLimitTier constants.
const (
	TierFree      = "free"
	TierPro       = "pro"
	TierSession   = "session"
	TierUnlimited = "unlimited"
)

// RateLimitConfig defines rate limit parameters per tier.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// TierConfigs maps tier names to their rate limit configurations.
// Session applies to browser sessions authenticated with a user token.
var TierConfigs = map[string]RateLimitConfig{
	TierFree:      {RequestsPerMinute: 60, Burst: 10},
	TierPro:       {RequestsPerMinute: 600, Burst: 50},
	TierSession:   {RequestsPerMinute: 300, Burst: 60},
	TierUnlimited: {RequestsPerMinute: 0, Burst: 0}, // 0 means unlimited
}

// APIKey represents an API key entity.
type APIKey struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	KeyHash       string     `json:"-"`
	KeyPrefix     string     `json:"keyPrefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rateLimitTier"`
	Name          string     `json:"name,omitempty"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// IsRevoked returns true if the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasScope checks if the key has a specific scope.
// Admin scope implies all other scopes.
func (k *APIKey) HasScope(scope string) bool {
	return hasScope(k.Scopes, scope)
}

// GetRateLimitConfig returns the rate limit configuration for this key.
func (k *APIKey) GetRateLimitConfig() RateLimitConfig {
	if config, ok := TierConfigs[k.RateLimitTier]; ok {
		return config
	}
	return TierConfigs[TierFree]
}

// AuthMethod records which guard authenticated a request.
type AuthMethod string

const (
	AuthMethodToken  AuthMethod = "token"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// AuthContext holds authenticated request context.
// This is injected into the request context by the token and API key guards.
type AuthContext struct {
	Method        AuthMethod
	UserID        string
	Email         string
	KeyID         string
	KeyPrefix     string
	Scopes        []string
	RateLimitTier string
}

// HasScope checks if the auth context has a specific scope.
func (a *AuthContext) HasScope(scope string) bool {
	return hasScope(a.Scopes, scope)
}

// RateLimitSubject is the identity rate limits are counted against.
func (a *AuthContext) RateLimitSubject() string {
	if a.Method == AuthMethodAPIKey {
		return "key:" + a.KeyID
	}
	return "user:" + a.UserID
}

func hasScope(scopes []string, scope string) bool {
	if slices.Contains(scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(scopes, scope)
}

// APIKeyResponse represents the response for an API key (without secrets).
type APIKeyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	KeyPrefix     string     `json:"keyPrefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rateLimitTier"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
	Revoked       bool       `json:"revoked"`
}

// ToResponse converts an APIKey to APIKeyResponse.
func (k *APIKey) ToResponse() APIKeyResponse {
	return APIKeyResponse{
		ID:            k.ID,
		Name:          k.Name,
		KeyPrefix:     k.KeyPrefix,
		Scopes:        k.Scopes,
		RateLimitTier: k.RateLimitTier,
		CreatedAt:     k.CreatedAt,
		LastUsedAt:    k.LastUsedAt,
		Revoked:       k.IsRevoked(),
	}
}

// APIKeyCreateResponse includes the plaintext key (shown only once).
type APIKeyCreateResponse struct {
	ID            string    `json:"id"`
	Key           string    `json:"key"`
	Name          string    `json:"name,omitempty"`
	KeyPrefix     string    `json:"keyPrefix"`
	Scopes        []string  `json:"scopes"`
	RateLimitTier string    `json:"rateLimitTier"`
	CreatedAt     time.Time `json:"createdAt"`
}

// APIKeyRotateResponse includes both old and new key information.
type APIKeyRotateResponse struct {
	OldKeyID        string               `json:"oldKeyId"`
	OldKeyRevokedAt time.Time            `json:"oldKeyRevokedAt"`
	NewKey          APIKeyCreateResponse `json:"newKey"`
}
