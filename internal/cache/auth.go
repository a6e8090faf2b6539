package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platformx/platformx/internal/model"
)

// authCacheTTL bounds how long a revoked key can keep working on a replica
// that missed the invalidation.
const authCacheTTL = 5 * time.Minute

// CachedAuthContext represents auth context stored in Redis.
type CachedAuthContext struct {
	Method        string   `json:"method"`
	KeyID         string   `json:"key_id,omitempty"`
	KeyPrefix     string   `json:"key_prefix,omitempty"`
	UserID        string   `json:"user_id"`
	Email         string   `json:"email,omitempty"`
	Scopes        []string `json:"scopes"`
	RateLimitTier string   `json:"rate_limit_tier"`
}

// GetAuthContext retrieves a cached auth context by cache key.
// Returns nil if not found (cache miss).
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authContextKey(cacheKey)).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var cached CachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		Method:        model.AuthMethod(cached.Method),
		KeyID:         cached.KeyID,
		KeyPrefix:     cached.KeyPrefix,
		UserID:        cached.UserID,
		Email:         cached.Email,
		Scopes:        cached.Scopes,
		RateLimitTier: cached.RateLimitTier,
	}, nil
}

// SetAuthContext caches an auth context and indexes it under its user,
// so revoking or rotating keys can drop every cached entry for that user.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	cached := CachedAuthContext{
		Method:        string(auth.Method),
		KeyID:         auth.KeyID,
		KeyPrefix:     auth.KeyPrefix,
		UserID:        auth.UserID,
		Email:         auth.Email,
		Scopes:        auth.Scopes,
		RateLimitTier: auth.RateLimitTier,
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	indexKey := authUserIndexKey(auth.UserID)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, authContextKey(cacheKey), data, authCacheTTL)
	pipe.SAdd(ctx, indexKey, cacheKey)
	pipe.Expire(ctx, indexKey, authCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache auth context: %w", err)
	}
	return nil
}

// DeleteAuthContext removes a cached auth context.
func (c *Cache) DeleteAuthContext(ctx context.Context, cacheKey string) error {
	return c.client.Del(ctx, authContextKey(cacheKey)).Err()
}

// InvalidateUserAuthContexts removes all cached auth contexts for a user.
func (c *Cache) InvalidateUserAuthContexts(ctx context.Context, userID string) error {
	indexKey := authUserIndexKey(userID)

	members, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("read auth index: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, authContextKey(m))
	}
	keys = append(keys, indexKey)

	return c.client.Del(ctx, keys...).Err()
}
