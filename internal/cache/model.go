package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/platformx/platformx/internal/model"
)

// Cache TTLs.
const (
	// DefaultModelTTL is the TTL for cached derived model details.
	DefaultModelTTL = 10 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetDerivedModel retrieves derived model details by id.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetDerivedModel(ctx context.Context, id string) (*model.DerivedModelDetails, error) {
	data, err := c.client.Get(ctx, derivedModelKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var details model.DerivedModelDetails
	if err := json.Unmarshal(data, &details); err != nil {
		// Corrupted entry: drop it and report a miss.
		c.client.Del(ctx, derivedModelKey(id))
		return nil, ErrCacheMiss
	}
	return &details, nil
}

// SetDerivedModel stores derived model details and clears any negative entry.
func (c *Cache) SetDerivedModel(ctx context.Context, details *model.DerivedModelDetails) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal derived model: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, derivedModelKey(details.ID), data, DefaultModelTTL)
	pipe.Del(ctx, negativeModelKey(details.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache derived model: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if a model id is known not to exist.
func (c *Cache) IsNegativelyCached(ctx context.Context, id string) (bool, error) {
	exists, err := c.client.Exists(ctx, negativeModelKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}
	return exists > 0, nil
}

// SetNegativeCache marks a model id as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, id string) error {
	if err := c.client.SetEx(ctx, negativeModelKey(id), "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}
