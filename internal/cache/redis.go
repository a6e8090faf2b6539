// Package cache keeps PlatformX's hot data in Redis: resolved API-key callers,
// derived model details and rate limit buckets.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps the Redis client shared by the API and the usage pipeline.
type Cache struct {
	client *redis.Client
}

// Options tune the connection pool. Zero fields keep the defaults.
type Options struct {
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultOptions sizes the pool for one API process plus its usage worker,
// which holds a connection open on blocking stream reads.
func DefaultOptions() Options {
	return Options{
		PoolSize:        12,
		MinIdleConns:    2,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// New connects to redisURL and pings it.
func New(ctx context.Context, redisURL string, opts Options) (*Cache, error) {
	ropt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	applyOptions(ropt, opts)

	client := redis.NewClient(ropt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return &Cache{client: client}, nil
}

func applyOptions(ropt *redis.Options, opts Options) {
	def := DefaultOptions()
	pick := func(v, d int) int {
		if v > 0 {
			return v
		}
		return d
	}
	pickDur := func(v, d time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return d
	}
	ropt.PoolSize = pick(opts.PoolSize, def.PoolSize)
	ropt.MinIdleConns = pick(opts.MinIdleConns, def.MinIdleConns)
	ropt.PoolTimeout = pickDur(opts.PoolTimeout, def.PoolTimeout)
	ropt.ConnMaxIdleTime = pickDur(opts.ConnMaxIdleTime, def.ConnMaxIdleTime)
}

// NewFromClient wraps an existing Redis client.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Ping checks Redis connectivity for the readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client to the usage stream publisher and worker.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Key layout. Every key this package writes is built by one of these.

func authContextKey(credentialHash string) string { return "auth:ctx:" + credentialHash }

func authUserIndexKey(userID string) string { return "auth:user:" + userID }

func derivedModelKey(id string) string { return "model:" + id }

func negativeModelKey(id string) string { return derivedModelKey(id) + ":neg" }

func subjectLimitKey(subject string) string { return "ratelimit:subject:" + subject }

func ipLimitKey(ip string) string { return "ratelimit:ip:" + hashIP(ip) }

// hashIP keeps 8 bytes of SHA-256, enough to tell clients apart.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
