package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult is the outcome of taking one token from a bucket.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time // when the bucket is full again
	RetryAfter time.Duration
}

// bucket describes one token bucket. Idle buckets expire after ttl.
type bucket struct {
	key       string
	perSecond float64
	burst     int
	ttl       time.Duration
}

// Buckets for signed-in callers are refilled per minute; the IP bucket in
// front of the OTP endpoints is refilled per second and forgotten quickly.
const (
	subjectBucketTTL = 2 * time.Minute
	ipBucketTTL      = 10 * time.Second
)

// takeTokenScript refills the bucket for the time elapsed since its last
// use, then takes one token if it can. Times are Unix milliseconds.
// Returns {allowed, tokens left, ms until a token, ms until full}.
var takeTokenScript = redis.NewScript(`
local rate = tonumber(ARGV[1]) / 1000
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
	tokens = math.min(burst, tokens + (now - ts) * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait = math.ceil((1 - tokens) / rate)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[1], ARGV[4])

return {allowed, math.floor(tokens), wait, math.ceil((burst - tokens) / rate)}
`)

// CheckSubjectRateLimit takes a token from a signed-in caller's bucket,
// keyed by model.AuthContext.RateLimitSubject. A zero rate is unlimited.
func (c *Cache) CheckSubjectRateLimit(ctx context.Context, subject string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute == 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now()}, nil
	}
	return c.take(ctx, bucket{
		key:       subjectLimitKey(subject),
		perSecond: float64(ratePerMinute) / 60,
		burst:     burst,
		ttl:       subjectBucketTTL,
	})
}

// CheckIPRateLimit takes a token from an anonymous caller's per-IP bucket.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.take(ctx, bucket{
		key:       ipLimitKey(ip),
		perSecond: float64(ratePerSecond),
		burst:     burst,
		ttl:       ipBucketTTL,
	})
}

// take runs the bucket script. Callers decide whether a Redis failure
// admits the request.
func (c *Cache) take(ctx context.Context, b bucket) (*RateLimitResult, error) {
	now := time.Now()
	out, err := takeTokenScript.Run(ctx, c.client, []string{b.key},
		b.perSecond, b.burst, now.UnixMilli(), b.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", b.key, err)
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", b.key, out)
	}

	return &RateLimitResult{
		Allowed:    out[0] == 1,
		Remaining:  out[1],
		RetryAfter: time.Duration(out[2]) * time.Millisecond,
		ResetAt:    now.Add(time.Duration(out[3]) * time.Millisecond),
	}, nil
}
