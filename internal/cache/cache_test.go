package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/platformx/platformx/internal/model"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client), mr
}

func TestDerivedModelCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if _, err := c.GetDerivedModel(ctx, "m1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	details := &model.DerivedModelDetails{
		DerivedModel: model.DerivedModel{ID: "m1", DisplayName: "Bot", IsPublic: true},
		BaseModel:    model.BaseModel{ID: "bm", GenericName: "gemini-1.5-pro", IsPro: true},
		OwnerName:    "Ada",
	}
	if err := c.SetNegativeCache(ctx, "m1"); err != nil {
		t.Fatalf("SetNegativeCache: %v", err)
	}
	if err := c.SetDerivedModel(ctx, details); err != nil {
		t.Fatalf("SetDerivedModel: %v", err)
	}

	neg, err := c.IsNegativelyCached(ctx, "m1")
	if err != nil {
		t.Fatalf("IsNegativelyCached: %v", err)
	}
	if neg {
		t.Fatal("storing a model should clear its negative entry")
	}

	got, err := c.GetDerivedModel(ctx, "m1")
	if err != nil {
		t.Fatalf("GetDerivedModel: %v", err)
	}
	if got.BaseModel.GenericName != "gemini-1.5-pro" || !got.BaseModel.IsPro || got.OwnerName != "Ada" {
		t.Fatalf("unexpected details: %+v", got)
	}

	mr.FastForward(DefaultModelTTL + time.Second)
	if _, err := c.GetDerivedModel(ctx, "m1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestDerivedModelCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := mr.Set(modelKeyPrefix+"bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := c.GetDerivedModel(ctx, "bad"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
	if mr.Exists(modelKeyPrefix + "bad") {
		t.Fatal("corrupt entry should be removed")
	}
}

func TestNegativeCache_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.SetNegativeCache(ctx, "gone"); err != nil {
		t.Fatalf("SetNegativeCache: %v", err)
	}
	if neg, _ := c.IsNegativelyCached(ctx, "gone"); !neg {
		t.Fatal("expected negative entry")
	}
	mr.FastForward(NegativeCacheTTL + time.Second)
	if neg, _ := c.IsNegativelyCached(ctx, "gone"); neg {
		t.Fatal("negative entry should expire")
	}
}

func TestAuthContextCache_InvalidateUser(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	auth := &model.AuthContext{
		Method:        model.AuthMethodAPIKey,
		UserID:        "u1",
		KeyID:         "k1",
		KeyPrefix:     "abc123",
		Scopes:        []string{model.ScopeDataRead},
		RateLimitTier: model.TierPro,
	}
	for _, key := range []string{"hash-a", "hash-b"} {
		if err := c.SetAuthContext(ctx, key, auth); err != nil {
			t.Fatalf("SetAuthContext: %v", err)
		}
	}

	got, err := c.GetAuthContext(ctx, "hash-a")
	if err != nil || got == nil {
		t.Fatalf("GetAuthContext: %v %v", got, err)
	}
	if got.Method != model.AuthMethodAPIKey || !got.HasScope(model.ScopeDataRead) || got.RateLimitTier != model.TierPro {
		t.Fatalf("unexpected auth context: %+v", got)
	}

	if err := c.InvalidateUserAuthContexts(ctx, "u1"); err != nil {
		t.Fatalf("InvalidateUserAuthContexts: %v", err)
	}
	for _, key := range []string{"hash-a", "hash-b"} {
		if got, _ := c.GetAuthContext(ctx, key); got != nil {
			t.Fatalf("expected %s to be invalidated", key)
		}
	}
}

func TestSubjectRateLimit_ExhaustsBurst(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := c.CheckSubjectRateLimit(ctx, "user:u1", 60, 3)
		if err != nil {
			t.Fatalf("CheckSubjectRateLimit: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, err := c.CheckSubjectRateLimit(ctx, "user:u1", 60, 3)
	if err != nil {
		t.Fatalf("CheckSubjectRateLimit: %v", err)
	}
	if res.Allowed {
		t.Fatal("fourth request should be limited")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("expected retry-after, got %v", res.RetryAfter)
	}

	other, _ := c.CheckSubjectRateLimit(ctx, "key:k1", 60, 3)
	if !other.Allowed {
		t.Fatal("a different subject has its own bucket")
	}
}

func TestSubjectRateLimit_Unlimited(t *testing.T) {
	c, _ := newTestCache(t)

	for i := 0; i < 10; i++ {
		res, err := c.CheckSubjectRateLimit(context.Background(), "key:k1", 0, 0)
		if err != nil || !res.Allowed {
			t.Fatalf("unlimited tier should always allow: %v %v", res, err)
		}
	}
}

func TestIPRateLimit_PerAddressBuckets(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	first, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 1, 1)
	if err != nil || !first.Allowed {
		t.Fatalf("first request: %+v, %v", first, err)
	}

	second, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 1, 1)
	if err != nil {
		t.Fatalf("CheckIPRateLimit: %v", err)
	}
	if second.Allowed {
		t.Fatal("second request inside one second should be limited")
	}
	if second.RetryAfter <= 0 || second.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want within (0, 1s]", second.RetryAfter)
	}
	if second.ResetAt.Before(time.Now()) {
		t.Errorf("ResetAt = %v, want in the future", second.ResetAt)
	}

	other, err := c.CheckIPRateLimit(ctx, "198.51.100.1", 1, 1)
	if err != nil || !other.Allowed {
		t.Fatalf("another address has its own bucket: %+v, %v", other, err)
	}

	ttl := mr.TTL(ipLimitKey("203.0.113.7"))
	if ttl <= 0 || ttl > ipBucketTTL {
		t.Errorf("bucket TTL = %v, want within (0, %v]", ttl, ipBucketTTL)
	}
}

func TestRateLimit_RedisFailureIsReported(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	if _, err := c.CheckSubjectRateLimit(context.Background(), "user:u1", 60, 3); err == nil {
		t.Fatal("expected an error when Redis is unreachable")
	}
}
