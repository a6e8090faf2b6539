package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeyLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"auth context", authContextKey("abc"), "auth:ctx:abc"},
		{"auth user index", authUserIndexKey("user-1"), "auth:user:user-1"},
		{"derived model", derivedModelKey("01HZX"), "model:01HZX"},
		{"negative model", negativeModelKey("01HZX"), "model:01HZX:neg"},
		{"api key subject", subjectLimitKey("key:k1"), "ratelimit:subject:key:k1"},
		{"user subject", subjectLimitKey("user:u1"), "ratelimit:subject:user:u1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s key = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestIPLimitKey_NeverStoresRawAddress(t *testing.T) {
	t.Parallel()

	for _, ip := range []string{"192.168.1.100", "::1", "2001:db8::8a2e:370:7334"} {
		key := ipLimitKey(ip)
		if strings.Contains(key, ip) {
			t.Errorf("ipLimitKey(%q) = %q leaks the address", ip, key)
		}
		if !strings.HasPrefix(key, "ratelimit:ip:") || len(key) != len("ratelimit:ip:")+16 {
			t.Errorf("ipLimitKey(%q) = %q, want prefix plus 16 hex chars", ip, key)
		}
		if key != ipLimitKey(ip) {
			t.Errorf("ipLimitKey(%q) is not stable", ip)
		}
	}
	if ipLimitKey("10.0.0.1") == ipLimitKey("10.0.0.2") {
		t.Error("neighbouring addresses share a bucket")
	}
}

func TestApplyOptions(t *testing.T) {
	t.Parallel()

	ropt := &redis.Options{}
	applyOptions(ropt, Options{PoolSize: 40})

	if ropt.PoolSize != 40 {
		t.Errorf("PoolSize = %d, want override 40", ropt.PoolSize)
	}
	def := DefaultOptions()
	if ropt.MinIdleConns != def.MinIdleConns || ropt.PoolTimeout != def.PoolTimeout {
		t.Errorf("zero fields should keep defaults, got %+v", ropt)
	}
	if ropt.ConnMaxIdleTime != 5*time.Minute {
		t.Errorf("ConnMaxIdleTime = %s, want 5m", ropt.ConnMaxIdleTime)
	}
}
