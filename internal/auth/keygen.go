package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// API keys read ak_{env}_{prefix}_{secret}, e.g.
// ak_live_7a9x3k_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b. The prefix is stored in
// clear and indexes the key; only the argon2id hash of the whole key is kept.
const (
	keyScheme = "ak"

	KeyPrefixLen = 6
	KeySecretLen = 32
)

// Key environments. Test keys are minted by non-production deployments so a
// leaked key says where it came from.
const (
	EnvLive = "live"
	EnvTest = "test"
)

// ErrInvalidKeyFormat is returned for strings that cannot be PlatformX API keys.
var ErrInvalidKeyFormat = errors.New("invalid API key format")

// GeneratedKey is a freshly minted key. Plaintext is shown to the owner once
// and never stored.
type GeneratedKey struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// ParsedKey holds the segments of a well-formed key.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

// GenerateAPIKey mints a key for env. Unknown environments mint live keys.
func GenerateAPIKey(env string) (*GeneratedKey, error) {
	if env != EnvTest {
		env = EnvLive
	}

	prefix, err := randomHex(KeyPrefixLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomHex(KeySecretLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := strings.Join([]string{keyScheme, env, prefix, secret}, "_")
	hash, err := HashPassword(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}
	return &GeneratedKey{Plaintext: plaintext, Hash: hash, Prefix: prefix}, nil
}

// ParseAPIKey splits key into its segments, rejecting anything that does not
// match the format exactly.
func ParseAPIKey(key string) (*ParsedKey, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 4 || parts[0] != keyScheme {
		return nil, ErrInvalidKeyFormat
	}
	env, prefix, secret := parts[1], parts[2], parts[3]
	if env != EnvLive && env != EnvTest {
		return nil, ErrInvalidKeyFormat
	}
	if len(prefix) != KeyPrefixLen || !isLowerHex(prefix) {
		return nil, ErrInvalidKeyFormat
	}
	if len(secret) != KeySecretLen || !isLowerHex(secret) {
		return nil, ErrInvalidKeyFormat
	}
	return &ParsedKey{Env: env, Prefix: prefix, Secret: secret}, nil
}

// ValidateKeyFormat reports whether key is a well-formed API key.
func ValidateKeyFormat(key string) bool {
	_, err := ParseAPIKey(key)
	return err == nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
