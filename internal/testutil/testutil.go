// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema rolls every migration back and applies them again,
// leaving an empty, fully migrated database.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.DownTo(ctx, 0); err != nil {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewID returns a fresh ULID string.
func NewID() string {
	return ulid.Make().String()
}

// NewTestUser creates a user with a unique email.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	now := time.Now().UTC()
	id := NewID()
	return &model.User{
		ID:        id,
		Email:     fmt.Sprintf("user-%s@example.com", id),
		Name:      "Test User",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestBaseModel creates a catalog entry for the given generic model name.
func NewTestBaseModel(t testing.TB, genericName string, isPro bool) *model.BaseModel {
	t.Helper()
	return &model.BaseModel{
		ID:                 fmt.Sprintf("bm-%d", time.Now().UnixNano()),
		DisplayName:        "Test " + genericName,
		GenericName:        genericName,
		Description:        "test base model",
		IsPro:              isPro,
		DefaultTemperature: 0.7,
		DefaultTopP:        1,
	}
}

// NewTestDerivedModel creates a public derived model owned by ownerID.
func NewTestDerivedModel(t testing.TB, ownerID, baseModelID string) *model.DerivedModel {
	t.Helper()
	return &model.DerivedModel{
		ID:             NewID(),
		DisplayName:    "Support Bot",
		Description:    "answers support questions",
		Category:       "General",
		BaseModelID:    baseModelID,
		OwnerID:        ownerID,
		ResponseFormat: model.ResponseFormatText,
		IsPublic:       true,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewTestDataset creates a small dataset for modelID.
func NewTestDataset(t testing.TB, modelID string) *model.Dataset {
	t.Helper()
	return &model.Dataset{
		ID:             NewID(),
		DerivedModelID: modelID,
		Data: []map[string]any{
			{"question": "How do I reset my password?", "answer": "Use the account page."},
		},
		CreatedAt: time.Now().UTC(),
	}
}

// NewTestAPIKey creates a test API key with sensible defaults.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	now := time.Now().UTC()
	return &model.APIKey{
		ID:            NewID(),
		UserID:        userID,
		KeyHash:       fmt.Sprintf("hash-%d", now.UnixNano()),
		KeyPrefix:     "a1b2c3",
		Scopes:        []string{model.ScopeDataRead},
		RateLimitTier: model.TierFree,
		Name:          "Test Key",
		CreatedAt:     now,
	}
}

// NewTestAPIKeyWithTier creates a test API key with a specific tier.
func NewTestAPIKeyWithTier(t testing.TB, userID string, tier string) *model.APIKey {
	t.Helper()
	key := NewTestAPIKey(t, userID)
	key.RateLimitTier = tier
	return key
}
