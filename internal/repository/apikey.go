package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/platformx/platformx/internal/model"
)

// ErrAPIKeyNotFound is returned when no active key matches.
var ErrAPIKeyNotFound = errors.New("API key not found")

const apiKeyColumns = `id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, revoked_at, last_used_at, created_at`

// execer is the part of pgxpool.Pool and pgx.Tx that writes need.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateAPIKey stores a newly issued key. A missing owner is ErrUserNotFound.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if err := insertAPIKey(ctx, r.pool, key); err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("create API key: %w", err)
	}
	return nil
}

// RotateAPIKey revokes oldKeyID and stores its replacement in one
// transaction, returning the revocation time.
func (r *Repository) RotateAPIKey(ctx context.Context, oldKeyID string, replacement *model.APIKey) (time.Time, error) {
	revokedAt := time.Now().UTC()
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if err := revokeAPIKey(ctx, tx, oldKeyID, revokedAt); err != nil {
			return err
		}
		if err := insertAPIKey(ctx, tx, replacement); err != nil {
			return fmt.Errorf("store rotated API key: %w", err)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return revokedAt, nil
}

// RevokeAPIKey marks an active key revoked.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string) error {
	return revokeAPIKey(ctx, r.pool, id, time.Now().UTC())
}

// GetAPIKeyByID returns a key whether or not it is revoked.
func (r *Repository) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
	key, err := scanAPIKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get API key: %w", err)
	}
	return key, nil
}

// GetAPIKeysByPrefix returns the active keys sharing a clear-text prefix.
// The caller verifies the secret against each candidate's hash.
func (r *Repository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	return r.queryAPIKeys(ctx, "keys by prefix",
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
}

// ListAPIKeysByUserID returns every key a user owns, newest first.
func (r *Repository) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return r.queryAPIKeys(ctx, "list API keys",
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// UpdateAPIKeyLastUsed stamps a key after a successful authentication.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch API key: %w", err)
	}
	return nil
}

func (r *Repository) queryAPIKeys(ctx context.Context, op, sql string, args ...any) ([]*model.APIKey, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.APIKey, error) {
		return scanAPIKey(row)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return keys, nil
}

func insertAPIKey(ctx context.Context, db execer, key *model.APIKey) error {
	_, err := db.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.KeyHash, key.KeyPrefix,
		pq.Array(key.Scopes), key.RateLimitTier, key.Name, key.CreatedAt,
	)
	return err
}

func revokeAPIKey(ctx context.Context, db execer, id string, at time.Time) error {
	tag, err := db.Exec(ctx, `UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("revoke API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// scanAPIKey reads apiKeyColumns in order. pgx.Rows and
// pgx.CollectableRow both satisfy pgx.Row.
func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	err := row.Scan(
		&key.ID, &key.UserID, &key.KeyHash, &key.KeyPrefix,
		pq.Array(&key.Scopes), &key.RateLimitTier, &key.Name,
		&key.RevokedAt, &key.LastUsedAt, &key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}
