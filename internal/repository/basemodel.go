package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/platformx/platformx/internal/model"
)

// ErrBaseModelNotFound is returned when a base model id has no catalog entry.
var ErrBaseModelNotFound = errors.New("base model not found")

const baseModelColumns = `id, display_name, generic_name, description, is_pro, default_temperature, default_top_p, created_at`

// ListBaseModels returns the whole catalog ordered by display name.
func (r *Repository) ListBaseModels(ctx context.Context) ([]*model.BaseModel, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+baseModelColumns+` FROM base_models ORDER BY is_pro, display_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list base models: %w", err)
	}
	defer rows.Close()

	var out []*model.BaseModel
	for rows.Next() {
		bm, err := scanBaseModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan base model: %w", err)
		}
		out = append(out, bm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating base models: %w", err)
	}
	return out, nil
}

// GetBaseModelByID retrieves one catalog entry.
func (r *Repository) GetBaseModelByID(ctx context.Context, id string) (*model.BaseModel, error) {
	bm, err := scanBaseModel(r.pool.QueryRow(ctx, `SELECT `+baseModelColumns+` FROM base_models WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBaseModelNotFound
		}
		return nil, fmt.Errorf("failed to get base model: %w", err)
	}
	return bm, nil
}

// UpsertBaseModels writes catalog entries in one batch, replacing existing ids.
func (r *Repository) UpsertBaseModels(ctx context.Context, models []*model.BaseModel) error {
	if len(models) == 0 {
		return nil
	}

	query := `
		INSERT INTO base_models (id, display_name, generic_name, description, is_pro, default_temperature, default_top_p, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			generic_name = EXCLUDED.generic_name,
			description = EXCLUDED.description,
			is_pro = EXCLUDED.is_pro,
			default_temperature = EXCLUDED.default_temperature,
			default_top_p = EXCLUDED.default_top_p
	`

	batch := &pgx.Batch{}
	for _, bm := range models {
		batch.Queue(query,
			bm.ID,
			bm.DisplayName,
			bm.GenericName,
			bm.Description,
			bm.IsPro,
			bm.DefaultTemperature,
			bm.DefaultTopP,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range models {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert base model %s: %w", models[i].ID, err)
		}
	}
	return nil
}

func scanBaseModel(row pgx.Row) (*model.BaseModel, error) {
	var bm model.BaseModel
	err := row.Scan(
		&bm.ID,
		&bm.DisplayName,
		&bm.GenericName,
		&bm.Description,
		&bm.IsPro,
		&bm.DefaultTemperature,
		&bm.DefaultTopP,
		&bm.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bm, nil
}
