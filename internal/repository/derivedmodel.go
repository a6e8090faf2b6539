package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/platformx/platformx/internal/model"
)

// Common errors for derived model repository operations.
var (
	ErrDerivedModelNotFound = errors.New("derived model not found")
	ErrDatasetNotFound      = errors.New("dataset not found")
)

const derivedModelDetailsSelect = `
	SELECT dm.id, dm.display_name, dm.description, dm.category, dm.base_model_id, dm.owner_id,
	       dm.is_fine_tuned, dm.response_format, dm.is_public, dm.transaction_hash, dm.created_at,
	       bm.id, bm.display_name, bm.generic_name, bm.description, bm.is_pro,
	       bm.default_temperature, bm.default_top_p, bm.created_at,
	       u.name
	FROM derived_models dm
	JOIN base_models bm ON bm.id = dm.base_model_id
	JOIN users u ON u.id = dm.owner_id
`

// DerivedModelFilter narrows public model listings.
type DerivedModelFilter struct {
	Category string
	Search   string
	Offset   int
	Limit    int
}

// CreateDerivedModel inserts a derived model and its dataset in one transaction,
// so a dataset never exists without its model.
func (r *Repository) CreateDerivedModel(ctx context.Context, dm *model.DerivedModel, ds *model.Dataset) error {
	data, err := json.Marshal(ds.Data)
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO derived_models (
				id, display_name, description, category, base_model_id, owner_id,
				is_fine_tuned, response_format, is_public, transaction_hash, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			dm.ID,
			dm.DisplayName,
			dm.Description,
			dm.Category,
			dm.BaseModelID,
			dm.OwnerID,
			dm.IsFineTuned,
			dm.ResponseFormat,
			dm.IsPublic,
			dm.TransactionHash,
			dm.CreatedAt,
		)
		if err != nil {
			return mapDerivedModelFKError(err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO datasets (id, derived_model_id, data, created_at)
			VALUES ($1, $2, $3, $4)`,
			ds.ID,
			dm.ID,
			data,
			ds.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create dataset: %w", err)
		}
		return nil
	})
}

func mapDerivedModelFKError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		if strings.Contains(pgErr.ConstraintName, "base_model") {
			return ErrBaseModelNotFound
		}
		return ErrUserNotFound
	}
	return fmt.Errorf("failed to create derived model: %w", err)
}

// GetDerivedModelDetails returns a derived model joined with its base model and owner.
func (r *Repository) GetDerivedModelDetails(ctx context.Context, id string) (*model.DerivedModelDetails, error) {
	row := r.pool.QueryRow(ctx, derivedModelDetailsSelect+` WHERE dm.id = $1`, id)
	details, err := scanDerivedModelDetails(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDerivedModelNotFound
		}
		return nil, fmt.Errorf("failed to get derived model: %w", err)
	}
	return details, nil
}

// ListPublicDerivedModels returns one page of public models and the total match count.
func (r *Repository) ListPublicDerivedModels(ctx context.Context, filter DerivedModelFilter) ([]*model.DerivedModelDetails, int64, error) {
	offset, limit := ListPage(filter.Offset, filter.Limit)

	where := ` WHERE dm.is_public`
	args := []any{}
	if filter.Category != "" && filter.Category != model.FilterAll {
		args = append(args, filter.Category)
		where += fmt.Sprintf(" AND dm.category = $%d", len(args))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		where += fmt.Sprintf(" AND (dm.display_name ILIKE $%d OR dm.description ILIKE $%d)", len(args), len(args))
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM derived_models dm` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count derived models: %w", err)
	}

	args = append(args, limit, offset)
	query := derivedModelDetailsSelect + where +
		fmt.Sprintf(" ORDER BY dm.created_at DESC, dm.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	models, err := r.queryDerivedModelDetails(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return models, total, nil
}

// ListDerivedModelsByOwner returns every model a user built, newest first.
func (r *Repository) ListDerivedModelsByOwner(ctx context.Context, ownerID string) ([]*model.DerivedModelDetails, error) {
	return r.queryDerivedModelDetails(ctx,
		derivedModelDetailsSelect+` WHERE dm.owner_id = $1 ORDER BY dm.created_at DESC, dm.id DESC`,
		ownerID,
	)
}

// ListPublicCategories returns the distinct categories of public models.
func (r *Repository) ListPublicCategories(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, `SELECT DISTINCT category FROM derived_models WHERE is_public ORDER BY category`)
}

func (r *Repository) queryDerivedModelDetails(ctx context.Context, query string, args ...any) ([]*model.DerivedModelDetails, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list derived models: %w", err)
	}
	defer rows.Close()

	var out []*model.DerivedModelDetails
	for rows.Next() {
		details, err := scanDerivedModelDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan derived model: %w", err)
		}
		out = append(out, details)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating derived models: %w", err)
	}
	return out, nil
}

func (r *Repository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func scanDerivedModelDetails(row pgx.Row) (*model.DerivedModelDetails, error) {
	var d model.DerivedModelDetails
	err := row.Scan(
		&d.ID,
		&d.DisplayName,
		&d.Description,
		&d.Category,
		&d.BaseModelID,
		&d.OwnerID,
		&d.IsFineTuned,
		&d.ResponseFormat,
		&d.IsPublic,
		&d.TransactionHash,
		&d.CreatedAt,
		&d.BaseModel.ID,
		&d.BaseModel.DisplayName,
		&d.BaseModel.GenericName,
		&d.BaseModel.Description,
		&d.BaseModel.IsPro,
		&d.BaseModel.DefaultTemperature,
		&d.BaseModel.DefaultTopP,
		&d.BaseModel.CreatedAt,
		&d.OwnerName,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDatasetByModelID returns the dataset attached to a derived model.
func (r *Repository) GetDatasetByModelID(ctx context.Context, modelID string) (*model.Dataset, error) {
	query := `
		SELECT id, derived_model_id, data, created_at
		FROM datasets
		WHERE derived_model_id = $1
	`

	var ds model.Dataset
	var raw []byte
	err := r.pool.QueryRow(ctx, query, modelID).Scan(&ds.ID, &ds.DerivedModelID, &raw, &ds.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	if err := json.Unmarshal(raw, &ds.Data); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", ds.ID, err)
	}
	return &ds, nil
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
