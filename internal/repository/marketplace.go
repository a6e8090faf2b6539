package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/platformx/platformx/internal/model"
)

// ErrMarketplaceDatasetNotFound is returned for unknown marketplace listings.
var ErrMarketplaceDatasetNotFound = errors.New("marketplace dataset not found")

const marketplaceColumns = `id, name, description, category, rating, data_length, created_at`

// MarketplaceQuery describes one listings page.
type MarketplaceQuery struct {
	Search   string
	Category string
	Sort     model.SortOption
	Offset   int
	Limit    int
}

// ListMarketplaceCategories returns the distinct categories of all listings.
func (r *Repository) ListMarketplaceCategories(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, `SELECT DISTINCT category FROM marketplace_datasets ORDER BY category`)
}

// ListMarketplaceDatasets returns one page of listings and the total match count.
// q.Sort must come from model.SortOptions; its column is interpolated into the query.
func (r *Repository) ListMarketplaceDatasets(ctx context.Context, q MarketplaceQuery) ([]*model.MarketplaceDataset, int64, error) {
	if _, ok := model.FindSortOption(q.Sort.Key); !ok {
		return nil, 0, fmt.Errorf("unknown sort option %q", q.Sort.Key)
	}
	offset, limit := ListPage(q.Offset, q.Limit)

	var conds []string
	var args []any
	if q.Category != "" && q.Category != model.FilterAll {
		args = append(args, q.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM marketplace_datasets`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count marketplace datasets: %w", err)
	}

	direction := "ASC"
	if q.Sort.Desc {
		direction = "DESC"
	}
	args = append(args, limit, offset)
	query := `SELECT ` + marketplaceColumns + ` FROM marketplace_datasets` + where +
		fmt.Sprintf(" ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d", q.Sort.Column, direction, len(args)-1, len(args))

	datasets, err := r.queryMarketplaceDatasets(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return datasets, total, nil
}

// GetMarketplaceDataset retrieves listing metadata by id.
func (r *Repository) GetMarketplaceDataset(ctx context.Context, id string) (*model.MarketplaceDataset, error) {
	ds, err := scanMarketplaceDataset(r.pool.QueryRow(ctx,
		`SELECT `+marketplaceColumns+` FROM marketplace_datasets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMarketplaceDatasetNotFound
		}
		return nil, fmt.Errorf("failed to get marketplace dataset: %w", err)
	}
	return ds, nil
}

// ListRelatedMarketplaceDatasets returns up to limit other listings in the same category.
func (r *Repository) ListRelatedMarketplaceDatasets(ctx context.Context, ds *model.MarketplaceDataset, limit int) ([]*model.MarketplaceDataset, error) {
	return r.queryMarketplaceDatasets(ctx,
		`SELECT `+marketplaceColumns+` FROM marketplace_datasets
		WHERE category = $1 AND id <> $2
		ORDER BY rating DESC, created_at DESC
		LIMIT $3`,
		ds.Category, ds.ID, limit,
	)
}

// GetMarketplaceContent returns the raw records behind a listing.
func (r *Repository) GetMarketplaceContent(ctx context.Context, datasetID string) (*model.MarketplaceContent, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM marketplace_records WHERE dataset_id = $1`, datasetID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMarketplaceDatasetNotFound
		}
		return nil, fmt.Errorf("failed to get marketplace content: %w", err)
	}

	content := &model.MarketplaceContent{DatasetID: datasetID}
	if err := json.Unmarshal(raw, &content.Data); err != nil {
		return nil, fmt.Errorf("decode marketplace content %s: %w", datasetID, err)
	}
	return content, nil
}

// UpsertMarketplaceDataset writes a listing and its records together.
func (r *Repository) UpsertMarketplaceDataset(ctx context.Context, ds *model.MarketplaceDataset, content *model.MarketplaceContent) error {
	data, err := json.Marshal(content.Data)
	if err != nil {
		return fmt.Errorf("marshal marketplace content: %w", err)
	}
	ds.DataLength = int64(len(content.Data))

	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO marketplace_datasets (id, name, description, category, rating, data_length, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				category = EXCLUDED.category,
				rating = EXCLUDED.rating,
				data_length = EXCLUDED.data_length`,
			ds.ID, ds.Name, ds.Description, ds.Category, ds.Rating, ds.DataLength, ds.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert marketplace dataset: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO marketplace_records (dataset_id, data) VALUES ($1, $2)
			ON CONFLICT (dataset_id) DO UPDATE SET data = EXCLUDED.data`,
			ds.ID, data,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert marketplace records: %w", err)
		}
		return nil
	})
}

func (r *Repository) queryMarketplaceDatasets(ctx context.Context, query string, args ...any) ([]*model.MarketplaceDataset, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list marketplace datasets: %w", err)
	}
	defer rows.Close()

	out := []*model.MarketplaceDataset{}
	for rows.Next() {
		ds, err := scanMarketplaceDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan marketplace dataset: %w", err)
		}
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating marketplace datasets: %w", err)
	}
	return out, nil
}

func scanMarketplaceDataset(row pgx.Row) (*model.MarketplaceDataset, error) {
	var ds model.MarketplaceDataset
	err := row.Scan(
		&ds.ID,
		&ds.Name,
		&ds.Description,
		&ds.Category,
		&ds.Rating,
		&ds.DataLength,
		&ds.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}
