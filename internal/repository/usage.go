package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/platformx/platformx/internal/model"
)

// UsageRepository persists generation usage events and their daily rollups.
type UsageRepository struct {
	repo *Repository
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(repo *Repository) *UsageRepository {
	return &UsageRepository{repo: repo}
}

// BulkInsert stores usage events, skipping ones already ingested.
func (r *UsageRepository) BulkInsert(ctx context.Context, events []*model.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO usage_events (event_id, derived_model_id, user_id, provider, generated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(query,
			event.EventID,
			event.DerivedModelID,
			event.UserID,
			event.Provider,
			event.GeneratedAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert usage event %d: %w", i, err)
		}
	}

	return nil
}

type dailyUsageKey struct {
	modelID string
	day     time.Time
}

// uniqueDailyKeys returns the distinct (model, UTC day) pairs touched by events,
// in a stable order.
func uniqueDailyKeys(events []*model.UsageEvent) []dailyUsageKey {
	seen := make(map[string]dailyUsageKey)
	for _, event := range events {
		day := event.GeneratedAt.UTC().Truncate(24 * time.Hour)
		seen[event.DerivedModelID+":"+day.Format(time.DateOnly)] = dailyUsageKey{modelID: event.DerivedModelID, day: day}
	}

	keys := make([]dailyUsageKey, 0, len(seen))
	for _, key := range seen {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].modelID != keys[j].modelID {
			return keys[i].modelID < keys[j].modelID
		}
		return keys[i].day.Before(keys[j].day)
	})
	return keys
}

// UpdateDailyUsage recomputes model_usage_daily for every day touched by events.
// Recounting from usage_events keeps the rollup correct when a batch is redelivered.
func (r *UsageRepository) UpdateDailyUsage(ctx context.Context, events []*model.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO model_usage_daily (derived_model_id, day, provider, generations)
		SELECT derived_model_id, $2::date, provider, COUNT(*)
		FROM usage_events
		WHERE derived_model_id = $1 AND generated_at >= $2 AND generated_at < $3
		GROUP BY derived_model_id, provider
		ON CONFLICT (derived_model_id, day, provider) DO UPDATE SET
			generations = EXCLUDED.generations
	`

	for _, key := range uniqueDailyKeys(events) {
		if _, err := r.repo.pool.Exec(ctx, query, key.modelID, key.day, key.day.Add(24*time.Hour)); err != nil {
			return fmt.Errorf("update daily usage %s:%s: %w", key.modelID, key.day.Format(time.DateOnly), err)
		}
	}
	return nil
}

// GetDailyUsage returns the rollup rows for a model within [from, to], newest first.
func (r *UsageRepository) GetDailyUsage(ctx context.Context, modelID string, from, to time.Time) ([]*model.ModelUsageDaily, error) {
	query := `
		SELECT derived_model_id, day, provider, generations
		FROM model_usage_daily
		WHERE derived_model_id = $1 AND day >= $2::date AND day <= $3::date
		ORDER BY day DESC, provider
	`

	rows, err := r.repo.pool.Query(ctx, query, modelID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily usage: %w", err)
	}
	defer rows.Close()

	var out []*model.ModelUsageDaily
	for rows.Next() {
		var u model.ModelUsageDaily
		if err := rows.Scan(&u.DerivedModelID, &u.Day, &u.Provider, &u.Generations); err != nil {
			return nil, fmt.Errorf("scan daily usage: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// SummarizeUsage folds daily rows into totals.
func SummarizeUsage(modelID string, from, to time.Time, daily []*model.ModelUsageDaily) *model.UsageSummary {
	summary := &model.UsageSummary{
		DerivedModelID: modelID,
		From:           from,
		To:             to,
		ByProvider:     make(map[string]int64),
		Daily:          daily,
	}
	for _, d := range daily {
		summary.Total += d.Generations
		summary.ByProvider[d.Provider] += d.Generations
	}
	if summary.Daily == nil {
		summary.Daily = []*model.ModelUsageDaily{}
	}
	return summary
}
