package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/platformx/platformx/migrations"
)

// MigrationStatus is one line of `platformctl migrate status` output.
type MigrationStatus struct {
	Version int64
	Source  string
	Applied bool
}

func (r *Repository) migrationProvider() (*goose.Provider, func() error, error) {
	db := stdlib.OpenDBFromPool(r.pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migration provider: %w", err)
	}
	return provider, db.Close, nil
}

// Migrate applies all pending migrations.
func (r *Repository) Migrate(ctx context.Context, logger *slog.Logger) error {
	provider, closeDB, err := r.migrationProvider()
	if err != nil {
		return err
	}
	defer closeDB()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		logger.Info("migration applied",
			"version", res.Source.Version,
			"source", res.Source.Path,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (r *Repository) MigrateDown(ctx context.Context) (int64, error) {
	provider, closeDB, err := r.migrationProvider()
	if err != nil {
		return 0, err
	}
	defer closeDB()

	res, err := provider.Down(ctx)
	if err != nil {
		return 0, fmt.Errorf("roll back migration: %w", err)
	}
	return res.Source.Version, nil
}

// MigrationStatuses reports every known migration and whether it is applied.
func (r *Repository) MigrationStatuses(ctx context.Context) ([]MigrationStatus, error) {
	provider, closeDB, err := r.migrationProvider()
	if err != nil {
		return nil, err
	}
	defer closeDB()

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("read migration status: %w", err)
	}

	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Source:  s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
