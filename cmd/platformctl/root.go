package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/platformx/platformx/internal/config"
	"github.com/platformx/platformx/internal/repository"
)

type globalOptions struct {
	databaseURL string
	timeout     time.Duration
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "platformctl",
		Short:         "PlatformX operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			if opts.databaseURL == "" {
				opts.databaseURL = os.Getenv("DATABASE_URL")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection string (default $DATABASE_URL)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedBaseModelsCmd(opts))
	cmd.AddCommand(newSeedMarketplaceCmd(opts))
	cmd.AddCommand(newCreateAPIKeyCmd(opts))
	cmd.AddCommand(newGrantSubscriptionCmd(opts))
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *globalOptions) logger() *slog.Logger {
	return config.NewLogger(&config.Config{LogLevel: o.logLevel, LogFormat: "text"}, os.Stderr)
}

// connect opens the repository and returns a context bounded by --timeout.
func (o *globalOptions) connect(cmd *cobra.Command) (context.Context, *repository.Repository, func(), error) {
	if o.databaseURL == "" {
		return nil, nil, nil, errors.New("DATABASE_URL is required (flag --database-url or environment)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	repo, err := repository.New(ctx, o.databaseURL)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect database: %s", config.SanitizeError(err, o.databaseURL))
	}

	cleanup := func() {
		repo.Close()
		cancel()
	}
	return ctx, repo, cleanup, nil
}
