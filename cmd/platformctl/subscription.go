package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/platformx/platformx/internal/billing"
)

func newGrantSubscriptionCmd(opts *globalOptions) *cobra.Command {
	var (
		userID string
		tier   string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "grant-subscription",
		Short: "Start or extend a user's subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			ctx, repo, cleanup, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sub, err := billing.NewService(repo, opts.logger()).Grant(ctx, userID, tier, time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s until %s\n", sub.UserID, sub.Tier, sub.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "user to grant")
	cmd.Flags().StringVar(&tier, "tier", "pro", "subscription tier")
	cmd.Flags().IntVar(&days, "days", 30, "length of the grant in days")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
