package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/service"
)

type apiKeyOutput struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	KeyID     string   `json:"key_id"`
	Key       string   `json:"key"`
	KeyPrefix string   `json:"key_prefix"`
	Scopes    []string `json:"scopes"`
	Tier      string   `json:"tier"`
}

func newCreateAPIKeyCmd(opts *globalOptions) *cobra.Command {
	var (
		email   string
		name    string
		scopes  string
		tier    string
		env     string
		format  string
		display string
	)

	cmd := &cobra.Command{
		Use:   "create-api-key",
		Short: "Mint an API key for a user, creating the user if needed",
		Long: "Mint an API key for a user, creating the user if needed.\n" +
			"Unlike self-service keys, operator keys may carry the admin scope and any tier.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedScopes, err := parseScopes(scopes)
			if err != nil {
				return err
			}
			if _, ok := model.TierConfigs[tier]; !ok {
				return fmt.Errorf("invalid tier: %s", tier)
			}
			format = strings.ToLower(format)
			if format != "plain" && format != "json" {
				return fmt.Errorf("invalid format %q; use plain or json", format)
			}

			ctx, repo, cleanup, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now().UTC()
			user, err := repo.GetOrCreateUser(ctx, &model.User{
				ID:        ulid.Make().String(),
				Email:     strings.ToLower(strings.TrimSpace(email)),
				Name:      display,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				return fmt.Errorf("ensure user: %w", err)
			}

			created, err := service.MintAPIKey(ctx, repo, env, user.ID, name, parsedScopes, tier, nil, opts.logger())
			if err != nil {
				return err
			}

			out := apiKeyOutput{
				UserID:    user.ID,
				Email:     user.Email,
				KeyID:     created.ID,
				Key:       created.Key,
				KeyPrefix: created.KeyPrefix,
				Scopes:    created.Scopes,
				Tier:      created.RateLimitTier,
			}
			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Key)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "owner email")
	cmd.Flags().StringVar(&display, "user-name", "Operator", "name used when the user is created")
	cmd.Flags().StringVar(&name, "name", "bootstrap", "key name")
	cmd.Flags().StringVar(&scopes, "scopes", model.ScopeDataRead, "comma-separated scopes ("+strings.Join(model.ValidScopes, ",")+")")
	cmd.Flags().StringVar(&tier, "tier", model.TierUnlimited, "rate limit tier")
	cmd.Flags().StringVar(&env, "env", "live", "key environment marker: live or test")
	cmd.Flags().StringVar(&format, "format", "plain", "output format: plain or json")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func parseScopes(input string) ([]string, error) {
	var scopes []string
	for _, part := range strings.Split(input, ",") {
		scope := strings.TrimSpace(part)
		if scope == "" {
			continue
		}
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		if !slices.Contains(scopes, scope) {
			scopes = append(scopes, scope)
		}
	}
	if len(scopes) == 0 {
		return []string{model.ScopeDataRead}, nil
	}
	return scopes, nil
}
