package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/auth"
	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/persistence"
	"github.com/sst-resolve/resolve-service/internal/policyfile"
)

var (
	tokenRole string
	relayOnce bool
)

func newSweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one SLA breach sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			app, err := newApplication(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.sweeps.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			if relayOnce {
				result, err := app.outboxRelay().ProcessOnce(cmd.Context())
				if err != nil {
					return err
				}
				logger.Info("outbox flushed", zap.Int("published", result.Published), zap.Int("failed", result.Failed))
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&relayOnce, "relay", false, "Publish the events the sweep recorded before exiting")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.Postgres.DSN == "" {
				return errors.New("POSTGRES_DSN is required for migrate")
			}
			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()
			return persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger)
		},
	}
}

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage escalation rules and SLA budgets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Upsert users, categories, scopes, budgets and rules from a YAML file",
		Long: `Upsert users, categories, scopes, budgets and rules from a YAML file, then drop
cached SLA policies.

Only the shared cache is dropped for running servers. With
SLA_POLICY_CACHE_BACKEND=redis every instance sees the new rules at once; with the
memory backend each server keeps its cached policies until
SLA_POLICY_CACHE_TTL_SECONDS expires or it restarts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			file, err := policyfile.Load(args[0])
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := file.Apply(cmd.Context(), app.store)
			if err != nil {
				return err
			}
			if err := app.resolver.Invalidate(cmd.Context()); err != nil {
				logger.Warn("policy cache invalidation failed", zap.Error(err))
			}
			if !app.sharedPolicyCache() {
				logger.Warn("policy cache is per process; running servers keep cached policies until the TTL expires",
					zap.Duration("ttl", cfg.SLA.PolicyCacheTTL()))
			}
			return printJSON(cmd, report)
		},
	})
	return cmd
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a signed bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			role := domain.Role(tokenRole)
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", tokenRole)
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(args[0], role)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"token": token, "expires_at": expiresAt})
		},
	}
	cmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleStudent), "Role claim to embed")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
