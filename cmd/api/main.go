package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/newsletter-service/internal/config"
	"github.com/spec-kit/newsletter-service/internal/observability"
	"github.com/spec-kit/newsletter-service/internal/persistence"
)

func main() {
	root := &cobra.Command{
		Use:           "newsletter-service",
		Short:         "Newsletter subscription and delivery API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBootstrap(cmd.Context(), serve)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBootstrap(cmd.Context(), migrate)
		},
	}

	root.AddCommand(serveCmd, migrateCmd)
	// bare invocation serves
	root.RunE = serveCmd.RunE

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatalf("newsletter-service: %v", err)
	}
}

type bootstrap struct {
	cfg    *config.Config
	logger *zap.Logger
}

func withBootstrap(ctx context.Context, run func(context.Context, bootstrap) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env == "development")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	return run(ctx, bootstrap{cfg: cfg, logger: logger})
}

func migrate(ctx context.Context, rt bootstrap) error {
	if rt.cfg.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required to run migrations")
	}
	pg, err := persistence.NewPostgres(ctx, rt.cfg.Postgres, rt.logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	return pg.Migrate(ctx, rt.cfg.Postgres.MigrationsDir, rt.logger)
}
