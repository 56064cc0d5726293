package main

import (
	"context"

	"github.com/duynhne/pkg/logger/zerolog"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	database "github.com/duynhne/identity-service/internal/core"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply pending goose migrations (postgres) or create the collection
indexes, including the TTL indexes (mongo).`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	zerolog.Setup(cfg.Logging.Level)

	ctx := context.Background()

	cmd.Println("Connecting to database...")
	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer store.Close(ctx)

	cmd.Println("Running migrations...")
	if err := store.Migrate(ctx); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
