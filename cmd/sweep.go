package main

import (
	"context"

	"github.com/duynhne/pkg/logger/zerolog"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	database "github.com/duynhne/identity-service/internal/core"
	logicv1 "github.com/duynhne/identity-service/internal/logic/v1"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions and reset codes once",
		RunE:  runSweep,
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	zerolog.Setup(cfg.Logging.Level)

	ctx := context.Background()
	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer store.Close(ctx)

	sweeper := logicv1.NewSweeper(store.Sessions, store.Resets, 0)
	sessions, resets, err := sweeper.SweepOnce(ctx)
	if err != nil {
		return oops.Code("SWEEP_FAILED").Wrap(err)
	}

	cmd.Printf("Removed %d expired sessions and %d expired reset codes\n", sessions, resets)
	return nil
}
