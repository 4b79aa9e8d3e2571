package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/templui/storyline/internal/config"
	"github.com/templui/storyline/internal/db"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations (uses DB_DRIVER and DB_CONNECTION)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, database *sqlx.DB, driver string) error {
				err := db.RunMigrations(ctx, database.DB, driver)
				if err != nil {
					return err
				}
				return printVersion(ctx, database, driver)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, database *sqlx.DB, driver string) error {
				err := db.MigrateDown(ctx, database.DB, driver)
				if err != nil {
					return err
				}
				return printVersion(ctx, database, driver)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), printVersion)
		},
	})

	return cmd
}

func withDB(ctx context.Context, fn func(ctx context.Context, database *sqlx.DB, driver string) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Load()
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close(database)

	return fn(ctx, database, cfg.DBDriver)
}

func printVersion(ctx context.Context, database *sqlx.DB, driver string) error {
	version, err := db.Version(ctx, database.DB, driver)
	if err != nil {
		return err
	}
	fmt.Printf("==> schema version %d\n", version)
	return nil
}
