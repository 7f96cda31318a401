package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/retail-ledger/store/postgres"
	"github.com/warp/retail-ledger/store/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long: `Creates or upgrades the schema of the configured database. SQLite
schemas are created on open; PostgreSQL migrations run through goose and
the resulting version is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Database.Driver != "postgres" {
			lite, err := sqlite.New(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer lite.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema ready at %s\n", cfg.Database.Path)
			return nil
		}

		pg, err := postgres.New(ctx, cfg.Database.URL, postgres.PoolConfig{MaxConns: 2})
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		version, err := pg.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "postgres schema at version %d\n", version)
		return nil
	},
}
