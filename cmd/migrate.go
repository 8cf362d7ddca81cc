package cmd

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Apply the SQL migrations under db/migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE:      runMigration,
	}
	migrateRollback bool
	migrateDir      string
)

const migrationsTable = "schema_migrations"

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "roll back the latest migration (same as 'migrate down')")
	migrateCmd.PersistentFlags().StringVarP(&migrateDir, "dir", "d", "db/migrations", "sql migrations directory")
}

func migrationCommand(args []string) string {
	switch {
	case len(args) == 1:
		return args[0]
	case migrateRollback:
		return "down"
	default:
		return "up"
	}
}

func runMigration(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := goose.OpenDBWithDriver("pgx", cfg.Database.Source)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	goose.SetTableName(migrationsTable)

	command := migrationCommand(args)
	if err := goose.RunContext(context.Background(), command, db, migrateDir); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}
