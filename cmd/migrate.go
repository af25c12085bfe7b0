package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/selfie-finder/internal/database/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	Long: `Apply pending PostgreSQL schema migrations and list the applied ones.
The serve command applies migrations on startup as well.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "Only list applied migrations")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Backend != "postgres" {
		return errors.New("migrations only apply to the postgres backend, set DATABASE_URL")
	}
	ctx := cmd.Context()

	if mustGetBool(cmd, "status") {
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pool.Close()

		names, err := pool.MigrationsApplied(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Applied migrations: %d\n", len(names))
		for _, name := range names {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}

	pool, applied, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if len(applied) == 0 {
		fmt.Println("Database is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Printf("Applied %s\n", name)
	}
	return nil
}
