package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/envboot/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply preference store migrations (sqlite or postgres)",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("db-url", "", "database URL (defaults to store.url)")
	migrateCmd.Flags().Bool("status", false, "only print migration status")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if _, err := setupLogger(cmd); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dbURL, _ := cmd.Flags().GetString("db-url")
	if dbURL == "" {
		dbURL = cfg.Store.URL
	}
	if strings.HasPrefix(dbURL, "memory:") || strings.HasPrefix(dbURL, "redis") {
		return fmt.Errorf("store %q has no migrations; use sqlite:// or postgres://", dbURL)
	}

	ctx := context.Background()
	database, err := db.Open(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if statusOnly, _ := cmd.Flags().GetBool("status"); !statusOnly {
		if err := db.MigrateUp(ctx, database); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				state += " " + s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-32s %s\n", s.ID, state)
	}
	return nil
}
