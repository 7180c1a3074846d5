package cmd

import (
	"fmt"
	"strings"

	"github.com/killallgit/echonote-api/internal/database"
	"github.com/killallgit/echonote-api/internal/models"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Manage the EchoNote database schema.

Available subcommands:
  up      - Create or update every table
  status  - Show which tables exist`,
}

// migrateUpCmd applies the schema
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create or update every table",
	Long: `Apply the current schema to the configured database.

Missing tables, columns and indexes are created. Existing data is kept.`,
	RunE: runMigrateUp,
}

// migrateStatusCmd shows schema status
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long: `Display the current status of the database schema.

Every table the server needs is listed as present or missing.`,
	RunE: runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	migrateCmd.PersistentFlags().Bool("dry-run", false, "show what would be done without making changes")
}

func openDatabase(cmd *cobra.Command) (*database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = cfg.Database.Path
	}
	return database.Initialize(path, cfg.Database.LogQueries)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Fprintln(out, "Dry run mode - no changes will be made")
		return printStatus(cmd, db)
	}

	if err := db.Migrate(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Schema is up to date")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	return printStatus(cmd, db)
}

func printStatus(cmd *cobra.Command, db *database.DB) error {
	tables, err := db.Tables()
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Database Migration Status")
	fmt.Fprintln(out, strings.Repeat("=", 50))

	for _, name := range models.TableNames() {
		state := "missing"
		if present[name] {
			state = "present"
		}
		fmt.Fprintf(out, "  %-30s %s\n", name, state)
	}
	return nil
}
