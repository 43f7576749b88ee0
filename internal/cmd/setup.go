package cmd

import (
	"fmt"

	"github.com/matthieukhl/segmentor/internal/database"
	"github.com/spf13/cobra"
)

var dropFirst bool

var setupCmd = &cobra.Command{
	Use:   "setup-db",
	Short: "Create the database schema",
	Long: `Creates the pipeline tables (dim_customer_features, dim_customer_clusters,
pipeline_runs) and records the schema version. Safe to run repeatedly.`,
	RunE: setupDatabase,
}

func init() {
	rootCmd.AddCommand(setupCmd)

	setupCmd.Flags().BoolVar(&dropFirst, "drop-first", false, "Drop existing pipeline tables before creating")
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	fmt.Println("🔧 Setting up database...")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := database.NewConnection(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Drop tables if requested
	if dropFirst {
		fmt.Println("🗑️  Dropping existing tables...")
		if err := db.DropAll(ctx); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}

	fmt.Println("📋 Creating schema...")
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	version, err := db.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	fmt.Printf("✅ Database ready at schema version %d\n", version)
	return nil
}
