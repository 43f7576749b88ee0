package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/matthieukhl/segmentor/internal/config"
	"github.com/matthieukhl/segmentor/internal/database"
	"github.com/matthieukhl/segmentor/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "segmentor",
	Short: "Segmentor - customer segmentation pipeline",
	Long: `Segmentor turns a raw e-commerce transaction export into per-customer
behavioral features, clusters customers with k-means, stores the results in a
relational database and serves a dashboard over the segments.

Run the whole pipeline with "segmentor run", or any stage on its own.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./segmentor.yaml, ./deploy/segmentor.yaml, $HOME/.segmentor/segmentor.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug|info|warn|error)")
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logging.Setup(level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// connect opens the database and brings its schema up to date.
func connect(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	fmt.Printf("🔌 Connecting to %s database...\n", cfg.DB.Driver)
	db, err := database.NewConnection(ctx, &cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	fmt.Println("✅ Database connected successfully")
	return db, nil
}
