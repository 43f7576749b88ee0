package cmd

import (
	"fmt"

	"github.com/matthieukhl/segmentor/internal/pipeline"
	"github.com/spf13/cobra"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Build the customer features table from the raw export",
	RunE:  buildFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}

func buildFeatures(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("📂 Reading %s...\n", cfg.Paths.RawFile)
	rows, err := pipeline.NewRunner(cfg, nil, nil).BuildFeatures(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to build features: %w", err)
	}

	fmt.Printf("✅ %d customers written to %s\n", len(rows), cfg.Paths.FeaturesFile)
	return nil
}
