package cmd

import (
	"fmt"

	"github.com/matthieukhl/segmentor/internal/features"
	"github.com/matthieukhl/segmentor/internal/pipeline"
	"github.com/spf13/cobra"
)

var segmentK int

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Cluster the features table and write the segmented table",
	Long: `Scale the features, compute the elbow curve over the configured range,
fit the final clustering and write the segmented table, the elbow curve and the
chart links. The elbow curve is advisory: k comes from configuration or --k.`,
	RunE: segmentCustomers,
}

func init() {
	rootCmd.AddCommand(segmentCmd)

	segmentCmd.Flags().IntVar(&segmentK, "k", 0, "Override the number of clusters")
}

func segmentCustomers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if segmentK > 0 {
		cfg.Segmentation.K = segmentK
	}

	rows, err := features.ReadFile(cfg.Paths.FeaturesFile)
	if err != nil {
		return fmt.Errorf("failed to read features: %w", err)
	}

	fmt.Printf("🧮 Clustering %d customers into %d segments...\n", len(rows), cfg.Segmentation.K)
	res, elbow, err := pipeline.NewRunner(cfg, nil, nil).Segment(cmd.Context(), rows)
	if err != nil {
		return fmt.Errorf("failed to segment customers: %w", err)
	}

	fmt.Println("📉 Elbow curve:")
	for _, p := range elbow {
		fmt.Printf("   k=%d inertia=%.2f\n", p.K, p.Inertia)
	}
	fmt.Printf("✅ Segments written to %s (inertia %.2f after %d iterations)\n",
		cfg.Paths.SegmentsFile, res.Inertia, res.Iterations)
	return nil
}
