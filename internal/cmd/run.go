package cmd

import (
	"fmt"

	"github.com/matthieukhl/segmentor/internal/database"
	"github.com/matthieukhl/segmentor/internal/pipeline"
	"github.com/spf13/cobra"
)

var skipDB bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full segmentation pipeline",
	Long: `Run every stage in order:
- build customer features from the raw export
- load features into the database
- compute the elbow curve and the final clustering
- load cluster assignments into the database
- export cluster and segment summaries

Every failure is fatal. Reruns on the same input give the same output.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&skipDB, "skip-db", false, "Skip database loads and run logging")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	fmt.Println("🚀 Segmentation pipeline starting...")

	fmt.Println("📝 Loading configuration...")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var runner *pipeline.Runner
	if skipDB {
		fmt.Println("⏭️  Skipping database stages")
		runner = pipeline.NewRunner(cfg, nil, nil)
	} else {
		db, err := connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		runner = pipeline.NewRunner(cfg, database.NewSink(db, cfg.DB.BatchSize), db)
	}

	out, err := runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	fmt.Printf("✅ Run %s complete: %d customers in %d clusters (inertia %.2f)\n",
		out.RunID, len(out.Features), cfg.Segmentation.K, out.Result.Inertia)
	for _, c := range out.Summary.Clusters {
		fmt.Printf("   • Cluster %d: %d customers, avg spend %.2f, avg recency %.1f days, %d high churn risk\n",
			c.Cluster, c.NumCustomers, c.AvgTotalSpend, c.AvgRecency, c.NumHighChurnRisk)
	}
	return nil
}
