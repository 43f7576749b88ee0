package cmd

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/matthieukhl/segmentor/internal/database"
	"github.com/matthieukhl/segmentor/internal/features"
	"github.com/matthieukhl/segmentor/internal/segment"
	"github.com/spf13/cobra"
)

var (
	loadTable string
	loadMode  string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the features or segmented table into the database",
	Long: `Load a table file into the database.

  --table features   loads the features file into dim_customer_features
  --table clusters   loads the segmented file into dim_customer_clusters

The write mode defaults to db.features_mode or db.clusters_mode:
- upsert: insert or update by customer id
- truncate: clear the table and reload it
- append: plain insert, duplicate customers fail the load`,
	RunE: loadTableFile,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVar(&loadTable, "table", "clusters", "Table to load (features|clusters)")
	loadCmd.Flags().StringVar(&loadMode, "mode", "", "Write mode (upsert|truncate|append)")
}

func loadTableFile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	sink := database.NewSink(db, cfg.DB.BatchSize)

	switch loadTable {
	case "features":
		mode := pick(loadMode, cfg.DB.FeaturesMode)
		if err := checkHeader(cfg.Paths.FeaturesFile, database.FeaturesTable); err != nil {
			return err
		}
		rows, err := features.ReadFile(cfg.Paths.FeaturesFile)
		if err != nil {
			return fmt.Errorf("failed to read features: %w", err)
		}
		fmt.Printf("📥 Loading %d rows into %s (%s)...\n", len(rows), database.FeaturesTable.Name, mode)
		if err := sink.WriteFeatures(ctx, rows, mode); err != nil {
			return fmt.Errorf("failed to load features: %w", err)
		}
	case "clusters":
		mode := pick(loadMode, cfg.DB.ClustersMode)
		if err := checkHeader(cfg.Paths.SegmentsFile, database.ClustersTable); err != nil {
			return err
		}
		rows, err := segment.ReadFile(cfg.Paths.SegmentsFile)
		if err != nil {
			return fmt.Errorf("failed to read segments: %w", err)
		}
		fmt.Printf("📥 Loading %d rows into %s (%s)...\n", len(rows), database.ClustersTable.Name, mode)
		if err := sink.WriteSegments(ctx, rows, mode); err != nil {
			return fmt.Errorf("failed to load segments: %w", err)
		}
	default:
		return fmt.Errorf("unknown table: %s", loadTable)
	}

	fmt.Println("✅ Load complete")
	return nil
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

// checkHeader rejects a table file whose header does not cover the target table.
func checkHeader(path string, table database.Table) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return table.ValidateHeader(header)
}
