package cmd

import (
	"fmt"

	"github.com/matthieukhl/segmentor/internal/pipeline"
	"github.com/matthieukhl/segmentor/internal/report"
	"github.com/spf13/cobra"
)

var xlsxPath string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export cluster and segment summaries",
	Long: `Read the segmented table and export:
- a cluster summary (counts, mean spend, orders and recency, churn risk counts)
- a segment summary when the table has a Segment column

Avg_CLV columns appear only when the table has CLV_Estimate. Churn_Risk is
derived from recency when the table does not carry it.`,
	RunE: exportReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write both summaries to this XLSX workbook")
}

func exportReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table, err := report.LoadSegmented(cfg.Paths.SegmentsFile)
	if err != nil {
		return fmt.Errorf("failed to load segments: %w", err)
	}

	sum, err := pipeline.NewRunner(cfg, nil, nil).Summarize(cmd.Context(), table)
	if err != nil {
		return fmt.Errorf("failed to export summaries: %w", err)
	}
	fmt.Printf("📊 Summary saved to %s\n", cfg.Paths.SummaryFile)
	if len(sum.Segments) > 0 {
		fmt.Printf("📊 Segment summary saved to %s\n", cfg.Paths.SegmentSummaryFile)
	}

	if xlsxPath != "" {
		if err := report.WriteWorkbook(xlsxPath, sum); err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
		fmt.Printf("📗 Workbook saved to %s\n", xlsxPath)
	}
	return nil
}
