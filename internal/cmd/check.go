package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var showLast int

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show recent pipeline runs and stored cluster sizes",
	RunE:  checkRuns,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().IntVar(&showLast, "last", 10, "Number of recent runs to show")
}

func checkRuns(cmd *cobra.Command, args []string) error {
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

	runs, err := db.RecentRuns(ctx, showLast)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("📭 No pipeline runs recorded yet")
	} else {
		fmt.Printf("🔍 Last %d runs:\n", len(runs))
	}
	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Printf("   %s  %s  %-9s  customers=%d k=%d seed=%d inertia=%.2f took=%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.NumCustomers, r.K, r.Seed, r.Inertia, took)
		if r.Error != "" {
			fmt.Printf("      ❌ %s\n", r.Error)
		}
	}

	counts, err := db.ClusterCounts(ctx)
	if err != nil {
		return err
	}
	fmt.Println("📊 Stored cluster sizes:")
	for _, c := range counts {
		fmt.Printf("   • Cluster %d: %d customers\n", c.Cluster, c.Count)
	}
	return nil
}
