package cmd

import (
	"fmt"

	"github.com/matthieukhl/segmentor/internal/config"
	"github.com/matthieukhl/segmentor/internal/database"
	"github.com/matthieukhl/segmentor/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the segmentation dashboard",
	Long: `Start the dashboard server which provides:
- an HTML dashboard with a cluster filter
- JSON endpoints for segments, dashboard views and summaries

Data comes from the segmented CSV (server.source: csv) or from the clusters
table (server.source: db).`,
	RunE: serveDashboard,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
}

func serveDashboard(cmd *cobra.Command, args []string) error {
	fmt.Println("🚀 Segmentor dashboard starting...")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := pick(serveAddr, cfg.Server.Addr)

	var (
		source server.Source
		db     *database.DB
	)
	if cfg.Server.Source == config.SourceDB {
		db, err = connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		source = server.DBSource{DB: db}
	} else {
		fmt.Printf("📂 Serving %s\n", cfg.Paths.SegmentsFile)
		source = server.CSVSource{Path: cfg.Paths.SegmentsFile}
	}

	fmt.Println("⚙️  Setting up server...")
	srv := server.NewServer(source, db, cfg.Report.ChurnThresholdDays)

	fmt.Printf("🌐 Starting server on %s...\n", addr)
	if err := srv.Start(addr); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
