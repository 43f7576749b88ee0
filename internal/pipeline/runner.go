// Package pipeline runs the stages in order: features, segmentation, sink
// writes and summaries. Each stage completes before the next starts and any
// failure ends the run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matthieukhl/segmentor/internal/charts"
	"github.com/matthieukhl/segmentor/internal/config"
	"github.com/matthieukhl/segmentor/internal/features"
	"github.com/matthieukhl/segmentor/internal/ingest"
	"github.com/matthieukhl/segmentor/internal/models"
	"github.com/matthieukhl/segmentor/internal/report"
	"github.com/matthieukhl/segmentor/internal/segment"
	log "github.com/sirupsen/logrus"
)

// Sink stores the feature and segmented tables.
type Sink interface {
	WriteFeatures(ctx context.Context, rows []models.CustomerFeatures, mode string) error
	WriteSegments(ctx context.Context, rows []models.SegmentedCustomer, mode string) error
}

// RunLog records pipeline runs.
type RunLog interface {
	RecordRun(ctx context.Context, run *models.PipelineRun) error
	FinishRun(ctx context.Context, run *models.PipelineRun) error
}

// Outcome is what a full run produced.
type Outcome struct {
	RunID    string
	Features []models.CustomerFeatures
	Elbow    []segment.ElbowPoint
	Result   *segment.Result
	Summary  report.Summary
}

type Runner struct {
	cfg      *config.Config
	sink     Sink
	runs     RunLog
	renderer *charts.Renderer
	now      func() time.Time
}

// NewRunner builds a runner. sink and runs may be nil, in which case the
// database stages are skipped.
func NewRunner(cfg *config.Config, sink Sink, runs RunLog) *Runner {
	return &Runner{
		cfg:      cfg,
		sink:     sink,
		runs:     runs,
		renderer: charts.NewRenderer(cfg.Charts),
		now:      time.Now,
	}
}

func (r *Runner) ingestOptions() ingest.Options {
	return ingest.Options{Encoding: r.cfg.Ingest.Encoding, DateLayouts: r.cfg.Ingest.DateLayouts}
}

// stage logs the start and outcome of fn.
func stage(logger *log.Entry, name string, fn func() error) error {
	logger = logger.WithField("stage", name)
	logger.Info("Stage started")
	start := time.Now()
	if err := fn(); err != nil {
		logger.WithError(err).Error("Stage failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("Stage completed")
	return nil
}

// BuildFeatures aggregates the raw export and writes the features file.
func (r *Runner) BuildFeatures(ctx context.Context) ([]models.CustomerFeatures, error) {
	rows, err := features.BuildFromFile(r.cfg.Paths.RawFile, r.ingestOptions())
	if err != nil {
		return nil, err
	}
	if err := features.WriteFile(r.cfg.Paths.FeaturesFile, rows); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"rows": len(rows), "path": r.cfg.Paths.FeaturesFile}).Info("Features saved")
	return rows, nil
}

// Segment computes the elbow curve and the final clustering, then writes the
// segmented file, the elbow file and the chart artifacts.
func (r *Runner) Segment(ctx context.Context, rows []models.CustomerFeatures) (*segment.Result, []segment.ElbowPoint, error) {
	engine := segment.NewEngine(r.cfg.Segmentation)

	elbow, err := engine.Elbow(rows)
	if err != nil {
		return nil, nil, err
	}
	res, err := engine.Segment(rows)
	if err != nil {
		return nil, nil, err
	}

	if err := segment.WriteFile(r.cfg.Paths.SegmentsFile, res.Rows); err != nil {
		return nil, nil, err
	}
	if err := segment.WriteElbowFile(r.cfg.Paths.ElbowFile, elbow); err != nil {
		return nil, nil, err
	}
	if err := r.writeCharts(elbow, res.Rows); err != nil {
		return nil, nil, err
	}
	log.WithFields(log.Fields{"rows": len(res.Rows), "path": r.cfg.Paths.SegmentsFile}).Info("Segments saved")
	return res, elbow, nil
}

func (r *Runner) writeCharts(elbow []segment.ElbowPoint, rows []models.SegmentedCustomer) error {
	ks := make([]int, len(elbow))
	inertia := make([]float64, len(elbow))
	for i, p := range elbow {
		ks[i], inertia[i] = p.K, p.Inertia
	}
	dir := r.cfg.Paths.OutputsDir
	if err := r.renderer.WriteArtifact(dir, "elbow_curve", charts.Elbow(ks, inertia)); err != nil {
		return err
	}

	byCluster := map[int][]charts.Point{}
	var x, y charts.Range
	for i, row := range rows {
		p := charts.Point{X: row.TotalSpend, Y: float64(row.RecencyDays)}
		byCluster[row.Cluster] = append(byCluster[row.Cluster], p)
		if i == 0 {
			x, y = charts.Range{Min: p.X, Max: p.X}, charts.Range{Min: p.Y, Max: p.Y}
			continue
		}
		x.Min, x.Max = min(x.Min, p.X), max(x.Max, p.X)
		y.Min, y.Max = min(y.Min, p.Y), max(y.Max, p.Y)
	}
	return r.renderer.WriteArtifact(dir, "customer_segments", charts.Scatter("Customer Segments by Spend vs Recency", byCluster, x, y))
}

// Summarize derives both summaries from the table and writes them as CSV.
func (r *Runner) Summarize(ctx context.Context, t *report.Table) (report.Summary, error) {
	sum := report.Summarize(t, r.cfg.Report.ChurnThresholdDays)
	if err := report.WriteFiles(r.cfg.Paths.SummaryFile, r.cfg.Paths.SegmentSummaryFile, sum); err != nil {
		return sum, err
	}
	log.WithFields(log.Fields{
		"clusters": len(sum.Clusters),
		"segments": len(sum.Segments),
		"path":     r.cfg.Paths.SummaryFile,
	}).Info("Summaries saved")
	return sum, nil
}

// Run executes the whole pipeline. When a run log is configured the run is
// recorded before the first stage and finished with its outcome.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{RunID: uuid.NewString()}
	logger := log.WithField("run_id", out.RunID)

	run := &models.PipelineRun{
		ID:        out.RunID,
		StartedAt: r.now().UTC(),
		Status:    models.RunStatusRunning,
		K:         r.cfg.Segmentation.K,
		Seed:      r.cfg.Segmentation.Seed,
	}
	if r.runs != nil {
		if err := r.runs.RecordRun(ctx, run); err != nil {
			logger.WithError(err).Error("Failed to record run")
			return nil, err
		}
	}

	err := r.run(ctx, logger, out)

	if r.runs != nil {
		finished := r.now().UTC()
		run.FinishedAt = &finished
		run.NumCustomers = len(out.Features)
		if out.Result != nil {
			run.Inertia = out.Result.Inertia
		}
		run.Status = models.RunStatusCompleted
		if err != nil {
			run.Status = models.RunStatusFailed
			run.Error = err.Error()
		}
		if ferr := r.runs.FinishRun(ctx, run); ferr != nil {
			logger.WithError(ferr).Warn("Failed to finish run record")
		}
	}
	if err != nil {
		return out, err
	}
	logger.WithFields(log.Fields{"customers": len(out.Features), "k": r.cfg.Segmentation.K}).Info("Pipeline completed")
	return out, nil
}

func (r *Runner) run(ctx context.Context, logger *log.Entry, out *Outcome) error {
	if err := stage(logger, "features", func() (err error) {
		out.Features, err = r.BuildFeatures(ctx)
		return err
	}); err != nil {
		return err
	}

	if r.sink != nil {
		if err := stage(logger.WithField("table", "features"), "load_features", func() error {
			return r.sink.WriteFeatures(ctx, out.Features, r.cfg.DB.FeaturesMode)
		}); err != nil {
			return err
		}
	}

	if err := stage(logger.WithField("k", r.cfg.Segmentation.K), "segment", func() (err error) {
		out.Result, out.Elbow, err = r.Segment(ctx, out.Features)
		return err
	}); err != nil {
		return err
	}

	if r.sink != nil {
		if err := stage(logger.WithField("table", "clusters"), "load_clusters", func() error {
			return r.sink.WriteSegments(ctx, out.Result.Rows, r.cfg.DB.ClustersMode)
		}); err != nil {
			return err
		}
	}

	return stage(logger, "summary", func() (err error) {
		out.Summary, err = r.Summarize(ctx, report.NewTable(out.Result.Rows))
		return err
	})
}
