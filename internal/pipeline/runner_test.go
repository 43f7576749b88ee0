package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/config"
	"github.com/matthieukhl/segmentor/internal/models"
	"github.com/matthieukhl/segmentor/internal/report"
	"github.com/matthieukhl/segmentor/internal/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	features     []models.CustomerFeatures
	segments     []models.SegmentedCustomer
	featuresMode string
	segmentsMode string
	err          error
}

func (s *fakeSink) WriteFeatures(ctx context.Context, rows []models.CustomerFeatures, mode string) error {
	s.features, s.featuresMode = rows, mode
	return s.err
}

func (s *fakeSink) WriteSegments(ctx context.Context, rows []models.SegmentedCustomer, mode string) error {
	s.segments, s.segmentsMode = rows, mode
	return s.err
}

type fakeRuns struct {
	recorded []models.PipelineRun
	finished []models.PipelineRun
}

func (r *fakeRuns) RecordRun(ctx context.Context, run *models.PipelineRun) error {
	r.recorded = append(r.recorded, *run)
	return nil
}

func (r *fakeRuns) FinishRun(ctx context.Context, run *models.PipelineRun) error {
	r.finished = append(r.finished, *run)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		RawFile:            filepath.Join(dir, "raw", "ecommerce_data.csv"),
		FeaturesFile:       filepath.Join(dir, "processed", "features", "customer_features.csv"),
		SegmentsFile:       filepath.Join(dir, "processed", "features", "customer_segments.csv"),
		SummaryFile:        filepath.Join(dir, "processed", "summary_metrics.csv"),
		SegmentSummaryFile: filepath.Join(dir, "processed", "segment_summary.csv"),
		ElbowFile:          filepath.Join(dir, "outputs", "elbow_curve.csv"),
		OutputsDir:         filepath.Join(dir, "outputs"),
	}
	cfg.Segmentation.NInit = 3
	return cfg
}

func writeSample(t *testing.T, cfg *config.Config, customers int) {
	t.Helper()
	opts := sample.DefaultOptions()
	opts.Customers, opts.Invoices = customers, customers*4
	_, err := sample.WriteFile(cfg.Paths.RawFile, opts)
	require.NoError(t, err)
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeSample(t, cfg, 40)
	sink, runs := &fakeSink{}, &fakeRuns{}

	out, err := NewRunner(cfg, sink, runs).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, out.Features, 40)
	require.NotNil(t, out.Result)
	assert.Len(t, out.Result.Rows, 40)
	assert.Len(t, out.Elbow, cfg.Segmentation.ElbowMax-cfg.Segmentation.ElbowMin+1)
	assert.Len(t, out.Summary.Clusters, cfg.Segmentation.K)

	assert.Equal(t, config.ModeTruncate, sink.featuresMode)
	assert.Equal(t, config.ModeUpsert, sink.segmentsMode)
	assert.Len(t, sink.segments, 40)

	for _, p := range []string{
		cfg.Paths.FeaturesFile, cfg.Paths.SegmentsFile, cfg.Paths.SummaryFile,
		cfg.Paths.SegmentSummaryFile, cfg.Paths.ElbowFile,
		filepath.Join(cfg.Paths.OutputsDir, "elbow_curve.url"),
		filepath.Join(cfg.Paths.OutputsDir, "customer_segments.url"),
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	require.Len(t, runs.recorded, 1)
	require.Len(t, runs.finished, 1)
	assert.Equal(t, out.RunID, runs.finished[0].ID)
	assert.Equal(t, models.RunStatusCompleted, runs.finished[0].Status)
	assert.Equal(t, 40, runs.finished[0].NumCustomers)
	assert.Equal(t, out.Result.Inertia, runs.finished[0].Inertia)

	// the summary written to disk matches a reload of the segmented file
	tbl, err := report.LoadSegmented(cfg.Paths.SegmentsFile)
	require.NoError(t, err)
	assert.Equal(t, out.Summary, report.Summarize(tbl, cfg.Report.ChurnThresholdDays))
}

func TestRun_Reproducible(t *testing.T) {
	cfg := testConfig(t)
	writeSample(t, cfg, 30)

	_, err := NewRunner(cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(cfg.Paths.SegmentsFile)
	require.NoError(t, err)

	_, err = NewRunner(cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(cfg.Paths.SegmentsFile)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_SchemaErrorIsFatal(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Paths.RawFile), 0o755))
	require.NoError(t, os.WriteFile(cfg.Paths.RawFile, []byte("InvoiceNo,Quantity\n1,2\n"), 0o644))
	sink, runs := &fakeSink{}, &fakeRuns{}

	_, err := NewRunner(cfg, sink, runs).Run(context.Background())
	var se *apperr.SchemaError
	require.True(t, errors.As(err, &se))

	assert.Nil(t, sink.features)
	require.Len(t, runs.finished, 1)
	assert.Equal(t, models.RunStatusFailed, runs.finished[0].Status)
	assert.NotEmpty(t, runs.finished[0].Error)
}

func TestRun_InsufficientData(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segmentation.ElbowMin = 2
	writeSample(t, cfg, 3)

	_, err := NewRunner(cfg, nil, nil).Run(context.Background())
	var ie *apperr.InsufficientDataError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 4, ie.Clusters)
}

func TestSegment_SingleCustomerWithOneCluster(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segmentation.K = 1
	rows := []models.CustomerFeatures{{CustomerID: 12346, TotalSpend: 77183.6, NumOrders: 1, AvgOrderValue: 77183.6, RecencyDays: 0}}

	res, elbow, err := NewRunner(cfg, nil, nil).Segment(context.Background(), rows)
	require.NoError(t, err)
	assert.Empty(t, elbow)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 0, res.Rows[0].Cluster)

	// the elbow file still carries its header
	b, err := os.ReadFile(cfg.Paths.ElbowFile)
	require.NoError(t, err)
	assert.Equal(t, "K,Inertia\n", string(b))
}

func TestRun_SinkFailureStopsPipeline(t *testing.T) {
	cfg := testConfig(t)
	writeSample(t, cfg, 20)
	sink := &fakeSink{err: &apperr.ConnectionError{Driver: "postgres", Err: errors.New("refused")}}

	_, err := NewRunner(cfg, sink, nil).Run(context.Background())
	var ce *apperr.ConnectionError
	require.True(t, errors.As(err, &ce))

	_, statErr := os.Stat(cfg.Paths.SegmentsFile)
	assert.True(t, os.IsNotExist(statErr))
	// features were already on disk and stay there
	_, statErr = os.Stat(cfg.Paths.FeaturesFile)
	assert.NoError(t, statErr)
}
