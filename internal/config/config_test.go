package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "segmentor.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Segmentation.K)
	assert.Equal(t, 2, cfg.Segmentation.ElbowMin)
	assert.Equal(t, 9, cfg.Segmentation.ElbowMax)
	assert.Equal(t, int64(42), cfg.Segmentation.Seed)
	assert.Equal(t, 90, cfg.Report.ChurnThresholdDays)
	assert.Equal(t, ModeTruncate, cfg.DB.FeaturesMode)
	assert.Equal(t, ModeUpsert, cfg.DB.ClustersMode)
	assert.Equal(t, 5*time.Second, cfg.DB.ConnectTimeout)
	assert.Equal(t, SourceCSV, cfg.Server.Source)
	assert.Equal(t, DefaultDateLayouts, cfg.Ingest.DateLayouts)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	p := writeYAML(t, `
segmentation:
  k: 6
  seed: 7
db:
  driver: sqlite3
  name: /tmp/segments.db
report:
  churn_threshold_days: 60
`)
	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Segmentation.K)
	assert.Equal(t, int64(7), cfg.Segmentation.Seed)
	assert.Equal(t, 10, cfg.Segmentation.NInit)
	assert.Equal(t, "sqlite3", cfg.DB.Driver)
	assert.Equal(t, 60, cfg.Report.ChurnThresholdDays)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SEGMENTOR_DB_PASSWORD", "s3cret")
	t.Setenv("SEGMENTOR_SEGMENTATION_K", "5")

	cfg, err := LoadConfig(writeYAML(t, "log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.DB.Password)
	assert.Equal(t, 5, cfg.Segmentation.K)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"zero k", func(c *Config) { c.Segmentation.K = 0 }, "segmentation.k"},
		{"inverted elbow range", func(c *Config) { c.Segmentation.ElbowMax = 1 }, "segmentation.elbow_max"},
		{"negative threshold", func(c *Config) { c.Report.ChurnThresholdDays = -1 }, "report.churn_threshold_days"},
		{"unknown encoding", func(c *Config) { c.Ingest.Encoding = "ebcdic" }, "ingest.encoding"},
		{"unknown driver", func(c *Config) { c.DB.Driver = "oracle" }, "db.driver"},
		{"unknown mode", func(c *Config) { c.DB.ClustersMode = "merge" }, "db.clusters_mode"},
		{"zero batch", func(c *Config) { c.DB.BatchSize = 0 }, "db.batch_size"},
		{"unknown source", func(c *Config) { c.Server.Source = "s3" }, "server.source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)

			var ve *apperr.ValidationError
			require.True(t, errors.As(cfg.Validate(), &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	_, err := LoadConfig(writeYAML(t, "segmentation:\n  k: 0\n"))
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "segmentation.k", ve.Field)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Segmentation.K = 3
	cfg.DB.Driver = "mysql"
	cfg.Paths.RawFile = "in/raw.csv"

	p := filepath.Join(t.TempDir(), "nested", "segmentor.yaml")
	require.NoError(t, Save(cfg, p))

	back, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, 3, back.Segmentation.K)
	assert.Equal(t, "mysql", back.DB.Driver)
	assert.Equal(t, "in/raw.csv", back.Paths.RawFile)
	assert.Equal(t, cfg.Ingest.DateLayouts, back.Ingest.DateLayouts)
}
