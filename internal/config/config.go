package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths        PathsConfig        `mapstructure:"paths" yaml:"paths"`
	Ingest       IngestConfig       `mapstructure:"ingest" yaml:"ingest"`
	Segmentation SegmentationConfig `mapstructure:"segmentation" yaml:"segmentation"`
	Report       ReportConfig       `mapstructure:"report" yaml:"report"`
	DB           DBConfig           `mapstructure:"db" yaml:"db"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Charts       ChartsConfig       `mapstructure:"charts" yaml:"charts"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
}

type PathsConfig struct {
	RawFile            string `mapstructure:"raw_file" yaml:"raw_file"`
	FeaturesFile       string `mapstructure:"features_file" yaml:"features_file"`
	SegmentsFile       string `mapstructure:"segments_file" yaml:"segments_file"`
	SummaryFile        string `mapstructure:"summary_file" yaml:"summary_file"`
	SegmentSummaryFile string `mapstructure:"segment_summary_file" yaml:"segment_summary_file"`
	ElbowFile          string `mapstructure:"elbow_file" yaml:"elbow_file"`
	OutputsDir         string `mapstructure:"outputs_dir" yaml:"outputs_dir"`
}

type IngestConfig struct {
	Encoding    string   `mapstructure:"encoding" yaml:"encoding"`
	DateLayouts []string `mapstructure:"date_layouts" yaml:"date_layouts"`
}

type SegmentationConfig struct {
	K         int     `mapstructure:"k" yaml:"k"`
	ElbowMin  int     `mapstructure:"elbow_min" yaml:"elbow_min"`
	ElbowMax  int     `mapstructure:"elbow_max" yaml:"elbow_max"`
	Seed      int64   `mapstructure:"seed" yaml:"seed"`
	NInit     int     `mapstructure:"n_init" yaml:"n_init"`
	MaxIter   int     `mapstructure:"max_iter" yaml:"max_iter"`
	Tolerance float64 `mapstructure:"tolerance" yaml:"tolerance"`
}

type ReportConfig struct {
	ChurnThresholdDays int `mapstructure:"churn_threshold_days" yaml:"churn_threshold_days"`
}

type DBConfig struct {
	Driver         string        `mapstructure:"driver" yaml:"driver"`
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Name           string        `mapstructure:"name" yaml:"name"`
	User           string        `mapstructure:"user" yaml:"user"`
	Password       string        `mapstructure:"password" yaml:"password"`
	SSLMode        string        `mapstructure:"sslmode" yaml:"sslmode"`
	DSN            string        `mapstructure:"dsn" yaml:"dsn,omitempty"`
	MaxOpenConns   int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`
	FeaturesMode   string        `mapstructure:"features_mode" yaml:"features_mode"`
	ClustersMode   string        `mapstructure:"clusters_mode" yaml:"clusters_mode"`
}

type ServerConfig struct {
	Addr   string `mapstructure:"addr" yaml:"addr"`
	Source string `mapstructure:"source" yaml:"source"`
}

type ChartsConfig struct {
	Width  int64 `mapstructure:"width" yaml:"width"`
	Height int64 `mapstructure:"height" yaml:"height"`
	Render bool  `mapstructure:"render" yaml:"render"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Write modes for the relational sink.
const (
	ModeUpsert   = "upsert"
	ModeTruncate = "truncate"
	ModeAppend   = "append"
)

// Dashboard data sources.
const (
	SourceCSV = "csv"
	SourceDB  = "db"
)

// DefaultDateLayouts covers the Online Retail export format and ISO variants.
var DefaultDateLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.raw_file", filepath.Join("data", "raw", "ecommerce_data.csv"))
	v.SetDefault("paths.features_file", filepath.Join("data", "processed", "features", "customer_features.csv"))
	v.SetDefault("paths.segments_file", filepath.Join("data", "processed", "features", "customer_segments.csv"))
	v.SetDefault("paths.summary_file", filepath.Join("data", "processed", "summary_metrics.csv"))
	v.SetDefault("paths.segment_summary_file", filepath.Join("data", "processed", "segment_summary.csv"))
	v.SetDefault("paths.elbow_file", filepath.Join("analysis", "outputs", "elbow_curve.csv"))
	v.SetDefault("paths.outputs_dir", filepath.Join("analysis", "outputs"))

	v.SetDefault("ingest.encoding", "latin1")
	v.SetDefault("ingest.date_layouts", DefaultDateLayouts)

	v.SetDefault("segmentation.k", 4)
	v.SetDefault("segmentation.elbow_min", 2)
	v.SetDefault("segmentation.elbow_max", 9)
	v.SetDefault("segmentation.seed", 42)
	v.SetDefault("segmentation.n_init", 10)
	v.SetDefault("segmentation.max_iter", 300)
	v.SetDefault("segmentation.tolerance", 1e-4)

	v.SetDefault("report.churn_threshold_days", 90)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "market_analysis")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("db.connect_timeout", 5*time.Second)
	v.SetDefault("db.batch_size", 500)
	v.SetDefault("db.features_mode", ModeTruncate)
	v.SetDefault("db.clusters_mode", ModeUpsert)

	v.SetDefault("server.addr", ":8501")
	v.SetDefault("server.source", SourceCSV)

	v.SetDefault("charts.width", 800)
	v.SetDefault("charts.height", 500)
	v.SetDefault("charts.render", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig loads configuration from defaults, an optional segmentor.yaml and
// SEGMENTOR_* environment variables. An explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("segmentor")
		v.SetConfigType("yaml")
		v.AddConfigPath("./")
		v.AddConfigPath("./deploy/")
		v.AddConfigPath("$HOME/.segmentor/")
	}

	// SEGMENTOR_DB_PASSWORD overrides db.password
	v.SetEnvPrefix("SEGMENTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// defaults always decode
	_ = v.Unmarshal(&config)
	return &config
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	s := c.Segmentation
	switch {
	case s.K < 1:
		return &apperr.ValidationError{Field: "segmentation.k", Reason: "must be at least 1"}
	case s.ElbowMin < 1:
		return &apperr.ValidationError{Field: "segmentation.elbow_min", Reason: "must be at least 1"}
	case s.ElbowMax < s.ElbowMin:
		return &apperr.ValidationError{Field: "segmentation.elbow_max", Reason: "must not be below elbow_min"}
	case s.NInit < 1:
		return &apperr.ValidationError{Field: "segmentation.n_init", Reason: "must be at least 1"}
	case s.MaxIter < 1:
		return &apperr.ValidationError{Field: "segmentation.max_iter", Reason: "must be at least 1"}
	case s.Tolerance < 0:
		return &apperr.ValidationError{Field: "segmentation.tolerance", Reason: "must not be negative"}
	}

	if c.Report.ChurnThresholdDays < 0 {
		return &apperr.ValidationError{Field: "report.churn_threshold_days", Reason: "must not be negative"}
	}

	switch strings.ToLower(c.Ingest.Encoding) {
	case "latin1", "iso-8859-1", "windows-1252", "cp1252", "utf8", "utf-8":
	default:
		return &apperr.ValidationError{Field: "ingest.encoding", Reason: fmt.Sprintf("unsupported encoding %q", c.Ingest.Encoding)}
	}
	if len(c.Ingest.DateLayouts) == 0 {
		return &apperr.ValidationError{Field: "ingest.date_layouts", Reason: "at least one layout is required"}
	}

	switch c.DB.Driver {
	case "postgres", "mysql", "sqlite3":
	default:
		return &apperr.ValidationError{Field: "db.driver", Reason: fmt.Sprintf("unsupported driver %q", c.DB.Driver)}
	}
	for field, mode := range map[string]string{"db.features_mode": c.DB.FeaturesMode, "db.clusters_mode": c.DB.ClustersMode} {
		switch mode {
		case ModeUpsert, ModeTruncate, ModeAppend:
		default:
			return &apperr.ValidationError{Field: field, Reason: fmt.Sprintf("unknown write mode %q", mode)}
		}
	}
	if c.DB.BatchSize < 1 {
		return &apperr.ValidationError{Field: "db.batch_size", Reason: "must be at least 1"}
	}

	switch c.Server.Source {
	case SourceCSV, SourceDB:
	default:
		return &apperr.ValidationError{Field: "server.source", Reason: fmt.Sprintf("unknown source %q", c.Server.Source)}
	}

	return nil
}

// Save writes the configuration as YAML, creating the parent directory.
func Save(c *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
