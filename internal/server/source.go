package server

import (
	"context"

	"github.com/matthieukhl/segmentor/internal/database"
	"github.com/matthieukhl/segmentor/internal/report"
)

// Source loads the segmented table shown by the dashboard.
type Source interface {
	Load(ctx context.Context) (*report.Table, error)
}

// CSVSource reads the segmented CSV on every request so reruns show up without
// a restart.
type CSVSource struct {
	Path string
}

func (s CSVSource) Load(ctx context.Context) (*report.Table, error) {
	return report.LoadSegmented(s.Path)
}

// DBSource reads the clusters table.
type DBSource struct {
	DB *database.DB
}

func (s DBSource) Load(ctx context.Context) (*report.Table, error) {
	rows, err := s.DB.LoadSegments(ctx)
	if err != nil {
		return nil, err
	}
	return report.NewTable(rows), nil
}
