package segment

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/features"
	"github.com/matthieukhl/segmentor/internal/models"
)

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return os.Create(path)
}

// WriteElbowCSV writes the elbow curve as K,Inertia.
func WriteElbowCSV(w io.Writer, points []ElbowPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"K", "Inertia"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write([]string{strconv.Itoa(p.K), features.FormatFloat(p.Inertia)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteElbowFile(path string, points []ElbowPoint) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	if err := WriteElbowCSV(f, points); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteCSV writes the segmented table: the feature columns plus Cluster.
func WriteCSV(w io.Writer, rows []models.SegmentedCustomer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.SegmentColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := append(features.Record(r.CustomerFeatures), strconv.Itoa(r.Cluster))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteFile(path string, rows []models.SegmentedCustomer) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// ReadCSV reads the required columns of a segmented table. Optional columns are
// ignored here; see report.LoadSegmented for those.
func ReadCSV(r io.Reader, source string) ([]models.SegmentedCustomer, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &apperr.SchemaError{Source: source, Missing: models.SegmentColumns}
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx, err := features.HeaderIndex(header, models.SegmentColumns, source)
	if err != nil {
		return nil, err
	}

	var rows []models.SegmentedCustomer
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", n, err)
		}
		f, err := features.ParseRecord(rec, idx, n)
		if err != nil {
			return nil, err
		}
		raw := rec[idx[models.ColCluster]]
		cluster, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &apperr.DataParseError{Row: n, Column: models.ColCluster, Value: raw, Err: err}
		}
		rows = append(rows, models.SegmentedCustomer{CustomerFeatures: f, Cluster: cluster})
	}
}

func ReadFile(path string) ([]models.SegmentedCustomer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f, path)
}
