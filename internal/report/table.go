package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/features"
	"github.com/matthieukhl/segmentor/internal/models"
)

// Table is a segmented table plus the optional columns it was loaded with.
type Table struct {
	Rows       []models.SegmentedCustomer
	HasChurn   bool
	HasCLV     bool
	HasSegment bool
}

// NewTable wraps rows produced in-process, which carry no optional columns.
func NewTable(rows []models.SegmentedCustomer) *Table {
	return &Table{Rows: rows}
}

// LoadSegmented reads the segmented CSV at path. Every column is loaded as text
// and parsed here so that malformed values surface as DataParseError instead of
// silently becoming NaN.
func LoadSegmented(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	// gota needs at least one data row, so emptiness is settled before it runs
	cr := csv.NewReader(bytes.NewReader(data))
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &apperr.SchemaError{Source: path, Missing: models.SegmentColumns}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if _, err := cr.Read(); errors.Is(err, io.EOF) {
		t, _, err := newTable(header, path)
		return t, err
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, df.Err)
	}
	return fromFrame(df, path)
}

// newTable validates a header and records which optional columns it carries.
func newTable(names []string, source string) (*Table, map[string]int, error) {
	idx, err := features.HeaderIndex(names, models.SegmentColumns, source)
	if err != nil {
		return nil, nil, err
	}
	t := &Table{Rows: []models.SegmentedCustomer{}}
	_, t.HasChurn = idx[models.ColChurnRisk]
	_, t.HasCLV = idx[models.ColCLV]
	_, t.HasSegment = idx[models.ColSegment]
	return t, idx, nil
}

func fromFrame(df dataframe.DataFrame, source string) (*Table, error) {
	names := df.Names()
	t, idx, err := newTable(names, source)
	if err != nil {
		return nil, err
	}

	cols := make(map[string][]string, len(names))
	for _, name := range names {
		cols[name] = df.Col(name).Records()
	}

	n := df.Nrow()
	t.Rows = make([]models.SegmentedCustomer, 0, n)
	rec := make([]string, len(names))
	for i := 0; i < n; i++ {
		for j, name := range names {
			rec[j] = cols[name][i]
		}
		row := i + 1
		f, err := features.ParseRecord(rec, idx, row)
		if err != nil {
			return nil, err
		}
		sc := models.SegmentedCustomer{CustomerFeatures: f}

		raw := rec[idx[models.ColCluster]]
		if sc.Cluster, err = strconv.Atoi(strings.TrimSpace(raw)); err != nil {
			return nil, &apperr.DataParseError{Row: row, Column: models.ColCluster, Value: raw, Err: err}
		}
		if t.HasChurn {
			sc.ChurnRisk = strings.TrimSpace(rec[idx[models.ColChurnRisk]])
		}
		if t.HasSegment {
			sc.Segment = rec[idx[models.ColSegment]]
		}
		if t.HasCLV {
			raw := strings.TrimSpace(rec[idx[models.ColCLV]])
			if sc.CLV, err = parseOptionalFloat(raw); err != nil {
				return nil, &apperr.DataParseError{Row: row, Column: models.ColCLV, Value: raw, Err: err}
			}
		}
		t.Rows = append(t.Rows, sc)
	}
	return t, nil
}

func parseOptionalFloat(s string) (*float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "null", "none":
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	if math.IsInf(v, 0) {
		return nil, errors.New("not a finite number")
	}
	return &v, nil
}
