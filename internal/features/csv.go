package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/models"
)

// FormatFloat renders floats in their shortest exact form so that identical
// input gives byte-identical files.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Record renders a feature row in FeatureColumns order.
func Record(f models.CustomerFeatures) []string {
	return []string{
		strconv.FormatInt(f.CustomerID, 10),
		FormatFloat(f.TotalSpend),
		strconv.Itoa(f.NumOrders),
		FormatFloat(f.AvgOrderValue),
		strconv.Itoa(f.RecencyDays),
	}
}

// WriteCSV writes the features table with its header.
func WriteCSV(w io.Writer, rows []models.CustomerFeatures) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.FeatureColumns); err != nil {
		return err
	}
	for _, f := range rows {
		if err := cw.Write(Record(f)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the features table to path, creating parent directories.
func WriteFile(path string, rows []models.CustomerFeatures) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// HeaderIndex maps column names to positions and reports missing required ones.
func HeaderIndex(header, required []string, source string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[trimBOM(h)] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &apperr.SchemaError{Source: source, Missing: missing}
	}
	return idx, nil
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[:3] == "\xef\xbb\xbf" {
		return s[3:]
	}
	return s
}

// ParseRecord parses a feature row using a header index. row is the 1-based
// data row used in error reports.
func ParseRecord(rec []string, idx map[string]int, row int) (models.CustomerFeatures, error) {
	var f models.CustomerFeatures
	get := func(col string) string {
		i := idx[col]
		if i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	perr := func(col string, err error) error {
		return &apperr.DataParseError{Row: row, Column: col, Value: get(col), Err: err}
	}

	var err error
	if f.CustomerID, err = parseID(get(models.ColCustomerID)); err != nil {
		return f, perr(models.ColCustomerID, err)
	}
	if f.TotalSpend, err = parseAmount(get(models.ColTotalSpend)); err != nil {
		return f, perr(models.ColTotalSpend, err)
	}
	if f.NumOrders, err = parseInt(get(models.ColNumOrders)); err != nil {
		return f, perr(models.ColNumOrders, err)
	}
	if f.AvgOrderValue, err = parseAmount(get(models.ColAvgOrderValue)); err != nil {
		return f, perr(models.ColAvgOrderValue, err)
	}
	if f.RecencyDays, err = parseInt(get(models.ColRecencyDays)); err != nil {
		return f, perr(models.ColRecencyDays, err)
	}
	return f, nil
}

// parseAmount accepts finite floats only.
func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}

func parseID(s string) (int64, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	fv, err := parseAmount(s)
	if err != nil {
		return 0, err
	}
	if fv != math.Trunc(fv) || math.Abs(fv) >= math.MaxInt64 {
		return 0, errors.New("not an integral id")
	}
	return int64(fv), nil
}

func parseInt(s string) (int, error) {
	id, err := parseID(s)
	return int(id), err
}

// ReadCSV reads a features table.
func ReadCSV(r io.Reader, source string) ([]models.CustomerFeatures, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &apperr.SchemaError{Source: source, Missing: models.FeatureColumns}
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx, err := HeaderIndex(header, models.FeatureColumns, source)
	if err != nil {
		return nil, err
	}

	var rows []models.CustomerFeatures
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", n, err)
		}
		f, err := ParseRecord(rec, idx, n)
		if err != nil {
			return nil, err
		}
		rows = append(rows, f)
	}
}

// ReadFile reads the features table at path.
func ReadFile(path string) ([]models.CustomerFeatures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f, path)
}
