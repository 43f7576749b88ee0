package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/matthieukhl/segmentor/internal/features"
	"github.com/matthieukhl/segmentor/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	sheetClusters = "Clusters"
	sheetSegments = "Segments"
)

// ClusterHeader is the cluster summary header; Avg_CLV only appears when the
// segmented table carried CLV_Estimate.
func ClusterHeader(hasCLV bool) []string {
	h := []string{"Cluster", "Num_Customers", "Avg_TotalSpend", "Avg_NumOrders", "Avg_Recency"}
	if hasCLV {
		h = append(h, "Avg_CLV")
	}
	return append(h, "Num_High_ChurnRisk")
}

func SegmentHeader(hasCLV bool) []string {
	h := []string{"Segment", "Num_Customers"}
	if hasCLV {
		h = append(h, "Avg_CLV")
	}
	return h
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return features.FormatFloat(*v)
}

func clusterRecord(c models.ClusterSummary, hasCLV bool) []string {
	rec := []string{
		strconv.Itoa(c.Cluster),
		strconv.Itoa(c.NumCustomers),
		features.FormatFloat(c.AvgTotalSpend),
		features.FormatFloat(c.AvgNumOrders),
		features.FormatFloat(c.AvgRecency),
	}
	if hasCLV {
		rec = append(rec, optional(c.AvgCLV))
	}
	return append(rec, strconv.Itoa(c.NumHighChurnRisk))
}

func segmentRecord(s models.SegmentSummary, hasCLV bool) []string {
	rec := []string{s.Segment, strconv.Itoa(s.NumCustomers)}
	if hasCLV {
		rec = append(rec, optional(s.AvgCLV))
	}
	return rec
}

func writeRecords(w io.Writer, header []string, recs [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(recs); err != nil {
		return err
	}
	return cw.Error()
}

func WriteClusterCSV(w io.Writer, s Summary) error {
	recs := make([][]string, 0, len(s.Clusters))
	for _, c := range s.Clusters {
		recs = append(recs, clusterRecord(c, s.HasCLV))
	}
	return writeRecords(w, ClusterHeader(s.HasCLV), recs)
}

// WriteSegmentCSV writes the segment summary; with no segments only the header
// is written.
func WriteSegmentCSV(w io.Writer, s Summary) error {
	recs := make([][]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		recs = append(recs, segmentRecord(seg, s.HasCLV))
	}
	return writeRecords(w, SegmentHeader(s.HasCLV), recs)
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteFiles writes the cluster and segment summaries as CSV.
func WriteFiles(clusterPath, segmentPath string, s Summary) error {
	if err := writeFile(clusterPath, func(w io.Writer) error { return WriteClusterCSV(w, s) }); err != nil {
		return err
	}
	return writeFile(segmentPath, func(w io.Writer) error { return WriteSegmentCSV(w, s) })
}

// WriteWorkbook saves both summaries to an XLSX file, one sheet each.
func WriteWorkbook(path string, s Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	clusters := make([][]string, 0, len(s.Clusters))
	for _, c := range s.Clusters {
		clusters = append(clusters, clusterRecord(c, s.HasCLV))
	}
	segments := make([][]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		segments = append(segments, segmentRecord(seg, s.HasCLV))
	}

	first, err := f.NewSheet(sheetClusters)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := fillSheet(f, sheetClusters, ClusterHeader(s.HasCLV), clusters, 0); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetSegments); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := fillSheet(f, sheetSegments, SegmentHeader(s.HasCLV), segments, 1); err != nil {
		return err
	}
	f.SetActiveSheet(first)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// fillSheet writes the header then one row per record. Cells after the first
// textCols columns are stored as numbers when they parse as one.
func fillSheet(f *excelize.File, sheet string, header []string, recs [][]string, textCols int) error {
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	for r, rec := range recs {
		cells := make([]interface{}, len(rec))
		for i, v := range rec {
			cells[i] = v
			if i < textCols {
				continue
			}
			if num, err := strconv.ParseFloat(v, 64); err == nil {
				cells[i] = num
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, r+1, err)
		}
	}
	return nil
}
