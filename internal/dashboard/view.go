// Package dashboard derives what the dashboard shows for a cluster selection.
// Axis ranges, histogram edges and churn categories always come from the full
// table so that changing the selection never rescales a chart.
package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/charts"
	"github.com/matthieukhl/segmentor/internal/models"
	"github.com/matthieukhl/segmentor/internal/report"
)

const (
	AllClusters = "all"
	SpendBins   = 40
)

type Metrics struct {
	Customers     int     `json:"customers"`
	AvgTotalSpend float64 `json:"avg_total_spend"`
	AvgRecency    float64 `json:"avg_recency"`
}

// Histogram has len(Edges) == len(Counts)+1.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

type ChurnBreakdown struct {
	Categories []string `json:"categories"`
	Counts     []int    `json:"counts"`
	YMax       int      `json:"y_max"`
}

type View struct {
	Selected string                 `json:"selected"`
	Options  []string               `json:"options"`
	Metrics  Metrics                `json:"metrics"`
	Spend    Histogram              `json:"spend_histogram"`
	Churn    ChurnBreakdown         `json:"churn"`
	Scatter  map[int][]charts.Point `json:"scatter"`
	XRange   charts.Range           `json:"x_range"`
	YRange   charts.Range           `json:"y_range"`
}

// Options lists the selector values: "all" then the cluster ids ascending.
func Options(rows []models.SegmentedCustomer) []string {
	seen := map[int]bool{}
	var ids []int
	for _, r := range rows {
		if !seen[r.Cluster] {
			seen[r.Cluster] = true
			ids = append(ids, r.Cluster)
		}
	}
	sort.Ints(ids)
	out := []string{AllClusters}
	for _, id := range ids {
		out = append(out, strconv.Itoa(id))
	}
	return out
}

// Filter returns the rows of the selected cluster. An empty selection means
// all. A value that is not one of Options is a ValidationError.
func Filter(rows []models.SegmentedCustomer, selection string) ([]models.SegmentedCustomer, string, error) {
	selection = strings.ToLower(strings.TrimSpace(selection))
	if selection == "" || selection == AllClusters {
		return rows, AllClusters, nil
	}
	id, err := strconv.Atoi(selection)
	if err != nil {
		return nil, "", &apperr.ValidationError{Field: "cluster", Reason: fmt.Sprintf("%q is not a cluster id", selection)}
	}
	var out []models.SegmentedCustomer
	for _, r := range rows {
		if r.Cluster == id {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, "", &apperr.ValidationError{Field: "cluster", Reason: fmt.Sprintf("unknown cluster %d", id)}
	}
	return out, strconv.Itoa(id), nil
}

// Build computes the view for selection over the full table.
func Build(rows []models.SegmentedCustomer, selection string, churnThreshold int) (*View, error) {
	selected, label, err := Filter(rows, selection)
	if err != nil {
		return nil, err
	}

	v := &View{
		Selected: label,
		Options:  Options(rows),
		Metrics:  metrics(selected),
		Scatter:  map[int][]charts.Point{},
	}
	v.XRange, v.YRange = ranges(rows)
	v.Spend = histogram(selected, v.XRange, SpendBins)
	v.Churn = churn(rows, selected, churnThreshold)
	for _, r := range selected {
		v.Scatter[r.Cluster] = append(v.Scatter[r.Cluster], charts.Point{X: r.TotalSpend, Y: float64(r.RecencyDays)})
	}
	return v, nil
}

func metrics(rows []models.SegmentedCustomer) Metrics {
	m := Metrics{Customers: len(rows)}
	if len(rows) == 0 {
		return m
	}
	for _, r := range rows {
		m.AvgTotalSpend += r.TotalSpend
		m.AvgRecency += float64(r.RecencyDays)
	}
	m.AvgTotalSpend /= float64(len(rows))
	m.AvgRecency /= float64(len(rows))
	return m
}

func ranges(rows []models.SegmentedCustomer) (x, y charts.Range) {
	if len(rows) == 0 {
		return x, y
	}
	x = charts.Range{Min: math.Inf(1), Max: math.Inf(-1)}
	y = x
	for _, r := range rows {
		x.Min = math.Min(x.Min, r.TotalSpend)
		x.Max = math.Max(x.Max, r.TotalSpend)
		y.Min = math.Min(y.Min, float64(r.RecencyDays))
		y.Max = math.Max(y.Max, float64(r.RecencyDays))
	}
	return x, y
}

// histogram bins values into equal-width bins over r. The last bin includes
// its upper edge. A degenerate range is widened by half a unit each side.
func histogram(rows []models.SegmentedCustomer, r charts.Range, bins int) Histogram {
	lo, hi := r.Min, r.Max
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)
	h := Histogram{Edges: make([]float64, bins+1), Counts: make([]int, bins)}
	for i := range h.Edges {
		h.Edges[i] = lo + float64(i)*width
	}
	h.Edges[bins] = hi

	for _, row := range rows {
		i := int((row.TotalSpend - lo) / (hi - lo) * float64(bins))
		if i >= bins {
			i = bins - 1
		}
		if i < 0 {
			i = 0
		}
		h.Counts[i]++
	}
	return h
}

// churn counts the selection per churn label, keeping every label of the full
// table in first-seen order and fixing the y range to the largest full-table
// count.
func churn(all, selected []models.SegmentedCustomer, threshold int) ChurnBreakdown {
	var b ChurnBreakdown
	index := map[string]int{}
	full := []int{}
	for _, r := range all {
		label := report.RiskOf(r, threshold)
		i, ok := index[label]
		if !ok {
			i = len(b.Categories)
			index[label] = i
			b.Categories = append(b.Categories, label)
			full = append(full, 0)
		}
		full[i]++
	}
	b.Counts = make([]int, len(b.Categories))
	for _, r := range selected {
		b.Counts[index[report.RiskOf(r, threshold)]]++
	}
	for _, n := range full {
		b.YMax = max(b.YMax, n)
	}
	return b
}

func (v *View) title(name string) string {
	if v.Selected == AllClusters {
		return name + ": All Clusters"
	}
	return name + ": Cluster " + v.Selected
}

func (v *View) SpendChart() charts.ChartConfig {
	return charts.Histogram(v.title("Total Spend Distribution"), v.Spend.Edges, v.Spend.Counts)
}

func (v *View) ChurnChart() charts.ChartConfig {
	return charts.Bar(v.title("Churn Risk"), v.Churn.Categories, v.Churn.Counts, v.Churn.YMax)
}

func (v *View) ScatterChart() charts.ChartConfig {
	return charts.Scatter(v.title("Spend vs Recency"), v.Scatter, v.XRange, v.YRange)
}
