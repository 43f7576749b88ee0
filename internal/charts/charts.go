// Package charts builds Chart.js configurations for the pipeline's figures and
// renders them through quickchart.
package charts

import (
	"fmt"
	"sort"
	"strconv"
)

type ChartConfig struct {
	Type    string   `json:"type"`
	Data    Data     `json:"data"`
	Options *Options `json:"options,omitempty"`
}

type Data struct {
	Labels   []interface{} `json:"labels,omitempty"`
	DataSets []Dataset     `json:"datasets"`
}

type Dataset struct {
	Label           string        `json:"label"`
	Data            []interface{} `json:"data"`
	Fill            bool          `json:"fill"`
	LineTension     float32       `json:"lineTension"`
	BackgroundColor string        `json:"backgroundColor,omitempty"`
	BorderColor     string        `json:"borderColor,omitempty"`
	PointRadius     float32       `json:"pointRadius,omitempty"`
}

type Options struct {
	Title  Title   `json:"title"`
	Legend *Legend `json:"legend,omitempty"`
	Scales *Scales `json:"scales,omitempty"`
}

type Title struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

type Legend struct {
	Display bool `json:"display"`
}

type Scales struct {
	XAxes []Axis `json:"xAxes"`
	YAxes []Axis `json:"yAxes"`
}

type Axis struct {
	Type       string     `json:"type,omitempty"`
	ScaleLabel ScaleLabel `json:"scaleLabel"`
	Ticks      *Ticks     `json:"ticks,omitempty"`
}

type ScaleLabel struct {
	Display     bool   `json:"display"`
	LabelString string `json:"labelString"`
}

type Ticks struct {
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	BeginAtZero bool     `json:"beginAtZero,omitempty"`
}

// Point is a scatter sample.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Range is a fixed axis extent.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

var palette = []string{
	"rgba(31,119,180,0.7)", "rgba(255,127,14,0.7)", "rgba(44,160,44,0.7)", "rgba(214,39,40,0.7)",
	"rgba(148,103,189,0.7)", "rgba(140,86,75,0.7)", "rgba(227,119,194,0.7)", "rgba(127,127,127,0.7)",
	"rgba(188,189,34,0.7)", "rgba(23,190,207,0.7)",
}

// Color returns the palette color of a cluster.
func Color(cluster int) string {
	if cluster < 0 {
		cluster = -cluster
	}
	return palette[cluster%len(palette)]
}

func axis(label string, r *Range) Axis {
	a := Axis{ScaleLabel: ScaleLabel{Display: true, LabelString: label}}
	if r != nil {
		lo, hi := r.Min, r.Max
		a.Ticks = &Ticks{Min: &lo, Max: &hi}
	}
	return a
}

// Elbow plots inertia against the number of clusters.
func Elbow(ks []int, inertia []float64) ChartConfig {
	labels := make([]interface{}, len(ks))
	data := make([]interface{}, len(inertia))
	for i, k := range ks {
		labels[i] = k
	}
	for i, v := range inertia {
		data[i] = v
	}
	return ChartConfig{
		Type: "line",
		Data: Data{
			Labels:   labels,
			DataSets: []Dataset{{Label: "Inertia", Data: data, BorderColor: palette[0]}},
		},
		Options: &Options{
			Title:  Title{Display: true, Text: "Elbow Method for Optimal k"},
			Legend: &Legend{Display: false},
			Scales: &Scales{
				XAxes: []Axis{axis("Number of clusters (k)", nil)},
				YAxes: []Axis{axis("Inertia", nil)},
			},
		},
	}
}

// Histogram draws pre-binned counts. edges has one more entry than counts.
func Histogram(title string, edges []float64, counts []int) ChartConfig {
	labels := make([]interface{}, len(counts))
	data := make([]interface{}, len(counts))
	for i, c := range counts {
		labels[i] = fmt.Sprintf("%.0f-%.0f", edges[i], edges[i+1])
		data[i] = c
	}
	return ChartConfig{
		Type: "bar",
		Data: Data{
			Labels:   labels,
			DataSets: []Dataset{{Label: "Customers", Data: data, BackgroundColor: palette[0]}},
		},
		Options: &Options{
			Title:  Title{Display: true, Text: title},
			Legend: &Legend{Display: false},
			Scales: &Scales{
				XAxes: []Axis{axis("TotalSpend", nil)},
				YAxes: []Axis{{ScaleLabel: ScaleLabel{Display: true, LabelString: "Customers"}, Ticks: &Ticks{BeginAtZero: true}}},
			},
		},
	}
}

// Bar draws one count per category with the y axis fixed to [0, yMax].
func Bar(title string, categories []string, counts []int, yMax int) ChartConfig {
	labels := make([]interface{}, len(categories))
	data := make([]interface{}, len(counts))
	for i, c := range categories {
		labels[i] = c
	}
	for i, c := range counts {
		data[i] = c
	}
	return ChartConfig{
		Type: "bar",
		Data: Data{
			Labels:   labels,
			DataSets: []Dataset{{Label: "Customers", Data: data, BackgroundColor: palette[3]}},
		},
		Options: &Options{
			Title:  Title{Display: true, Text: title},
			Legend: &Legend{Display: false},
			Scales: &Scales{
				XAxes: []Axis{axis("Churn_Risk", nil)},
				YAxes: []Axis{axis("Customers", &Range{Min: 0, Max: float64(yMax)})},
			},
		},
	}
}

// Scatter draws one dataset per cluster with both axes fixed.
func Scatter(title string, byCluster map[int][]Point, x, y Range) ChartConfig {
	ids := make([]int, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	sets := make([]Dataset, 0, len(ids))
	for _, id := range ids {
		pts := byCluster[id]
		data := make([]interface{}, len(pts))
		for i, p := range pts {
			data[i] = p
		}
		sets = append(sets, Dataset{
			Label:           "Cluster " + strconv.Itoa(id),
			Data:            data,
			BackgroundColor: Color(id),
			PointRadius:     3,
		})
	}
	return ChartConfig{
		Type: "scatter",
		Data: Data{DataSets: sets},
		Options: &Options{
			Title: Title{Display: true, Text: title},
			Scales: &Scales{
				XAxes: []Axis{axis("TotalSpend", &x)},
				YAxes: []Axis{axis("RecencyDays", &y)},
			},
		},
	}
}
