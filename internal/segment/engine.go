// Package segment scales customer features and partitions them with k-means.
package segment

import (
	"github.com/matthieukhl/segmentor/internal/apperr"
	"github.com/matthieukhl/segmentor/internal/config"
	"github.com/matthieukhl/segmentor/internal/models"
	log "github.com/sirupsen/logrus"
)

// ElbowPoint is the inertia of one candidate cluster count.
type ElbowPoint struct {
	K       int     `json:"k"`
	Inertia float64 `json:"inertia"`
}

// Result is the final clustering.
type Result struct {
	Rows []models.SegmentedCustomer
	// Centers are in feature units, one per cluster, ordered like FeatureVector.
	Centers    [][]float64
	Inertia    float64
	Iterations int
}

// Engine runs the elbow sweep and the final fit with a fixed seed.
type Engine struct {
	cfg config.SegmentationConfig
}

func NewEngine(cfg config.SegmentationConfig) *Engine {
	return &Engine{cfg: cfg}
}

// FeatureVector is the clustering input for one customer. The id is not a
// feature.
func FeatureVector(f models.CustomerFeatures) []float64 {
	return []float64{f.TotalSpend, float64(f.NumOrders), f.AvgOrderValue, float64(f.RecencyDays)}
}

func (e *Engine) scaled(rows []models.CustomerFeatures) ([][]float64, *StandardScaler) {
	x := make([][]float64, len(rows))
	for i, f := range rows {
		x[i] = FeatureVector(f)
	}
	s := FitScaler(x)
	return s.Transform(x), s
}

func (e *Engine) kmeans(k int) KMeans {
	return KMeans{K: k, Seed: e.cfg.Seed, NInit: e.cfg.NInit, MaxIter: e.cfg.MaxIter, Tol: e.cfg.Tolerance}
}

// Elbow fits every k from ElbowMin up to ElbowMax, capped at the number of
// customers. The curve is advisory and never changes the configured K: with
// fewer customers than ElbowMin it is empty rather than an error.
func (e *Engine) Elbow(rows []models.CustomerFeatures) ([]ElbowPoint, error) {
	n := len(rows)
	if n == 0 {
		return nil, &apperr.InsufficientDataError{Rows: n, Clusters: e.cfg.ElbowMin}
	}
	if n < e.cfg.ElbowMin {
		log.WithFields(log.Fields{"rows": n, "elbow_min": e.cfg.ElbowMin}).Warn("Too few customers for an elbow curve")
		return []ElbowPoint{}, nil
	}
	hi := min(e.cfg.ElbowMax, n)
	if hi < e.cfg.ElbowMax {
		log.WithFields(log.Fields{"rows": n, "elbow_max": e.cfg.ElbowMax}).Warn("Elbow range capped at row count")
	}

	x, _ := e.scaled(rows)
	points := make([]ElbowPoint, 0, hi-e.cfg.ElbowMin+1)
	for k := e.cfg.ElbowMin; k <= hi; k++ {
		m := e.kmeans(k).Fit(x)
		points = append(points, ElbowPoint{K: k, Inertia: m.Inertia})
		log.WithFields(log.Fields{"k": k, "inertia": m.Inertia}).Debug("Elbow point")
	}
	return points, nil
}

// Segment fits K clusters and labels every customer, preserving input order.
func (e *Engine) Segment(rows []models.CustomerFeatures) (*Result, error) {
	k := e.cfg.K
	if len(rows) == 0 || len(rows) < k {
		return nil, &apperr.InsufficientDataError{Rows: len(rows), Clusters: k}
	}

	x, scaler := e.scaled(rows)
	m := e.kmeans(k).Fit(x)

	out := make([]models.SegmentedCustomer, len(rows))
	for i, f := range rows {
		out[i] = models.SegmentedCustomer{CustomerFeatures: f, Cluster: m.Labels[i]}
	}
	centers := make([][]float64, len(m.Centers))
	for c, center := range m.Centers {
		centers[c] = scaler.Inverse(center)
	}

	log.WithFields(log.Fields{
		"k":          k,
		"rows":       len(rows),
		"inertia":    m.Inertia,
		"iterations": m.Iterations,
	}).Info("Segmentation complete")

	return &Result{Rows: out, Centers: centers, Inertia: m.Inertia, Iterations: m.Iterations}, nil
}
