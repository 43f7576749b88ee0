package segment

import "math"

// StandardScaler centers each column on its mean and divides by its
// population standard deviation. Columns with zero variance keep a scale of 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler learns per-column mean and scale from x.
func FitScaler(x [][]float64) *StandardScaler {
	s := &StandardScaler{}
	if len(x) == 0 {
		return s
	}
	d := len(x[0])
	s.Mean = make([]float64, d)
	s.Scale = make([]float64, d)
	n := float64(len(x))

	for _, row := range x {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			diff := v - s.Mean[j]
			s.Scale[j] += diff * diff
		}
	}
	for j := range s.Scale {
		std := math.Sqrt(s.Scale[j] / n)
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
	return s
}

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out
}

// Inverse maps a scaled point back to feature units.
func (s *StandardScaler) Inverse(p []float64) []float64 {
	out := make([]float64, len(p))
	for j, v := range p {
		out[j] = v*s.Scale[j] + s.Mean[j]
	}
	return out
}
