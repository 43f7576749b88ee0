package segment

import (
	"math"
	"math/rand"
)

// KMeans is Lloyd's algorithm with k-means++ seeding. A fit with the same Seed
// on the same data always returns the same labels.
type KMeans struct {
	K       int
	Seed    int64
	NInit   int
	MaxIter int
	// Tol is relative to the mean per-column variance of the data.
	Tol float64
}

// Model is the best run of a fit.
type Model struct {
	Labels     []int
	Centers    [][]float64
	Inertia    float64
	Iterations int
}

// Fit clusters x. The caller guarantees len(x) >= K >= 1.
func (km KMeans) Fit(x [][]float64) Model {
	rng := rand.New(rand.NewSource(km.Seed))
	tol := km.Tol * meanVariance(x)
	nInit := max(km.NInit, 1)
	maxIter := max(km.MaxIter, 1)

	var best Model
	for run := 0; run < nInit; run++ {
		centers := seedPlusPlus(x, km.K, rng)
		m := lloyd(x, centers, maxIter, tol)
		if run == 0 || m.Inertia < best.Inertia {
			best = m
		}
	}
	return best
}

func meanVariance(x [][]float64) float64 {
	if len(x) == 0 {
		return 0
	}
	d := len(x[0])
	n := float64(len(x))
	total := 0.0
	for j := 0; j < d; j++ {
		mean := 0.0
		for _, row := range x {
			mean += row[j]
		}
		mean /= n
		v := 0.0
		for _, row := range x {
			diff := row[j] - mean
			v += diff * diff
		}
		total += v / n
	}
	return total / float64(d)
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// seedPlusPlus is greedy k-means++: each new center is the best of several
// candidates drawn proportionally to the squared distance to the nearest
// existing center.
func seedPlusPlus(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(x)
	trials := 2 + int(math.Log(float64(k)))
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(x[rng.Intn(n)]))

	closest := make([]float64, n)
	potential := 0.0
	for i, p := range x {
		closest[i] = sqDist(p, centers[0])
		potential += closest[i]
	}

	for c := 1; c < k; c++ {
		bestIdx := -1
		bestPot := math.Inf(1)
		var bestClosest []float64

		for t := 0; t < trials; t++ {
			cand := sample(closest, potential, rng)
			next := make([]float64, n)
			pot := 0.0
			for i, p := range x {
				next[i] = math.Min(closest[i], sqDist(p, x[cand]))
				pot += next[i]
			}
			if pot < bestPot {
				bestIdx, bestPot, bestClosest = cand, pot, next
			}
		}
		centers = append(centers, clone(x[bestIdx]))
		closest, potential = bestClosest, bestPot
	}
	return centers
}

// sample draws an index with probability weights[i]/total. With no mass left
// (all points coincide with centers) it falls back to a uniform draw.
func sample(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.Intn(len(weights))
	}
	r := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}

func lloyd(x [][]float64, centers [][]float64, maxIter int, tol float64) Model {
	n, k := len(x), len(centers)
	d := len(x[0])
	labels := make([]int, n)
	dists := make([]float64, n)

	iter := 0
	for iter < maxIter {
		iter++
		assign(x, centers, labels, dists)

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, d)
		}
		for i, p := range x {
			counts[labels[i]]++
			for j, v := range p {
				next[labels[i]][j] += v
			}
		}
		relocateEmpty(x, labels, next, counts, dists)
		for c := range next {
			if counts[c] == 0 {
				continue
			}
			for j := range next[c] {
				next[c][j] /= float64(counts[c])
			}
		}

		shift := 0.0
		for c := range centers {
			shift += sqDist(centers[c], next[c])
		}
		centers = next
		if shift <= tol {
			break
		}
	}

	inertia := assign(x, centers, labels, dists)
	return Model{Labels: labels, Centers: centers, Inertia: inertia, Iterations: iter}
}

// relocateEmpty moves each empty cluster onto the point farthest from its
// current center, taking it out of a cluster that can spare it.
func relocateEmpty(x [][]float64, labels []int, sums [][]float64, counts []int, dists []float64) {
	for c := range sums {
		if counts[c] != 0 {
			continue
		}
		far := -1
		for i := range x {
			if counts[labels[i]] < 2 {
				continue
			}
			if far < 0 || dists[i] > dists[far] {
				far = i
			}
		}
		if far < 0 {
			return
		}
		from := labels[far]
		for j, v := range x[far] {
			sums[from][j] -= v
		}
		counts[from]--
		copy(sums[c], x[far])
		counts[c] = 1
		labels[far] = c
		dists[far] = 0
	}
}

// assign labels every point with its nearest center, lowest index on ties,
// and returns the inertia.
func assign(x [][]float64, centers [][]float64, labels []int, dists []float64) float64 {
	inertia := 0.0
	for i, p := range x {
		best, bestD := 0, math.Inf(1)
		for c, center := range centers {
			if dd := sqDist(p, center); dd < bestD {
				best, bestD = c, dd
			}
		}
		labels[i] = best
		dists[i] = bestD
		inertia += bestD
	}
	return inertia
}

func clone(p []float64) []float64 {
	return append([]float64(nil), p...)
}
