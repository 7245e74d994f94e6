package optimize

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
)

// sampleGaussian draws n samples from N(mean, cov) using gonum's
// multivariate normal distribution. If cov is not positive-definite (the
// search has collapsed to a point), every sample is just mean: a
// degenerate proposal makes no further progress.
func sampleGaussian(rng *rand.Rand, mean []float64, cov mat.Symmetric, n int) [][]float64 {
	dist, ok := distmv.NewNormal(mean, cov, rng)
	out := make([][]float64, n)
	if !ok {
		for i := range out {
			out[i] = append([]float64{}, mean...)
		}
		return out
	}
	for i := range out {
		out[i] = dist.Rand(nil)
	}
	return out
}

// weightedRefit computes the weighted mean and covariance of the elite
// rows (one sample per row). A zero top weight is replaced by an
// all-ones weighting, so an elite set whose best cost is exactly zero
// still refits.
func weightedRefit(elite [][]float64, weights []float64) (mean []float64, cov *mat.SymDense) {
	dims := len(elite[0])
	n := len(elite)

	w := weights
	if w[0] == 0 {
		w = make([]float64, n)
		for i := range w {
			w[i] = 1
		}
	}

	data := mat.NewDense(n, dims, nil)
	for i, row := range elite {
		for j, v := range row {
			data.Set(i, j, v)
		}
	}

	mean = make([]float64, dims)
	col := make([]float64, n)
	for j := 0; j < dims; j++ {
		mat.Col(col, j, data)
		mean[j] = stat.Mean(col, w)
	}

	cov = &mat.SymDense{}
	stat.CovarianceMatrix(cov, data, w)
	return mean, cov
}

// costIndex pairs a sample index with its evaluated cost, for the
// descending elite selection every cross-entropy stage performs.
type costIndex struct {
	index int
	cost  float64
}

// selectElite returns the indices of the k highest-cost entries in costs,
// sorted descending by cost with sample index as the secondary key, so
// equal-cost samples order identically on every run with the same seed.
func selectElite(costs []float64, k int) []int {
	pairs := make([]costIndex, len(costs))
	for i, c := range costs {
		pairs[i] = costIndex{index: i, cost: c}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].cost != pairs[j].cost {
			return pairs[i].cost > pairs[j].cost
		}
		return pairs[i].index < pairs[j].index
	})
	if k > len(pairs) {
		k = len(pairs)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = pairs[i].index
	}
	return out
}

// finiteRefit reports whether every entry of mean and cov is finite. A
// degenerate elite set (all samples identical, or pathological weights)
// can push the covariance estimate to NaN/Inf; callers recover by
// resetting the proposal to its prior diagonal for that iteration.
func finiteRefit(mean []float64, cov *mat.SymDense) bool {
	for _, v := range mean {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	n := cov.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func diagSym(variances ...float64) *mat.SymDense {
	n := len(variances)
	m := mat.NewSymDense(n, nil)
	for i, v := range variances {
		m.SetSym(i, i, v)
	}
	return m
}
