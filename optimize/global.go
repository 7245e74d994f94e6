package optimize

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/internal/geom"
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// GlobalResult is the outcome of one GlobalAffine search: the best
// affine transform found, the centre it was computed about, whether the
// search converged before exhausting its iteration budget, and how many
// iterations it actually ran.
type GlobalResult struct {
	Affine     geom.Affine
	Center     patch.Point
	Converged  bool
	Iterations int
}

// GlobalAffine searches for the 5-parameter (tx, ty, rotation, scaleX,
// scaleY) affine transform of the patch constellation about its weighted
// mean position that best explains the current frame, via cross-entropy
// search: each iteration samples candidate transforms from a Gaussian,
// scores them by the total weighted appearance-model agreement they
// produce, refits the Gaussian to the best-scoring ("elite") samples, and
// repeats until the determinant of the proposal covariance's translation
// (tx, ty) block falls below schedule.Terminate or the iteration budget
// is spent.
//
// An empty patch set returns the identity transform. Each iteration
// draws schedule.MinSamples fresh candidates, growing by
// schedule.AddSamples up to schedule.MaxSamples when the elite
// thresholds stall, and terminates when the determinant of the 2x2
// translation block of the proposal covariance falls under
// schedule.Terminate.
func GlobalAffine(rng *rand.Rand, v *imageview.View, ps *patchset.Set, schedule Schedule, constraints config.SizeConstraints) GlobalResult {
	n := ps.Size()
	if n == 0 {
		return GlobalResult{Affine: geom.Identity()}
	}

	center := ps.MeanPosition(true)
	region := ps.Region()

	mean := []float64{0, 0, 0, 1, 1}
	// A zero proposal std on any axis (e.g. rotate/scale pinned to 0 for a
	// translation-only search) would make the Gaussian non-positive-definite
	// and stop sampling on every axis, so each variance gets a tiny floor.
	priorCov := func() *mat.SymDense {
		return diagSym(
			flooredVar(schedule.Move), flooredVar(schedule.Move),
			flooredVar(schedule.Rotate),
			flooredVar(schedule.Scale), flooredVar(schedule.Scale),
		)
	}
	cov := priorCov()

	clampScale := schedule.ClampScale && constraints.HasConstraints()
	var sxMin, sxMax, syMin, syMax float64
	if clampScale {
		sxMin, sxMax = scaleBounds(constraints.MinWidth, constraints.MaxWidth, float64(region.Width))
		syMin, syMax = scaleBounds(constraints.MinHeight, constraints.MaxHeight, float64(region.Height))
	}

	patches := ps.Patches()
	relPositions := make([]patch.Point, n)
	weights := make([]float64, n)
	for i, p := range patches {
		relPositions[i] = p.Position().Sub(center)
		weights[i] = float64(p.Weight())
	}

	elite := schedule.Elite
	if elite < 1 {
		elite = 1
	}
	converged := false
	iterations := schedule.Iterations
	samples := schedule.MinSamples
	if samples < elite+1 {
		samples = elite + 1
	}
	prevTop, prevGamma := math.Inf(-1), math.Inf(-1)

	for iter := 0; iter < schedule.Iterations; iter++ {
		candidates := sampleGaussian(rng, mean, cov, samples)
		if clampScale {
			for _, c := range candidates {
				c[3] = clampFloat(c[3], sxMin, sxMax)
				c[4] = clampFloat(c[4], syMin, syMax)
			}
		}

		costs := make([]float64, samples)
		for k, c := range candidates {
			a := geom.SimpleAffine(c[0], c[1], c[2], c[3], c[4])
			var total float64
			for j, p := range patches {
				tp := a.Transform(geom.Point{X: float64(relPositions[j].X), Y: float64(relPositions[j].Y)})
				cand := patch.Point{X: float32(tp.X + float64(center.X)), Y: float32(tp.Y + float64(center.Y))}
				resp := p.Response(v, cand)
				total += math.Exp(-float64(resp)) * weights[j]
			}
			costs[k] = total
		}

		eliteIdx := selectElite(costs, elite)
		eliteSamples := make([][]float64, len(eliteIdx))
		eliteWeights := make([]float64, len(eliteIdx))
		for i, idx := range eliteIdx {
			eliteSamples[i] = candidates[idx]
			eliteWeights[i] = costs[idx]
		}

		// Stalled elite thresholds mean the proposal needs a denser look
		// at the same region: widen the next batch up to MaxSamples.
		top, gamma := eliteWeights[0], eliteWeights[len(eliteWeights)-1]
		if top <= prevTop && gamma <= prevGamma && schedule.AddSamples > 0 && samples < schedule.MaxSamples {
			samples += schedule.AddSamples
			if samples > schedule.MaxSamples {
				samples = schedule.MaxSamples
			}
		}
		prevTop, prevGamma = top, gamma

		newMean, newCov := weightedRefit(eliteSamples, eliteWeights)
		if finiteRefit(newMean, newCov) {
			mean, cov = newMean, newCov
		} else {
			// Degenerate refit: keep the old mean, restart the proposal
			// from its prior diagonal for the next iteration.
			diagf("global iteration %d: non-finite refit, proposal covariance reset", iter)
			cov = priorCov()
		}

		det := cov.At(0, 0)*cov.At(1, 1) - cov.At(1, 0)*cov.At(0, 1)
		iterations = iter + 1
		if det < schedule.Terminate {
			converged = true
			break
		}
	}

	a := geom.SimpleAffine(mean[0], mean[1], mean[2], mean[3], mean[4])
	if clampScale {
		a = clampAffineScale(a, sxMin, sxMax, syMin, syMax)
	}

	return GlobalResult{Affine: a, Center: center, Converged: converged, Iterations: iterations}
}

// ApplyGlobalAffine moves every patch in ps from its pre-search position
// to result.Affine applied about result.Center, and records each patch's
// resulting appearance-model value in its Status. This is the "commit"
// step following the search.
func ApplyGlobalAffine(v *imageview.View, ps *patchset.Set, result GlobalResult) {
	for _, p := range ps.Patches() {
		rel := p.Position().Sub(result.Center)
		tp := result.Affine.Transform(geom.Point{X: float64(rel.X), Y: float64(rel.Y)})
		newPos := patch.Point{X: float32(tp.X + float64(result.Center.X)), Y: float32(tp.Y + float64(result.Center.Y))}
		resp := p.Response(v, newPos)
		p.SetPosition(newPos)
		p.Status = patch.Status{
			Converged:  result.Converged,
			Iterations: result.Iterations,
			Value:      float32(math.Exp(-float64(resp))),
		}
	}
}

func sq(v float64) float64 { return v * v }

func flooredVar(std float64) float64 {
	v := sq(std)
	if v < 1e-12 {
		v = 1e-12
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if lo <= hi {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
	}
	return v
}

// scaleBounds derives the [min,max] multiplicative-scale bounds implied
// by a size constraint against the patch set's current region extent on
// one axis.
// A constraint value of -1 (unconstrained) or a zero-extent region
// disables that bound.
func scaleBounds(minPixels, maxPixels int, extent float64) (lo, hi float64) {
	lo, hi = math.Inf(-1), math.Inf(1)
	if extent <= 0 {
		return lo, hi
	}
	if minPixels >= 0 {
		lo = float64(minPixels) / extent
	}
	if maxPixels >= 0 {
		hi = float64(maxPixels) / extent
	}
	return lo, hi
}

func clampAffineScale(a geom.Affine, sxMin, sxMax, syMin, syMax float64) geom.Affine {
	sx := math.Hypot(a.A00, a.A10)
	sy := math.Hypot(a.A01, a.A11)
	csx := clampFloat(sx, sxMin, sxMax)
	csy := clampFloat(sy, syMin, syMax)
	if sx == 0 || sy == 0 || (csx == sx && csy == sy) {
		return a
	}
	rx, ry := csx/sx, csy/sy
	return geom.Affine{
		A00: a.A00 * rx, A10: a.A10 * rx,
		A01: a.A01 * ry, A11: a.A11 * ry,
		Tx: a.Tx, Ty: a.Ty,
	}
}
