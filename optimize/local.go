package optimize

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/internal/geom"
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// minLocalRefinePatches is the smallest pool size the local stage will
// run on. Below this there isn't enough of a constellation for a
// neighbourhood affine suggestion to mean anything.
const minLocalRefinePatches = 4

// LocalRefine runs one round of per-patch cross-entropy refinement: each
// non-fixed patch's position is searched independently, scored by a
// blend of its own appearance response and how far it strays from the
// position its Delaunay neighbours' current estimates would affinely
// predict for it. Patches converge (and stop being resampled) once their
// per-patch proposal covariance collapses below schedule.Terminate, or
// when the iteration budget is spent.
//
// Pools smaller than minLocalRefinePatches are left untouched. Patches
// whose Status.Fixed is already set are skipped entirely, neither
// resampled nor perturbed.
func LocalRefine(rng *rand.Rand, v *imageview.View, ps *patchset.Set, schedule Schedule) {
	patches := ps.Patches()
	n := len(patches)
	if n < minLocalRefinePatches {
		return
	}

	elite := schedule.Elite
	if elite < 1 {
		elite = 1
	}
	samples := schedule.MinSamples
	if samples < elite+1 {
		samples = elite + 1
	}

	origin := make([]geom.Point, n)
	localM := make([]geom.Point, n)
	localC := make([]*mat.SymDense, n)
	done := make([]bool, n)
	iterationsUsed := make([]int, n)

	variance := schedule.Move * schedule.Move
	for i, p := range patches {
		pos := p.Position()
		gp := geom.Point{X: float64(pos.X), Y: float64(pos.Y)}
		origin[i] = gp
		localM[i] = gp
		if p.Status.Fixed {
			done[i] = true
			localC[i] = diagSym(0, 0)
		} else {
			localC[i] = diagSym(variance, variance)
		}
	}

	neighbors := geom.DelaunayNeighbors(origin)
	neighbors = ensureMinNeighbors(origin, neighbors, 3)

	for iter := 0; iter < schedule.Iterations; iter++ {
		allDone := true
		for p := range patches {
			if done[p] {
				continue
			}
			allDone = false

			suggest := localM[p]
			if nbs := neighbors[p]; len(nbs) > 2 {
				from := make([]geom.Point, len(nbs))
				to := make([]geom.Point, len(nbs))
				weights := make([]float64, len(nbs))
				for i, nb := range nbs {
					from[i] = origin[nb]
					to[i] = localM[nb]
					weights[i] = float64(patches[nb].Weight())
				}
				if fit, err := geom.FitAffine(from, to, weights); err == nil {
					suggest = fit.Transform(origin[p])
				}
			}

			candidates := sampleGaussian(rng, []float64{localM[p].X, localM[p].Y}, localC[p], samples)
			costs := make([]float64, samples)
			for s, c := range candidates {
				cand := patch.Point{X: float32(c[0]), Y: float32(c[1])}
				resp := patches[p].Response(v, cand)
				d := math.Hypot(suggest.X-c[0], suggest.Y-c[1])
				costs[s] = math.Exp(-float64(resp)*schedule.LambdaVisual) * math.Exp(-d*schedule.LambdaGeometry)
			}

			eliteIdx := selectElite(costs, elite)
			eliteSamples := make([][]float64, len(eliteIdx))
			eliteWeights := make([]float64, len(eliteIdx))
			for i, idx := range eliteIdx {
				eliteSamples[i] = candidates[idx]
				eliteWeights[i] = costs[idx]
			}

			newMean, newCov := weightedRefit(eliteSamples, eliteWeights)
			if finiteRefit(newMean, newCov) {
				localM[p] = geom.Point{X: newMean[0], Y: newMean[1]}
				localC[p] = newCov
			} else {
				diagf("local iteration %d: non-finite refit for patch %d, proposal covariance reset", iter, p)
				localC[p] = diagSym(variance, variance)
			}
			iterationsUsed[p] = iter + 1

			cc := localC[p]
			det := cc.At(0, 0)*cc.At(1, 1) - cc.At(1, 0)*cc.At(0, 1)
			if det < schedule.Terminate {
				done[p] = true
			}
		}
		if allDone {
			break
		}
	}

	for i, p := range patches {
		if p.Status.Fixed {
			continue
		}
		newPos := patch.Point{X: float32(localM[i].X), Y: float32(localM[i].Y)}
		resp := p.Response(v, newPos)
		p.SetPosition(newPos)
		p.Status = patch.Status{
			Converged:  done[i],
			Iterations: iterationsUsed[i],
			Value:      float32(math.Exp(-float64(resp))),
		}
	}
}

// ensureMinNeighbors tops up any point's neighbour list to at least min
// entries by adding its nearest not-yet-neighbour points: a point with
// too few triangulation neighbours (degenerate/boundary cases) still
// gets an affine-fit-worthy neighbourhood.
func ensureMinNeighbors(points []geom.Point, neighbors [][]int, min int) [][]int {
	n := len(points)
	out := make([][]int, n)
	for i := range neighbors {
		out[i] = append([]int{}, neighbors[i]...)
	}
	for i := 0; i < n; i++ {
		if len(out[i]) >= min {
			continue
		}
		present := map[int]bool{i: true}
		for _, j := range out[i] {
			present[j] = true
		}
		for len(out[i]) < min && len(present) < n {
			best := -1
			bestDist := math.Inf(1)
			for j := 0; j < n; j++ {
				if present[j] {
					continue
				}
				d := math.Hypot(points[i].X-points[j].X, points[i].Y-points[j].Y)
				if d < bestDist {
					bestDist = d
					best = j
				}
			}
			if best == -1 {
				break
			}
			out[i] = append(out[i], best)
			present[best] = true
		}
	}
	return out
}
