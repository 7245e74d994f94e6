package tracker

import (
	"math"
	"sort"

	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/patch"
)

// reweightPatches blends each patch's optimisation-stage appearance
// score with how closely it sits to the constellation's own expected
// spacing, and persists the result as an EMA over the patch's previous
// weight. It also refreshes the tracker's median
// neighbour-distance estimate, which this frame's proximity score is
// scaled from.
func (t *Tracker) reweightPatches() []ReweightEvent {
	patches := t.patches.Patches()
	n := len(patches)
	if n == 0 {
		return nil
	}

	knn := nearestNeighborMeanDistance(patches)
	if knn > 0 {
		knn *= 1.2
	}
	target := t.cfg.GetMedianThreshold(knn)
	persistence := t.cfg.GetMedianPersistence()
	if t.medianThreshold <= 0 {
		t.medianThreshold = target
	} else {
		t.medianThreshold = persistence*t.medianThreshold + (1-persistence)*target
	}

	lambdaSim := t.cfg.GetReweightSimilarity()
	lambdaDist := t.cfg.GetReweightDistance()
	reweightPersistence := t.cfg.GetReweightPersistence()

	events := make([]ReweightEvent, 0, n)
	scratch := make([]float64, 0, n-1)
	for i, p := range patches {
		// Median distance to the rest of the constellation, pushed
		// through a logistic about the configured midpoint: patches that
		// drift away from the pack lose proximity smoothly.
		scratch = scratch[:0]
		pos := p.Position()
		for j, q := range patches {
			if i != j {
				scratch = append(scratch, pos.Dist(q.Position()))
			}
		}
		m := median(scratch)
		proximity := float32(1 / (1 + math.Exp((m-t.medianThreshold)*lambdaDist)))

		// Status.Value is exp(-response), so the similarity score
		// exp(-response*lambda) is Value^lambda.
		similarity := float32(math.Pow(float64(p.Status.Value), lambdaSim))

		raw := similarity * proximity
		newWeight := float32(reweightPersistence)*p.Weight() + float32(1-reweightPersistence)*raw
		p.SetWeight(newWeight)

		events = append(events, ReweightEvent{PatchID: p.ID, Similarity: similarity, Proximity: proximity})
	}
	return events
}

// median returns the median of values, mutating their order. Empty input
// returns 0.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// nearestNeighborMeanDistance returns the mean, over every patch, of its
// distance to its single nearest neighbour — the knn_fallback input to
// config.GetMedianThreshold's open-question resolution.
func nearestNeighborMeanDistance(patches []*patch.Patch) float64 {
	n := len(patches)
	if n < 2 {
		return -1
	}
	var total float64
	for i, p := range patches {
		best := math.Inf(1)
		pos := p.Position()
		for j, q := range patches {
			if i == j {
				continue
			}
			if d := pos.Dist(q.Position()); d < best {
				best = d
			}
		}
		total += best
	}
	return total / float64(n)
}

// mergeNearDuplicates collapses groups of patches sitting within
// merge_distance patch radii of each other: for the first patch with any
// neighbour under the threshold, its whole transitively-connected cluster
// is merged in one multi-way call, and the scan restarts, since every
// merge reassigns indices.
func (t *Tracker) mergeNearDuplicates(v *imageview.View) {
	threshold := t.cfg.GetMergeDistance() * float64(t.patches.Radius())
	for {
		merged := false
		patches := t.patches.Patches()
		for i := range patches {
			cluster := closeCluster(patches, i, threshold)
			if len(cluster) < 2 {
				continue
			}
			if _, err := t.patches.Merge(v, cluster, t.variant); err != nil {
				return
			}
			merged = true
			break
		}
		if !merged {
			return
		}
	}
}

// closeCluster returns the sorted indices of every patch reachable from
// seed through chains of pairwise distances under threshold, seed
// included.
func closeCluster(patches []*patch.Patch, seed int, threshold float64) []int {
	in := map[int]bool{seed: true}
	frontier := []int{seed}
	for len(frontier) > 0 {
		i := frontier[0]
		frontier = frontier[1:]
		pos := patches[i].Position()
		for j, q := range patches {
			if in[j] {
				continue
			}
			if pos.Dist(q.Position()) < threshold {
				in[j] = true
				frontier = append(frontier, j)
			}
		}
	}
	cluster := make([]int, 0, len(in))
	for i := range in {
		cluster = append(cluster, i)
	}
	sort.Ints(cluster)
	return cluster
}
