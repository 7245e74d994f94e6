package tracker

import (
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/modality"
	"github.com/banshee-data/lgt-tracker/patch"
)

// sampleAndAddPatches draws up to computeAddCount new patch positions
// from pm via inverse-CDF sampling, suppressing noise and inhibiting
// around both existing patches and positions already drawn this frame so
// a single frame cannot stack several new patches on the same spot.
func (t *Tracker) sampleAndAddPatches(v *imageview.View, pm *modality.Map) {
	k := t.computeAddCount()
	if k <= 0 {
		return
	}

	modality.SuppressNoise(pm, t.cfg.GetSamplingThreshold())

	centers := make([]patch.Point, 0, t.patches.Size())
	for _, p := range t.patches.Patches() {
		centers = append(centers, p.Position())
	}
	radius := t.cfg.GetSamplingMask() * float64(t.patches.PatchSize())
	modality.InhibitionMask(pm, centers, radius)

	for i := 0; i < k; i++ {
		if pm.Sum() < 1e-16 {
			break
		}
		pm.Normalize()
		u1, u2 := t.rng.Float64(), t.rng.Float64()
		x, y, value, ok := modality.SampleInverseCDF(pm, u1, u2)
		if !ok || value < 1e-5 {
			break
		}
		pos := patch.Point{X: float32(x), Y: float32(y)}
		if _, err := t.patches.Add(v, t.variant, pos, t.startWeight()); err != nil {
			break
		}
		modality.InhibitionMask(pm, []patch.Point{pos}, radius)
	}
}

// computeAddCount bounds how many new patches may be sampled this frame:
// enough to close the gap to the pool's EMA'd capacity (plus one so a
// steady-state pool still probes), never past pool_max, and at least
// enough to restore pool_min.
func (t *Tracker) computeAddCount() int {
	maxCount := t.cfg.GetPoolMax()
	minCount := t.cfg.GetPoolMin()
	size := t.patches.Size()

	k := int(t.capacity) - size + 1
	if ceil := maxCount - size; k > ceil {
		k = ceil
	}
	if floor := minCount - size; k < floor {
		k = floor
	}
	return k
}

// startWeight is the initial weight assigned to a freshly sampled patch.
func (t *Tracker) startWeight() float32 {
	return 0.5
}
