package tracker

import (
	"fmt"
	"time"

	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/modality"
	"github.com/banshee-data/lgt-tracker/optimize"
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// Update advances the tracker by one frame: predict, global affine
// search, local per-patch refinement, reweight/merge/remove, Kalman
// correction, modality update and new-patch sampling, in that fixed
// order. Observers attached via AddObserver are notified at
// every stage boundary. Calling Update before Initialize returns an
// error.
func (t *Tracker) Update(v *imageview.View) error {
	if t.patches == nil {
		return fmt.Errorf("tracker: update: not initialized")
	}
	if t.patches.Size() == 0 {
		// The pool emptied on an earlier frame; tracking is over and
		// further updates must not allocate.
		return nil
	}

	t.frame++
	t.lastTimings = t.lastTimings[:0]
	record := func(stage Stage, begin time.Time) {
		t.lastTimings = append(t.lastTimings, StageTiming{Stage: stage, Duration: time.Since(begin)})
	}

	prevCentroid := t.patches.MeanPosition(true)
	t.patches.Push()
	t.notify(Event{Stage: StageBegin, Frame: t.frame, Patches: snapshotOf(t.patches)})

	tBegin := time.Now()
	t.kalman.Predict(1)
	predX, predY := t.kalman.Position()
	delta := patch.Point{X: float32(predX) - prevCentroid.X, Y: float32(predY) - prevCentroid.Y}
	t.patches.Move(delta)

	global := optimize.GlobalAffine(t.rng, v, t.patches, optimize.GlobalSchedule(t.cfg), t.cfg.GetSizeConstraints())
	optimize.ApplyGlobalAffine(v, t.patches, global)
	record(StageOptimizationGlobal, tBegin)
	t.notify(Event{Stage: StageOptimizationGlobal, Frame: t.frame, Patches: snapshotOf(t.patches)})

	tBegin = time.Now()
	optimize.LocalRefine(t.rng, v, t.patches, optimize.LocalSchedule(t.cfg))
	record(StageOptimizationLocal, tBegin)
	t.notify(Event{Stage: StageOptimizationLocal, Frame: t.frame, Patches: snapshotOf(t.patches)})

	tBegin = time.Now()
	reweights := t.reweightPatches()
	record(StageUpdateWeights, tBegin)
	t.notify(Event{Stage: StageUpdateWeights, Frame: t.frame, Patches: snapshotOf(t.patches), Reweights: reweights})

	tBegin = time.Now()
	t.mergeNearDuplicates(v)
	t.patches.RemoveWhere(patchset.WeightLowerThan(float32(t.cfg.GetRemoveWeight())))
	record(StageRemovePatches, tBegin)
	t.notify(Event{Stage: StageRemovePatches, Frame: t.frame, Patches: snapshotOf(t.patches)})

	if t.patches.Size() == 0 {
		diagf("frame %d: patch pool emptied, tracking over", t.frame)
		t.notify(Event{Stage: StageEnd, Frame: t.frame, Patches: snapshotOf(t.patches)})
		return nil
	}

	newCentroid := t.patches.MeanPosition(true)
	t.kalman.Update(float64(newCentroid.X), float64(newCentroid.Y))

	tBegin = time.Now()
	bounds := t.patches.Region()
	reliable := t.reliablePatches()
	for _, c := range t.cues {
		if c != nil {
			c.Update(v, reliable, bounds)
		}
	}
	record(StageUpdateModalities, tBegin)
	t.notify(Event{Stage: StageUpdateModalities, Frame: t.frame, Patches: snapshotOf(t.patches)})

	tBegin = time.Now()
	window := probabilityWindow(bounds, t.cfg.GetSamplingSize(), v.Width(), v.Height())
	pm := modality.ProductMap(v, t.cues, window)
	t.sampleAndAddPatches(v, pm)
	record(StageAddPatches, tBegin)
	t.notify(Event{Stage: StageAddPatches, Frame: t.frame, Patches: snapshotOf(t.patches)})

	t.updateCapacity()
	t.lastBounds = t.patches.Region()
	tracef("frame %d: pool=%d capacity=%.2f centroid=(%.1f,%.1f)",
		t.frame, t.patches.Size(), t.capacity, newCentroid.X, newCentroid.Y)
	t.notify(Event{Stage: StageEnd, Frame: t.frame, Patches: snapshotOf(t.patches)})
	return nil
}

// probabilityWindow returns the square window of the given side centred
// on bounds' centroid, clamped to the frame extent [0,width)x[0,height).
// The probability map is computed over this bounded window around the
// current constellation, not the whole frame.
func probabilityWindow(bounds patchset.Rect, side, width, height int) patchset.Rect {
	cx := bounds.X + bounds.Width/2
	cy := bounds.Y + bounds.Height/2
	half := float32(side) / 2
	x0, y0 := cx-half, cy-half
	x1, y1 := cx+half, cy+half
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > float32(width) {
		x1 = float32(width)
	}
	if y1 > float32(height) {
		y1 = float32(height)
	}
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return patchset.Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// reliablePatches selects patches whose weight and age both clear the
// configured filter thresholds, the set modality cues are allowed to
// learn appearance from.
func (t *Tracker) reliablePatches() []*patch.Patch {
	minWeight := float32(t.cfg.GetFilterWeight())
	minAge := t.cfg.GetFilterAge()
	var out []*patch.Patch
	for _, p := range t.patches.Patches() {
		if p.Weight() > minWeight && p.Age() > minAge {
			out = append(out, p)
		}
	}
	return out
}

// updateCapacity tracks an EMA of the pool size, used as the reference
// for how aggressively sampleAndAddPatches should replenish the pool.
func (t *Tracker) updateCapacity() {
	persistence := t.cfg.GetPoolPersistence()
	t.capacity = persistence*t.capacity + (1-persistence)*float64(t.patches.Size())
}
