// Package patchset manages the pool of patches that make up one tracked
// constellation: a flat slice of *patch.Patch plus the aggregate
// operations the tracker's pipeline needs each frame (weighted mean
// position, position covariance, bounding region, merge/inhibit/filter
// bookkeeping). There is no "patch tree" or spatial index here; the pool
// is a flat slice and every aggregate is a linear scan.
package patchset

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/patch"
)

// Rect is an axis-aligned bounding box in image-plane coordinates.
type Rect struct {
	X, Y, Width, Height float32
}

// Predicate selects patches for Filter/RemoveWhere.
type Predicate func(p *patch.Patch) bool

// WeightGreaterThan selects patches whose current weight exceeds threshold.
func WeightGreaterThan(threshold float32) Predicate {
	return func(p *patch.Patch) bool { return p.Weight() > threshold }
}

// WeightLowerThan selects patches whose current weight is below threshold.
func WeightLowerThan(threshold float32) Predicate {
	return func(p *patch.Patch) bool { return p.Weight() < threshold }
}

// Inactive selects patches whose current active flag is false.
func Inactive(p *patch.Patch) bool { return !p.Active() }

// Set is the mutable pool of patches belonging to one tracked target.
type Set struct {
	patches []*patch.Patch

	patchSize    int
	historyLimit int
	nextID       int64
}

// New creates an empty pool. patchSize is the square side (pixels) used
// for newly added histogram/SSD patches; historyLimit bounds each patch's
// ring buffer (see patch.DefaultHistoryLimit).
func New(patchSize, historyLimit int) *Set {
	return &Set{patchSize: patchSize, historyLimit: historyLimit}
}

// Size reports the number of patches currently in the pool.
func (s *Set) Size() int { return len(s.patches) }

// Patches returns the backing slice; callers must treat it as read-only
// except via the Set's own mutating methods.
func (s *Set) Patches() []*patch.Patch { return s.patches }

// At returns the patch at index, or an error if index is out of range.
func (s *Set) At(index int) (*patch.Patch, error) {
	if index < 0 || index >= len(s.patches) {
		return nil, fmt.Errorf("patchset: index %d out of range [0,%d)", index, len(s.patches))
	}
	return s.patches[index], nil
}

// PatchSize returns the configured square patch side.
func (s *Set) PatchSize() int { return s.patchSize }

// Radius returns half the patch size, the typical sampling radius.
func (s *Set) Radius() int { return s.patchSize / 2 }

// SetPatchSize flushes the pool and changes the side used by subsequently
// added patches: existing patches are inherently tied to their own
// captured size, so a size change starts the pool over.
func (s *Set) SetPatchSize(size int) {
	s.Flush()
	s.patchSize = size
}

// RelativePosition returns the patch's current position minus origin.
func (s *Set) RelativePosition(index int, origin patch.Point) (patch.Point, error) {
	p, err := s.At(index)
	if err != nil {
		return patch.Point{}, err
	}
	return p.Position().Sub(origin), nil
}

// MeanPosition returns the pool's (optionally weight-) averaged position.
// An empty pool returns the zero point.
func (s *Set) MeanPosition(weighted bool) patch.Point {
	if len(s.patches) == 0 {
		return patch.Point{}
	}
	var sumX, sumY, sumW float64
	for _, p := range s.patches {
		w := 1.0
		if weighted {
			w = float64(p.Weight())
		}
		pos := p.Position()
		sumX += float64(pos.X) * w
		sumY += float64(pos.Y) * w
		sumW += w
	}
	if sumW == 0 {
		return patch.Point{}
	}
	return patch.Point{X: float32(sumX / sumW), Y: float32(sumY / sumW)}
}

// PositionCovariance returns the (optionally weight-) 2x2 covariance of
// patch positions about their mean, via gonum/stat's weighted covariance
// estimator over an Nx2 position matrix.
func (s *Set) PositionCovariance(weighted bool) *mat.SymDense {
	n := len(s.patches)
	if n < 2 {
		return mat.NewSymDense(2, nil)
	}
	data := mat.NewDense(n, 2, nil)
	weights := make([]float64, n)
	for i, p := range s.patches {
		pos := p.Position()
		data.Set(i, 0, float64(pos.X))
		data.Set(i, 1, float64(pos.Y))
		if weighted {
			weights[i] = float64(p.Weight())
		} else {
			weights[i] = 1
		}
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, weights)
	return &cov
}

// Region returns the axis-aligned bounding box of current patch
// positions. An empty pool returns the zero Rect.
func (s *Set) Region() Rect {
	if len(s.patches) == 0 {
		return Rect{}
	}
	first := s.patches[0].Position()
	minX, minY := first.X, first.Y
	maxX, maxY := first.X, first.Y
	for _, p := range s.patches[1:] {
		pos := p.Position()
		if pos.X < minX {
			minX = pos.X
		}
		if pos.Y < minY {
			minY = pos.Y
		}
		if pos.X > maxX {
			maxX = pos.X
		}
		if pos.Y > maxY {
			maxY = pos.Y
		}
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Filter returns a new Set sharing the underlying *patch.Patch pointers
// for every patch matching pred. The returned set's own Add/Remove/Merge
// calls operate only on its own slice, not the source pool.
func (s *Set) Filter(pred Predicate) *Set {
	out := New(s.patchSize, s.historyLimit)
	out.nextID = s.nextID
	for _, p := range s.patches {
		if pred(p) {
			out.patches = append(out.patches, p)
		}
	}
	return out
}

// Push advances every patch's ring buffer by one frame.
func (s *Set) Push() {
	for _, p := range s.patches {
		p.Push()
	}
}

// Move translates every patch's current position by delta.
func (s *Set) Move(delta patch.Point) {
	for _, p := range s.patches {
		p.Move(delta)
	}
}

// Add constructs a new patch of kind at position with the given weight
// and appends it to the pool, returning its assigned id.
func (s *Set) Add(v *imageview.View, kind config.PatchVariant, pos patch.Point, weight float32) (int64, error) {
	id := s.nextID
	p, err := patch.NewWithLimit(id, kind, s.patchSize, v, pos, weight, s.historyLimit)
	if err != nil {
		return 0, fmt.Errorf("patchset: add: %w", err)
	}
	s.nextID++
	s.patches = append(s.patches, p)
	return id, nil
}

// Remove deletes the patch at index.
func (s *Set) Remove(index int) error {
	if index < 0 || index >= len(s.patches) {
		return fmt.Errorf("patchset: remove: index %d out of range [0,%d)", index, len(s.patches))
	}
	s.patches = append(s.patches[:index], s.patches[index+1:]...)
	return nil
}

// RemoveIndices deletes every patch named in indices (order-independent,
// duplicates tolerated).
func (s *Set) RemoveIndices(indices []int) {
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	kept := s.patches[:0:0]
	for i, p := range s.patches {
		if !drop[i] {
			kept = append(kept, p)
		}
	}
	s.patches = kept
}

// RemoveWhere deletes every patch matching pred and returns the count
// removed.
func (s *Set) RemoveWhere(pred Predicate) int {
	var selection []int
	for i, p := range s.patches {
		if pred(p) {
			selection = append(selection, i)
		}
	}
	if len(selection) == 0 {
		return 0
	}
	s.RemoveIndices(selection)
	return len(selection)
}

// Flush empties the pool.
func (s *Set) Flush() {
	s.patches = nil
}

// Merge replaces the patches named by indices with a single new patch of
// kind, positioned at their weight-averaged location with their
// weight-averaged weight. Its appearance model is freshly initialised
// from v, never averaged from the merged patches. Fewer than two
// indices is a no-op that returns the
// pool's current size. indices must be valid and need not be sorted.
func (s *Set) Merge(v *imageview.View, indices []int, kind config.PatchVariant) (int, error) {
	if len(indices) < 2 {
		return len(s.patches), nil
	}

	var sumX, sumY, sumW float64
	for _, idx := range indices {
		p, err := s.At(idx)
		if err != nil {
			return 0, fmt.Errorf("patchset: merge: %w", err)
		}
		w := float64(p.Weight())
		pos := p.Position()
		sumX += float64(pos.X) * w
		sumY += float64(pos.Y) * w
		sumW += w
	}

	s.RemoveIndices(indices)

	var mergedPos patch.Point
	var mergedWeight float32
	if sumW != 0 {
		mergedPos = patch.Point{X: float32(sumX / sumW), Y: float32(sumY / sumW)}
		mergedWeight = float32(sumW / float64(len(indices)))
	}

	if _, err := s.Add(v, kind, mergedPos, mergedWeight); err != nil {
		return 0, fmt.Errorf("patchset: merge: %w", err)
	}
	return len(s.patches), nil
}

// Inhibit keeps only the highest-weight patch among indices, removing the
// rest. Fewer than two indices is a no-op. Returns the pool's resulting
// size.
func (s *Set) Inhibit(indices []int) (int, error) {
	if len(indices) < 2 {
		return len(s.patches), nil
	}

	best := -1
	var bestWeight float32
	for _, idx := range indices {
		p, err := s.At(idx)
		if err != nil {
			return 0, fmt.Errorf("patchset: inhibit: %w", err)
		}
		if p.Weight() > bestWeight || best == -1 {
			best = idx
			bestWeight = p.Weight()
		}
	}

	var drop []int
	for _, idx := range indices {
		if idx != best {
			drop = append(drop, idx)
		}
	}
	s.RemoveIndices(drop)
	return len(s.patches), nil
}

// MotionHistory copies up to maxlen past positions (current-first) of the
// patch at index.
func (s *Set) MotionHistory(index int, maxlen int) ([]patch.Point, error) {
	p, err := s.At(index)
	if err != nil {
		return nil, err
	}
	hist := p.History()
	n := len(hist)
	if n > maxlen {
		n = maxlen
	}
	out := make([]patch.Point, n)
	for i := 0; i < n; i++ {
		out[i] = hist[i].Position
	}
	return out, nil
}

// NormalizeWeights rescales every patch's weight so the pool's weights
// sum to 1. A zero total is left untouched.
func (s *Set) NormalizeWeights() {
	var total float64
	for _, p := range s.patches {
		total += float64(p.Weight())
	}
	if total == 0 {
		return
	}
	for _, p := range s.patches {
		p.SetWeight(float32(float64(p.Weight()) / total))
	}
}
