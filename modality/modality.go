// Package modality implements the tracker's multi-cue object-presence
// estimator: an ordered list of cues (3-D colour histogram, convex-hull
// shape, Lucas-Kanade motion consensus, bounding box), each producing a
// per-pixel probability map from one information source, fused by
// pointwise product into the map that drives patch addition. Every cue
// shares the small Cue interface below rather than a class hierarchy,
// the same tagged-dispatch idiom the patch package uses for appearance
// variants.
package modality

import (
	"math"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// Map is a dense per-pixel probability buffer over a rectangular window
// of the full frame. Coordinates passed to At/Set are in full-frame
// pixel space; the window's own origin (X, Y) is carried so cues can be
// built directly from frame-relative computations without a separate
// offset parameter everywhere.
type Map struct {
	X, Y          int
	Width, Height int
	Data          []float64
}

// NewMap allocates a zeroed map covering the window [x,y,w,h) in frame
// coordinates.
func NewMap(x, y, w, h int) *Map {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Map{X: x, Y: y, Width: w, Height: h, Data: make([]float64, w*h)}
}

func (m *Map) index(x, y int) (int, bool) {
	lx, ly := x-m.X, y-m.Y
	if lx < 0 || ly < 0 || lx >= m.Width || ly >= m.Height {
		return 0, false
	}
	return ly*m.Width + lx, true
}

// At returns the value at frame coordinate (x, y), or 0 outside the window.
func (m *Map) At(x, y int) float64 {
	i, ok := m.index(x, y)
	if !ok {
		return 0
	}
	return m.Data[i]
}

// Set overwrites the value at frame coordinate (x, y); out-of-window
// writes are silently dropped.
func (m *Map) Set(x, y int, val float64) {
	if i, ok := m.index(x, y); ok {
		m.Data[i] = val
	}
}

// Fill sets every cell to val.
func (m *Map) Fill(val float64) {
	for i := range m.Data {
		m.Data[i] = val
	}
}

// Sum returns the total over every cell.
func (m *Map) Sum() float64 {
	var s float64
	for _, v := range m.Data {
		s += v
	}
	return s
}

// Max returns the largest cell value (0 for an empty map).
func (m *Map) Max() float64 {
	var mx float64
	for _, v := range m.Data {
		if v > mx {
			mx = v
		}
	}
	return mx
}

// MultiplyInto multiplies every cell of m by the cell at the same index
// of other. Cells are paired by index, not by frame coordinate, so both
// maps must share the same window size and origin — ProductMap only ever
// multiplies maps built over the same window.
func (m *Map) MultiplyInto(other *Map) {
	for i := range m.Data {
		m.Data[i] *= other.Data[i]
	}
}

// Normalize rescales every cell so the map sums to 1. A map whose sum is
// zero or negative is left untouched; callers that need to stop on an
// exhausted map must check Sum() first.
func (m *Map) Normalize() {
	total := m.Sum()
	if total <= 0 {
		return
	}
	for i := range m.Data {
		m.Data[i] /= total
	}
}

// Cue is the behavioural interface every modality implements: refresh
// internal state from the current frame's reliable patches and posted
// bounds, then (if usable) produce a probability map over a requested
// window.
type Cue interface {
	Kind() config.ModalityKind
	Update(v *imageview.View, reliable []*patch.Patch, bounds patchset.Rect)
	Usable() bool
	ProbabilityMap(v *imageview.View, window patchset.Rect) *Map
	Reset()
}

// New constructs the Cue implementation named by kind, configured from
// cfg. ModalityNone returns nil (an empty cueN slot).
func New(kind config.ModalityKind, cfg config.CueConfig) (Cue, error) {
	switch kind {
	case config.ModalityNone:
		return nil, nil
	case config.ModalityColorHistogram:
		return newColorHistogramCue(cfg), nil
	case config.ModalityConvexHull:
		return newConvexHullCue(cfg), nil
	case config.ModalityMotionLK:
		return newMotionLKCue(cfg), nil
	case config.ModalityBoundingBox:
		return newBoundingBoxCue(cfg), nil
	default:
		return nil, errUnknownKind(kind)
	}
}

type errUnknownKind config.ModalityKind

func (e errUnknownKind) Error() string { return "modality: unknown kind" }

// ProductMap computes the pointwise product of every usable cue's
// probability map over window: start uniform, multiply in
// each usable cue, and collapse to all-zero if no cue contributed.
func ProductMap(v *imageview.View, cues []Cue, window patchset.Rect) *Map {
	x, y := int(window.X), int(window.Y)
	w, h := int(window.Width), int(window.Height)
	out := NewMap(x, y, w, h)
	area := float64(w * h)
	if area <= 0 {
		return out
	}
	uniform := 1.0 / area
	out.Fill(uniform)

	contributed := false
	for _, c := range cues {
		if c == nil || !c.Usable() {
			continue
		}
		m := c.ProbabilityMap(v, window)
		if m == nil {
			continue
		}
		out.MultiplyInto(m)
		contributed = true
	}
	if !contributed {
		out.Fill(0)
	}
	return out
}

// SuppressNoise zeroes any cell whose value is below max*threshold
// unless it has at least 5 equally-high neighbours in its 5x5
// neighbourhood, so isolated speckle is removed while plateaus survive.
func SuppressNoise(m *Map, threshold float64) {
	if m.Width == 0 || m.Height == 0 {
		return
	}
	max := m.Max()
	if max <= 0 {
		return
	}
	cutoff := max * threshold
	src := append([]float64(nil), m.Data...)
	get := func(lx, ly int) float64 {
		if lx < 0 || ly < 0 || lx >= m.Width || ly >= m.Height {
			return 0
		}
		return src[ly*m.Width+lx]
	}
	for ly := 0; ly < m.Height; ly++ {
		for lx := 0; lx < m.Width; lx++ {
			v := get(lx, ly)
			if v >= cutoff {
				continue
			}
			count := 0
			for dy := -2; dy <= 2; dy++ {
				for dx := -2; dx <= 2; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					if get(lx+dx, ly+dy) >= cutoff {
						count++
					}
				}
			}
			if count < 5 {
				m.Data[ly*m.Width+lx] = 0
			}
		}
	}
}

// InhibitionMask multiplies m in place by an inverted cone of radius
// around every point in centers, preventing new patches from being
// sampled on top of existing ones.
func InhibitionMask(m *Map, centers []patch.Point, radius float64) {
	if radius <= 0 {
		return
	}
	for ly := 0; ly < m.Height; ly++ {
		fy := float64(m.Y + ly)
		for lx := 0; lx < m.Width; lx++ {
			fx := float64(m.X + lx)
			atten := 1.0
			for _, c := range centers {
				d := math.Hypot(fx-float64(c.X), fy-float64(c.Y))
				if d < radius {
					atten *= d / radius
				}
			}
			m.Data[ly*m.Width+lx] *= atten
		}
	}
}

// SampleInverseCDF draws one (x, y) frame-coordinate sample from m via
// row-CDF-then-column-CDF inverse sampling. m must
// already sum to (approximately) 1; u1/u2 are uniform [0,1) draws
// supplied by the caller's seeded PRNG. ok is false if m is empty.
func SampleInverseCDF(m *Map, u1, u2 float64) (x, y int, value float64, ok bool) {
	if m.Width == 0 || m.Height == 0 {
		return 0, 0, 0, false
	}
	rowSums := make([]float64, m.Height)
	var total float64
	for ly := 0; ly < m.Height; ly++ {
		var s float64
		for lx := 0; lx < m.Width; lx++ {
			s += m.Data[ly*m.Width+lx]
		}
		rowSums[ly] = s
		total += s
	}
	if total <= 0 {
		return 0, 0, 0, false
	}
	target := u1 * total
	var acc float64
	row := m.Height - 1
	for ly := 0; ly < m.Height; ly++ {
		acc += rowSums[ly]
		if target <= acc {
			row = ly
			break
		}
	}
	target = u2 * rowSums[row]
	acc = 0
	col := m.Width - 1
	for lx := 0; lx < m.Width; lx++ {
		acc += m.Data[row*m.Width+lx]
		if target <= acc {
			col = lx
			break
		}
	}
	return m.X + col, m.Y + row, m.Data[row*m.Width+col], true
}
