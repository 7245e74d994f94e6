// Package patch implements the local appearance model attached to one
// point of the tracked constellation: a bounded state history, an age
// counter, and one of four pluggable visual-model variants (histogram,
// RGB pixel, HS pixel, SSD template). Variants are a tagged union behind
// a shared Variant interface rather than a class hierarchy — there is no
// inheritance here, only dispatch on the Kind a Patch was constructed
// with.
package patch

import (
	"fmt"
	"math"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
)

// MinHistoryCapacity and DefaultHistoryLimit bound the per-patch state
// ring buffer, per the data model: capacity >= 6, hard limit typically 30.
const (
	MinHistoryCapacity  = 6
	DefaultHistoryLimit = 30
)

// Point is a 2-D image-plane position.
type Point struct {
	X, Y float32
}

// Add returns p translated by d.
func (p Point) Add(d Point) Point { return Point{p.X + d.X, p.Y + d.Y} }

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	dx := float64(p.X - q.X)
	dy := float64(p.Y - q.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Finite reports whether neither coordinate is NaN or infinite, per the
// "no patch position is ever NaN or infinite" invariant.
func (p Point) Finite() bool {
	return !math.IsNaN(float64(p.X)) && !math.IsInf(float64(p.X), 0) &&
		!math.IsNaN(float64(p.Y)) && !math.IsInf(float64(p.Y), 0)
}

// State is one slot of a patch's ring buffer: its position, weight and
// active flag at some past (or current) frame.
type State struct {
	Position Point
	Weight   float32
	Active   bool
}

// Optimisation-stage flags, kept as named booleans rather than a packed
// bitmask.
type Status struct {
	Fixed      bool // skipped by local refinement when set before entry
	Converged  bool
	Iterations int
	Value      float32 // exp(-response) at the final accepted position
}

// Variant is the behavioural interface every appearance-model kind
// implements: initialise from an image, and score a candidate position.
// responsesBatch lets the optimiser amortise per-sample setup (e.g.
// fetching the grey Mat once) across many candidate points.
type Variant interface {
	Kind() config.PatchVariant
	Initialize(v *imageview.View, pos Point)
	Response(v *imageview.View, pos Point) float32
	ResponsesBatch(v *imageview.View, positions []Point) []float32
}

// NewVariant constructs the zero-value Variant implementation for kind;
// callers must still call Initialize before the first Response.
func NewVariant(kind config.PatchVariant, size int) (Variant, error) {
	switch kind {
	case config.PatchHistogram:
		return &histogramVariant{size: size}, nil
	case config.PatchRGB:
		return &rgbVariant{}, nil
	case config.PatchHS:
		return &hsVariant{}, nil
	case config.PatchSSD:
		return &ssdVariant{size: size}, nil
	default:
		return nil, fmt.Errorf("patch: unknown variant kind %v", kind)
	}
}

// Patch is a single local appearance model: a square of side Size pixels
// centred on the current position, with a bounded state history and a
// monotonically non-decreasing age.
type Patch struct {
	ID    int64
	Size  int
	kind  config.PatchVariant
	model Variant

	// history[0] is "current"; history[k] is k frames back. Capacity is
	// fixed at construction (MinHistoryCapacity..limit).
	history []State
	limit   int
	age     int

	// Status carries the outcome of the current frame's optimisation
	// stage; it is reset at the start of each frame's optimise pass.
	Status Status
}

// New creates a patch of the given variant, initialises its appearance
// model from image at pos, and seeds its history with one active state of
// the given weight. size is the square side in pixels and is fixed for
// the lifetime of the patch.
func New(id int64, kind config.PatchVariant, size int, v *imageview.View, pos Point, weight float32) (*Patch, error) {
	return NewWithLimit(id, kind, size, v, pos, weight, DefaultHistoryLimit)
}

// NewWithLimit is New with an explicit ring-buffer hard limit (must be >=
// MinHistoryCapacity).
func NewWithLimit(id int64, kind config.PatchVariant, size int, v *imageview.View, pos Point, weight float32, limit int) (*Patch, error) {
	if limit < MinHistoryCapacity {
		limit = MinHistoryCapacity
	}
	model, err := NewVariant(kind, size)
	if err != nil {
		return nil, err
	}
	model.Initialize(v, pos)
	p := &Patch{
		ID:      id,
		Size:    size,
		kind:    kind,
		model:   model,
		history: make([]State, 0, limit),
		limit:   limit,
		age:     1,
	}
	p.history = append(p.history, State{Position: pos, Weight: weight, Active: true})
	return p, nil
}

// Kind reports the patch's fixed variant.
func (p *Patch) Kind() config.PatchVariant { return p.kind }

// Age reports how many frames this patch has existed (non-decreasing).
func (p *Patch) Age() int { return p.age }

// Position returns the current ("index 0") position.
func (p *Patch) Position() Point { return p.history[0].Position }

// Weight returns the current weight.
func (p *Patch) Weight() float32 { return p.history[0].Weight }

// Active reports the current active flag.
func (p *Patch) Active() bool { return p.history[0].Active }

// SetPosition overwrites the current slot's position.
func (p *Patch) SetPosition(pos Point) { p.history[0].Position = pos }

// SetWeight overwrites the current slot's weight.
func (p *Patch) SetWeight(w float32) { p.history[0].Weight = w }

// SetActive overwrites the current slot's active flag.
func (p *Patch) SetActive(a bool) { p.history[0].Active = a }

// Move translates the current position by delta.
func (p *Patch) Move(delta Point) {
	p.history[0].Position = p.history[0].Position.Add(delta)
}

// StateAt returns the state k frames back (0 = current). ok is false when
// k exceeds the recorded history OR k >= Age, per the invariant that
// modalities never read state beyond index step-1 without checking
// get_age >= step first.
func (p *Patch) StateAt(k int) (State, bool) {
	if k < 0 || k >= len(p.history) || k >= p.age {
		return State{}, false
	}
	return p.history[k], true
}

// History returns the full ring buffer, current-first. Callers must treat
// it as read-only.
func (p *Patch) History() []State { return p.history }

// Push duplicates the current ("index 0") state into a new index-0 slot
// and increments age, ready for that frame's pipeline to mutate it. When
// the buffer is at its hard limit the oldest slot is dropped.
func (p *Patch) Push() {
	cur := p.history[0]
	if len(p.history) >= p.limit {
		copy(p.history[1:], p.history[:len(p.history)-1])
		p.history[0] = cur
	} else {
		p.history = append(p.history, State{})
		copy(p.history[1:], p.history[:len(p.history)-1])
		p.history[0] = cur
	}
	p.age++
	p.Status = Status{}
}

// Initialize re-runs the appearance model's Initialize at the current
// position, discarding any previously learned appearance. Used by merge,
// which "re-initialises the merged patch's appearance from the current
// image (no averaging of appearance models)".
func (p *Patch) Initialize(v *imageview.View) {
	p.model.Initialize(v, p.Position())
}

// Response scores how well pos matches this patch's stored appearance
// model in the given image; lower is more similar.
func (p *Patch) Response(v *imageview.View, pos Point) float32 {
	return p.model.Response(v, pos)
}

// ResponsesBatch scores many candidate positions against this patch's
// stored model in one call, amortising per-call setup.
func (p *Patch) ResponsesBatch(v *imageview.View, positions []Point) []float32 {
	return p.model.ResponsesBatch(v, positions)
}
