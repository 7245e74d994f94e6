// Package tracker wires the patch pool, cross-entropy optimiser, Kalman
// predictor and modality cues into the per-frame pipeline:
// predict -> global-CE -> local-CE -> reweight/merge/remove
// -> modalities.update -> sample-add, with typed stage notifications to
// attached observers. Tracker is the module's external surface.
package tracker

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/kalman"
	"github.com/banshee-data/lgt-tracker/modality"
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// StageTiming records one pipeline stage's wall-clock duration for one
// frame. It is informational only and never feeds back into tracking
// decisions, so it does not affect determinism.
type StageTiming struct {
	Stage    Stage
	Duration time.Duration
}

// Tracker is one LGT tracking session: one patch pool, one Kalman
// filter, one seeded PRNG, one set of modality cues. No state is shared
// across Tracker instances.
type Tracker struct {
	ID  uuid.UUID
	cfg *config.TuningConfig
	rng *rand.Rand

	patches *patchset.Set
	kalman  *kalman.Filter
	cues    []modality.Cue
	variant config.PatchVariant

	capacity        float64
	lastBounds      patchset.Rect
	medianThreshold float64
	frame           int

	observers  map[int]Observer
	nextObsID  int
	properties map[int32]float32

	lastTimings []StageTiming
}

// New constructs a Tracker from cfg. Unknown tracker/patch/modality
// names fail fast here.
func New(cfg *config.TuningConfig) (*Tracker, error) {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tracker: new: %w", err)
	}
	if name := cfg.GetTrackerType(); name != "lgt" {
		return nil, fmt.Errorf("tracker: new: unknown tracker type %q", name)
	}
	variant, err := config.ParsePatchVariant(cfg.GetPatchType())
	if err != nil {
		return nil, fmt.Errorf("tracker: new: %w", err)
	}

	cues, err := buildCues(cfg)
	if err != nil {
		return nil, fmt.Errorf("tracker: new: %w", err)
	}

	return &Tracker{
		ID:         uuid.New(),
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.GetSeed())),
		cues:       cues,
		variant:    variant,
		observers:  make(map[int]Observer),
		properties: make(map[int32]float32),
	}, nil
}

func buildCues(cfg *config.TuningConfig) ([]modality.Cue, error) {
	cues := make([]modality.Cue, 0, len(cfg.Cues))
	for i, cc := range cfg.Cues {
		kind, err := config.ParseModalityKind(cc.Type)
		if err != nil {
			return nil, fmt.Errorf("cues[%d]: %w", i, err)
		}
		cue, err := modality.New(kind, cc)
		if err != nil {
			return nil, fmt.Errorf("cues[%d]: %w", i, err)
		}
		if cue != nil {
			cues = append(cues, cue)
		}
	}
	return cues, nil
}

// Initialize primes the patch pool with a grid layout over region and
// resets the Kalman filter. Outside initialisation, the filter resets
// itself only when a predict or update step would leave its state
// non-finite. Fails fast on an empty image or a degenerate (width or
// height < 1) region.
func (t *Tracker) Initialize(v *imageview.View, region patchset.Rect) error {
	if v == nil || v.Width() <= 0 || v.Height() <= 0 {
		return fmt.Errorf("tracker: initialize: empty image")
	}
	if region.Width < 1 || region.Height < 1 {
		return fmt.Errorf("tracker: initialize: degenerate region %gx%g", region.Width, region.Height)
	}
	return t.initializeAt(v, region, gridPositions(region, computePatchSize(region, t.cfg.GetPatchScale())))
}

// InitializeSeeded primes the patch pool at an explicit set of caller-
// supplied positions instead of a grid layout.
func (t *Tracker) InitializeSeeded(v *imageview.View, region patchset.Rect, positions []patch.Point) error {
	if v == nil || v.Width() <= 0 || v.Height() <= 0 {
		return fmt.Errorf("tracker: initialize: empty image")
	}
	if len(positions) == 0 {
		return fmt.Errorf("tracker: initialize: no seeded positions")
	}
	return t.initializeAt(v, region, positions)
}

func (t *Tracker) initializeAt(v *imageview.View, region patchset.Rect, positions []patch.Point) error {
	patchSize := computePatchSize(region, t.cfg.GetPatchScale())
	t.patches = patchset.New(patchSize, patch.DefaultHistoryLimit)

	for _, pos := range positions {
		if _, err := t.patches.Add(v, t.variant, pos, 1.0); err != nil {
			return fmt.Errorf("tracker: initialize: %w", err)
		}
	}

	centroid := t.patches.MeanPosition(true)
	t.kalman = kalman.New(kalmanParams(region), float64(centroid.X), float64(centroid.Y))
	t.capacity = float64(t.patches.Size())
	t.lastBounds = t.patches.Region()
	t.medianThreshold = t.cfg.GetMedianThreshold(-1)
	t.frame = 0
	t.lastTimings = nil
	for _, c := range t.cues {
		if c != nil {
			c.Reset()
		}
	}
	return nil
}

// computePatchSize derives the square patch side from the initial
// region's smaller extent and the configured patch.scale multiplier,
// so patch granularity scales with the target rather than the frame.
func computePatchSize(region patchset.Rect, scale float64) int {
	minDim := region.Width
	if region.Height < minDim {
		minDim = region.Height
	}
	size := int(float64(minDim) * scale / 5)
	if size < 4 {
		size = 4
	}
	return size
}

// gridPositions lays out a regular grid of candidate patch centres over
// region, spaced roughly one patchSize apart.
func gridPositions(region patchset.Rect, patchSize int) []patch.Point {
	cols := int(region.Width) / patchSize
	rows := int(region.Height) / patchSize
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	out := make([]patch.Point, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x := region.X + (float32(c)+0.5)*region.Width/float32(cols)
			y := region.Y + (float32(r)+0.5)*region.Height/float32(rows)
			out = append(out, patch.Point{X: x, Y: y})
		}
	}
	return out
}

// kalmanParams scales process/measurement noise by the initial region's
// diagonal: process noise spectral density ~= (0.2*diag*10)^2,
// measurement noise ~= (0.1*diag*10)^2.
func kalmanParams(region patchset.Rect) kalman.Params {
	diag := math.Hypot(float64(region.Width), float64(region.Height))
	p := kalman.DefaultParams()
	p.ProcessNoisePos = math.Pow(0.2*diag*10, 2)
	p.ProcessNoiseVel = math.Pow(0.2*diag*10, 2)
	p.MeasurementNoise = math.Pow(0.1*diag*10, 2)
	return p
}

// Region returns the axis-aligned bounding rectangle of the current
// patch set. A tracker that has emptied (or never been initialised)
// reports the zero rectangle.
func (t *Tracker) Region() patchset.Rect {
	if t.patches == nil {
		return patchset.Rect{}
	}
	return t.patches.Region()
}

// Position returns the weighted centroid of the current patch set.
func (t *Tracker) Position() (x, y float32) {
	if t.patches == nil {
		return 0, 0
	}
	p := t.patches.MeanPosition(true)
	return p.X, p.Y
}

// IsTracking reports whether the patch pool is non-empty.
func (t *Tracker) IsTracking() bool {
	return t.patches != nil && t.patches.Size() > 0
}

// Velocity returns the motion predictor's current velocity estimate in
// pixels per frame.
func (t *Tracker) Velocity() (vx, vy float64) {
	if t.kalman == nil {
		return 0, 0
	}
	return t.kalman.Velocity()
}

// AddObserver registers o to receive stage notifications and returns a
// handle for RemoveObserver.
func (t *Tracker) AddObserver(o Observer) int {
	id := t.nextObsID
	t.nextObsID++
	t.observers[id] = o
	return id
}

// RemoveObserver detaches the observer registered under handle.
func (t *Tracker) RemoveObserver(handle int) {
	delete(t.observers, handle)
}

func (t *Tracker) notify(e Event) {
	handles := make([]int, 0, len(t.observers))
	for id := range t.observers {
		handles = append(handles, id)
	}
	sort.Ints(handles)
	for _, id := range handles {
		t.observers[id].OnStage(e)
	}
}

// SetProperty stores value under the free-form integer-keyed scratch
// map.
func (t *Tracker) SetProperty(code int32, value float32) {
	t.properties[code] = value
}

// GetProperty returns the value stored under code, or (0, false) if unset.
func (t *Tracker) GetProperty(code int32) (float32, bool) {
	v, ok := t.properties[code]
	return v, ok
}

// HasProperty reports whether code has a stored value.
func (t *Tracker) HasProperty(code int32) bool {
	_, ok := t.properties[code]
	return ok
}

// RemoveProperty deletes code from the scratch map.
func (t *Tracker) RemoveProperty(code int32) {
	delete(t.properties, code)
}

// LastStageTimings returns the most recent Update call's per-stage
// wall-clock durations.
func (t *Tracker) LastStageTimings() []StageTiming {
	return t.lastTimings
}
