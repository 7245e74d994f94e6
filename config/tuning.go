// Package config loads the tuning surface the LGT core reads: tracker
// construction options, pool/patch/optimisation/modality parameters. The
// schema covers the full key surface the tracker reads; unknown keys
// in a JSON document are passed through untouched by encoding/json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tracker.defaults.json"

// CueConfig configures a single modality ("cue") slot. Type selects which
// cue implementation is constructed; the remaining fields are the union of
// per-cue parameters, only some of which apply to a given Type.
type CueConfig struct {
	Type string `json:"type"` // colorhist | convex | motionlk | bounding | none

	// colorhist
	ColorSpace       *string  `json:"color_space,omitempty"`       // hsv | rgb | ycrcb
	HistBins         *int     `json:"hist_bins,omitempty"`         // per-axis bin count, default 8
	FGPersistence    *float64 `json:"fg_persistence,omitempty"`    // foreground histogram EMA
	BGPersistence    *float64 `json:"bg_persistence,omitempty"`    // background histogram EMA
	ForegroundSize   *float64 `json:"foreground_size,omitempty"`   // multiple of patch radius sampled as FG
	BackgroundMargin *int     `json:"background_margin,omitempty"` // gap between bounds and BG ring, pixels
	BackgroundSize   *int     `json:"background_size,omitempty"`   // BG ring thickness, pixels

	// convex
	Margin          *float64 `json:"margin,omitempty"`          // dilation radius, pixels
	MarginDiminish  *float64 `json:"margin_diminish,omitempty"` // outer-ring softness
	HullPersistence *float64 `json:"hull_persistence,omitempty"`

	// motionlk
	Damping           *float64 `json:"damping,omitempty"`            // motion-consensus exp damping
	MotionPersistence *float64 `json:"motion_persistence,omitempty"` // accumulation map decay

	// bounding
	Expand *float64 `json:"expand,omitempty"` // bbox expansion, pixels
}

// --- CueConfig accessors with compiled-in colorhist/convex/motionlk/
// bounding defaults. ---

func (c CueConfig) GetColorSpace() string {
	if c.ColorSpace == nil {
		return "hsv"
	}
	return *c.ColorSpace
}

func (c CueConfig) GetHistBins() int {
	if c.HistBins == nil {
		return 8
	}
	return *c.HistBins
}

func (c CueConfig) GetFGPersistence() float64 {
	if c.FGPersistence == nil {
		return 0.9
	}
	return *c.FGPersistence
}

func (c CueConfig) GetBGPersistence() float64 {
	if c.BGPersistence == nil {
		return 0.9
	}
	return *c.BGPersistence
}

func (c CueConfig) GetForegroundSize() float64 {
	if c.ForegroundSize == nil {
		return 1.0
	}
	return *c.ForegroundSize
}

func (c CueConfig) GetBackgroundMargin() int {
	if c.BackgroundMargin == nil {
		return 5
	}
	return *c.BackgroundMargin
}

func (c CueConfig) GetBackgroundSize() int {
	if c.BackgroundSize == nil {
		return 20
	}
	return *c.BackgroundSize
}

func (c CueConfig) GetMargin() float64 {
	if c.Margin == nil {
		return 10
	}
	return *c.Margin
}

func (c CueConfig) GetMarginDiminish() float64 {
	if c.MarginDiminish == nil {
		return 0.3
	}
	return *c.MarginDiminish
}

func (c CueConfig) GetHullPersistence() float64 {
	if c.HullPersistence == nil {
		return 0.5
	}
	return *c.HullPersistence
}

func (c CueConfig) GetDamping() float64 {
	if c.Damping == nil {
		return 100
	}
	return *c.Damping
}

func (c CueConfig) GetMotionPersistence() float64 {
	if c.MotionPersistence == nil {
		return 0.5
	}
	return *c.MotionPersistence
}

func (c CueConfig) GetExpand() float64 {
	if c.Expand == nil {
		return 0
	}
	return *c.Expand
}

// TuningConfig is the root configuration for the LGT tracker. All fields
// are pointers so that a partial JSON document overrides only the keys it
// names; the Get* accessors supply the default for every field left nil.
type TuningConfig struct {
	// tracker
	TrackerType *string `json:"tracker,omitempty"`

	// sampling.*
	SamplingSize      *int     `json:"sampling_size,omitempty"`
	SamplingThreshold *float64 `json:"sampling_threshold,omitempty"`
	SamplingMask      *float64 `json:"sampling_mask,omitempty"`

	// filter.*: reliable-patch predicate feeding modality updates
	FilterWeight *float64 `json:"filter_weight,omitempty"`
	FilterAge    *int     `json:"filter_age,omitempty"`

	// modality.*

	// pool.*
	PoolMax         *int     `json:"pool_max,omitempty"`
	PoolMin         *int     `json:"pool_min,omitempty"`
	PoolPersistence *float64 `json:"pool_persistence,omitempty"`

	// patch.*
	PatchType  *string  `json:"patch_type,omitempty"`
	PatchScale *float64 `json:"patch_scale,omitempty"`

	// reweight.*
	ReweightPersistence *float64 `json:"reweight_persistence,omitempty"`
	ReweightSimilarity  *float64 `json:"reweight_similarity,omitempty"`
	ReweightDistance    *float64 `json:"reweight_distance,omitempty"`

	// remove.*
	RemoveWeight *float64 `json:"remove_weight,omitempty"`

	// merge.*
	MergeDistance *float64 `json:"merge_distance,omitempty"`

	// optimization.{geometry,visual}
	OptimizationGeometry *float64 `json:"optimization_geometry,omitempty"`
	OptimizationVisual   *float64 `json:"optimization_visual,omitempty"`

	// optimization.global.*
	GlobalMove       *float64 `json:"optimization_global_move,omitempty"`
	GlobalRotate     *float64 `json:"optimization_global_rotate,omitempty"`
	GlobalScale      *float64 `json:"optimization_global_scale,omitempty"`
	GlobalMinSamples *int     `json:"optimization_global_minsamples,omitempty"`
	GlobalMaxSamples *int     `json:"optimization_global_maxsamples,omitempty"`
	GlobalAdd        *int     `json:"optimization_global_add,omitempty"`
	GlobalElite      *int     `json:"optimization_global_elite,omitempty"`
	GlobalIterations *int     `json:"optimization_global_iterations,omitempty"`
	GlobalTerminate  *float64 `json:"optimization_global_terminate,omitempty"`
	// GlobalClampScale gates the affine scale clamp. Nil defaults to
	// "clamp iff size constraints are set".
	GlobalClampScale *bool `json:"optimization_global_clampscale,omitempty"`

	// optimization.local.*
	LocalSamples    *int     `json:"optimization_local_samples,omitempty"`
	LocalElite      *int     `json:"optimization_local_elite,omitempty"`
	LocalIterations *int     `json:"optimization_local_iterations,omitempty"`
	LocalMove       *float64 `json:"optimization_local_move,omitempty"`
	LocalTerminate  *float64 `json:"optimization_local_terminate,omitempty"`

	// size, size.{min,max}.{width,height}
	MedianThreshold   *int     `json:"size,omitempty"`
	MedianPersistence *float64 `json:"size_persistence,omitempty"`
	MinWidth          *int     `json:"size_min_width,omitempty"`
	MinHeight         *int     `json:"size_min_height,omitempty"`
	MaxWidth          *int     `json:"size_max_width,omitempty"`
	MaxHeight         *int     `json:"size_max_height,omitempty"`

	// cueN = {colorhist,convex,motionlk,bounding,none}; per-cue keys under cueN.*
	Cues []CueConfig `json:"cues,omitempty"`

	// seed for the single per-tracker PRNG
	Seed *int64 `json:"seed,omitempty"`
}

// Pointer helpers for optional fields.
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their default values via the Get* accessors, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching from the current directory up to common
// repository-root depths. Panics if the file cannot be found — intended
// for tests and binaries that have already validated config availability.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks internal consistency of set fields. Unset (nil) fields
// are always valid since they fall back to a known-good default.
func (c *TuningConfig) Validate() error {
	if c.SamplingThreshold != nil && (*c.SamplingThreshold < 0 || *c.SamplingThreshold > 1) {
		return fmt.Errorf("sampling_threshold must be between 0 and 1, got %f", *c.SamplingThreshold)
	}
	if c.PoolMin != nil && c.PoolMax != nil && *c.PoolMin > *c.PoolMax {
		return fmt.Errorf("pool_min (%d) must not exceed pool_max (%d)", *c.PoolMin, *c.PoolMax)
	}
	if c.PoolPersistence != nil && (*c.PoolPersistence < 0 || *c.PoolPersistence > 1) {
		return fmt.Errorf("pool_persistence must be between 0 and 1, got %f", *c.PoolPersistence)
	}
	if c.ReweightPersistence != nil && (*c.ReweightPersistence < 0 || *c.ReweightPersistence > 1) {
		return fmt.Errorf("reweight_persistence must be between 0 and 1, got %f", *c.ReweightPersistence)
	}
	for i, cue := range c.Cues {
		if _, err := ParseModalityKind(cue.Type); err != nil {
			return fmt.Errorf("cues[%d]: %w", i, err)
		}
	}
	if c.PatchType != nil {
		if _, err := ParsePatchVariant(*c.PatchType); err != nil {
			return err
		}
	}
	return nil
}

// --- Accessors; every default below is the compiled-in baseline an
// absent key resolves to. ---

func (c *TuningConfig) GetTrackerType() string {
	if c.TrackerType == nil {
		return "lgt"
	}
	return *c.TrackerType
}

func (c *TuningConfig) GetSamplingSize() int {
	if c.SamplingSize == nil {
		return 100
	}
	return *c.SamplingSize
}

func (c *TuningConfig) GetSamplingThreshold() float64 {
	if c.SamplingThreshold == nil {
		return 0.2
	}
	return *c.SamplingThreshold
}

func (c *TuningConfig) GetSamplingMask() float64 {
	if c.SamplingMask == nil {
		return 3
	}
	return *c.SamplingMask
}

func (c *TuningConfig) GetFilterWeight() float64 {
	if c.FilterWeight == nil {
		return 0.1
	}
	return *c.FilterWeight
}

func (c *TuningConfig) GetFilterAge() int {
	if c.FilterAge == nil {
		return 2
	}
	return *c.FilterAge
}

func (c *TuningConfig) GetPoolMax() int {
	if c.PoolMax == nil {
		return 50
	}
	return *c.PoolMax
}

func (c *TuningConfig) GetPoolMin() int {
	if c.PoolMin == nil {
		return 10
	}
	return *c.PoolMin
}

func (c *TuningConfig) GetPoolPersistence() float64 {
	if c.PoolPersistence == nil {
		return 0.8
	}
	return *c.PoolPersistence
}

func (c *TuningConfig) GetPatchType() string {
	if c.PatchType == nil {
		return "histogram"
	}
	return *c.PatchType
}

func (c *TuningConfig) GetPatchScale() float64 {
	if c.PatchScale == nil {
		return 1.0
	}
	return *c.PatchScale
}

func (c *TuningConfig) GetReweightPersistence() float64 {
	if c.ReweightPersistence == nil {
		return 0.5
	}
	return *c.ReweightPersistence
}

func (c *TuningConfig) GetReweightSimilarity() float64 {
	if c.ReweightSimilarity == nil {
		return 3
	}
	return *c.ReweightSimilarity
}

func (c *TuningConfig) GetReweightDistance() float64 {
	if c.ReweightDistance == nil {
		return 3
	}
	return *c.ReweightDistance
}

func (c *TuningConfig) GetRemoveWeight() float64 {
	if c.RemoveWeight == nil {
		return 0.1
	}
	return *c.RemoveWeight
}

func (c *TuningConfig) GetMergeDistance() float64 {
	if c.MergeDistance == nil {
		return 1.0
	}
	return *c.MergeDistance
}

func (c *TuningConfig) GetOptimizationGeometry() float64 {
	if c.OptimizationGeometry == nil {
		return 1.0
	}
	return *c.OptimizationGeometry
}

func (c *TuningConfig) GetOptimizationVisual() float64 {
	if c.OptimizationVisual == nil {
		return 1.0
	}
	return *c.OptimizationVisual
}

func (c *TuningConfig) GetGlobalMove() float64 {
	if c.GlobalMove == nil {
		return 20
	}
	return *c.GlobalMove
}

func (c *TuningConfig) GetGlobalRotate() float64 {
	if c.GlobalRotate == nil {
		return 0.08
	}
	return *c.GlobalRotate
}

func (c *TuningConfig) GetGlobalScale() float64 {
	if c.GlobalScale == nil {
		return 0.001
	}
	return *c.GlobalScale
}

func (c *TuningConfig) GetGlobalMinSamples() int {
	if c.GlobalMinSamples == nil {
		return 100
	}
	return *c.GlobalMinSamples
}

func (c *TuningConfig) GetGlobalMaxSamples() int {
	if c.GlobalMaxSamples == nil {
		return 300
	}
	return *c.GlobalMaxSamples
}

func (c *TuningConfig) GetGlobalAdd() int {
	if c.GlobalAdd == nil {
		return 10
	}
	return *c.GlobalAdd
}

func (c *TuningConfig) GetGlobalElite() int {
	if c.GlobalElite == nil {
		return 10
	}
	return *c.GlobalElite
}

func (c *TuningConfig) GetGlobalIterations() int {
	if c.GlobalIterations == nil {
		return 10
	}
	return *c.GlobalIterations
}

func (c *TuningConfig) GetGlobalTerminate() float64 {
	if c.GlobalTerminate == nil {
		return 0.1
	}
	return *c.GlobalTerminate
}

// GetGlobalClampScale resolves the open question about affine scale
// clamping: clamp whenever it is explicitly requested, or implicitly when
// size constraints are configured.
func (c *TuningConfig) GetGlobalClampScale() bool {
	if c.GlobalClampScale != nil {
		return *c.GlobalClampScale
	}
	return c.MinWidth != nil || c.MinHeight != nil || c.MaxWidth != nil || c.MaxHeight != nil
}

func (c *TuningConfig) GetLocalSamples() int {
	if c.LocalSamples == nil {
		return 40
	}
	return *c.LocalSamples
}

func (c *TuningConfig) GetLocalElite() int {
	if c.LocalElite == nil {
		return 5
	}
	return *c.LocalElite
}

func (c *TuningConfig) GetLocalIterations() int {
	if c.LocalIterations == nil {
		return 10
	}
	return *c.LocalIterations
}

func (c *TuningConfig) GetLocalMove() float64 {
	if c.LocalMove == nil {
		return 5
	}
	return *c.LocalMove
}

func (c *TuningConfig) GetLocalTerminate() float64 {
	if c.LocalTerminate == nil {
		return 0.001
	}
	return *c.LocalTerminate
}

// GetMedianThreshold returns the proximity-score midpoint: the configured
// "size" key when present (default 50), falling back to a
// k-nearest-neighbour-distance estimate only when the caller has no
// configured value at all and passes knnFallback >= 0.
func (c *TuningConfig) GetMedianThreshold(knnFallback float64) float64 {
	if c.MedianThreshold != nil {
		return float64(*c.MedianThreshold)
	}
	if knnFallback >= 0 {
		return knnFallback
	}
	return 50
}

func (c *TuningConfig) GetMedianPersistence() float64 {
	if c.MedianPersistence == nil {
		return 0.8
	}
	return *c.MedianPersistence
}

func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// SizeConstraints holds hard pixel bounds on the affine-optimised
// patch-set bounding box. A bound of -1 means "unconstrained" for that
// axis.
type SizeConstraints struct {
	MinWidth, MinHeight int
	MaxWidth, MaxHeight int
}

// HasConstraints reports whether any bound is actually set.
func (s SizeConstraints) HasConstraints() bool {
	return s.MinWidth > 0 || s.MinHeight > 0 || s.MaxWidth > 0 || s.MaxHeight > 0
}

func (c *TuningConfig) GetSizeConstraints() SizeConstraints {
	get := func(p *int) int {
		if p == nil {
			return -1
		}
		return *p
	}
	return SizeConstraints{
		MinWidth:  get(c.MinWidth),
		MinHeight: get(c.MinHeight),
		MaxWidth:  get(c.MaxWidth),
		MaxHeight: get(c.MaxHeight),
	}
}
