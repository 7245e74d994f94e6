// Package optimize implements the cross-entropy search that drives both
// stages of the tracker's motion estimate each frame: a global affine (or
// pure translation) fit over the whole patch constellation, followed by a
// local per-patch refinement constrained by each patch's Delaunay
// neighbours. Both stages share the same sample-evaluate-select-refit
// shape, parameterised by a Schedule.
package optimize

import "github.com/banshee-data/lgt-tracker/config"

// Schedule carries one cross-entropy stage's sampling and termination
// parameters. Global and local schedules are built from the same
// TuningConfig via GlobalSchedule/LocalSchedule.
type Schedule struct {
	MinSamples int
	MaxSamples int
	AddSamples int
	Elite      int
	Iterations int
	Terminate  float64

	Move   float64 // translation proposal std-dev, pixels
	Rotate float64 // rotation proposal std-dev, radians (global only)
	Scale  float64 // scale proposal std-dev, around 1.0 (global only)

	ClampScale bool

	LambdaGeometry float64 // local only: weight on neighbourhood-suggest distance
	LambdaVisual   float64 // local only: weight on patch response
}

// GlobalSchedule builds the schedule for the whole-constellation affine
// search from cfg.
func GlobalSchedule(cfg *config.TuningConfig) Schedule {
	return Schedule{
		MinSamples: cfg.GetGlobalMinSamples(),
		MaxSamples: cfg.GetGlobalMaxSamples(),
		AddSamples: cfg.GetGlobalAdd(),
		Elite:      cfg.GetGlobalElite(),
		Iterations: cfg.GetGlobalIterations(),
		Terminate:  cfg.GetGlobalTerminate(),
		Move:       cfg.GetGlobalMove(),
		Rotate:     cfg.GetGlobalRotate(),
		Scale:      cfg.GetGlobalScale(),
		ClampScale: cfg.GetGlobalClampScale(),
	}
}

// LocalSchedule builds the schedule for per-patch local refinement from
// cfg.
func LocalSchedule(cfg *config.TuningConfig) Schedule {
	return Schedule{
		MinSamples:     cfg.GetLocalSamples(),
		Elite:          cfg.GetLocalElite(),
		Iterations:     cfg.GetLocalIterations(),
		Terminate:      cfg.GetLocalTerminate(),
		Move:           cfg.GetLocalMove(),
		LambdaGeometry: cfg.GetOptimizationGeometry(),
		LambdaVisual:   cfg.GetOptimizationVisual(),
	}
}
