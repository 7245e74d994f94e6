package tracker

import (
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// Stage names the pipeline points at which the tracker notifies its
// observers, in the fixed per-frame order:
// predict -> global-CE -> local-CE -> reweight -> merge -> remove ->
// modalities.update -> add.
type Stage int

const (
	StageBegin Stage = iota
	StageOptimizationGlobal
	StageOptimizationLocal
	StageUpdateWeights
	StageRemovePatches
	StageUpdateModalities
	StageAddPatches
	StageEnd
)

func (s Stage) String() string {
	switch s {
	case StageBegin:
		return "STAGE_BEGIN"
	case StageOptimizationGlobal:
		return "STAGE_OPTIMIZATION_GLOBAL"
	case StageOptimizationLocal:
		return "STAGE_OPTIMIZATION_LOCAL"
	case StageUpdateWeights:
		return "STAGE_UPDATE_WEIGHTS"
	case StageRemovePatches:
		return "STAGE_REMOVE_PATCHES"
	case StageUpdateModalities:
		return "STAGE_UPDATE_MODALITIES"
	case StageAddPatches:
		return "STAGE_ADD_PATCHES"
	case StageEnd:
		return "STAGE_END"
	default:
		return "STAGE_UNKNOWN"
	}
}

// PatchSnapshot is a read-only copy of one patch's externally visible
// state at the moment a stage event was emitted.
type PatchSnapshot struct {
	ID     int64
	Kind   string
	Pos    patch.Point
	Weight float32
	Active bool
	Age    int
}

// SetSnapshot is a read-only copy of the pool's state, handed to
// observers instead of a reference to the live pool. An observer holding
// a snapshot cannot alias tracker state during stage emission.
type SetSnapshot struct {
	Patches  []PatchSnapshot
	Region   patchset.Rect
	Centroid patch.Point
}

func snapshotOf(ps *patchset.Set) SetSnapshot {
	patches := ps.Patches()
	out := make([]PatchSnapshot, len(patches))
	for i, p := range patches {
		out[i] = PatchSnapshot{
			ID:     p.ID,
			Kind:   p.Kind().String(),
			Pos:    p.Position(),
			Weight: p.Weight(),
			Active: p.Active(),
			Age:    p.Age(),
		}
	}
	return SetSnapshot{Patches: out, Region: ps.Region(), Centroid: ps.MeanPosition(true)}
}

// ReweightEvent carries one patch's {similarity, proximity} scores from
// the reweight stage.
type ReweightEvent struct {
	PatchID    int64
	Similarity float32
	Proximity  float32
}

// Event is delivered to every attached Observer at each pipeline stage.
// Reweights is only populated for StageUpdateWeights.
type Event struct {
	Stage     Stage
	Frame     int
	Patches   SetSnapshot
	Reweights []ReweightEvent
}

// Observer receives stage notifications. Observers must be total: they
// must not panic and must not attempt to mutate tracker state (the
// snapshot they receive is already a disconnected copy, so there is
// nothing live to mutate). No error is ever thrown from within an
// observer notification.
type Observer interface {
	OnStage(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnStage(e Event) { f(e) }
