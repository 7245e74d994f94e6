package observerstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/tracker"
)

func TestEventToStructCarriesStageAndPatches(t *testing.T) {
	e := tracker.Event{
		Stage: tracker.StageEnd,
		Frame: 7,
		Patches: tracker.SetSnapshot{
			Patches: []tracker.PatchSnapshot{
				{ID: 3, Kind: "histogram", Pos: patch.Point{X: 10, Y: 20}, Weight: 0.5, Active: true, Age: 4},
			},
			Centroid: patch.Point{X: 10, Y: 20},
		},
	}

	msg, err := eventToStruct(e)
	require.NoError(t, err)

	fields := msg.GetFields()
	assert.Equal(t, "STAGE_END", fields["stage"].GetStringValue())
	assert.Equal(t, 7.0, fields["frame"].GetNumberValue())

	patches := fields["patches"].GetListValue().GetValues()
	require.Len(t, patches, 1)
	p := patches[0].GetStructValue().GetFields()
	assert.Equal(t, 3.0, p["id"].GetNumberValue())
	assert.Equal(t, "histogram", p["kind"].GetStringValue())
	assert.True(t, p["active"].GetBoolValue())
}

func TestOnStageBeforeStartIsDropped(t *testing.T) {
	p := NewPublisher(DefaultConfig())
	p.OnStage(tracker.Event{Stage: tracker.StageBegin})
	assert.Empty(t, p.eventCh)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	p := NewPublisher(DefaultConfig())
	id, ch := p.subscribe()
	require.NotNil(t, ch)
	p.unsubscribe(id)

	_, open := <-ch
	assert.False(t, open, "unsubscribe must close the client channel")
}
