package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	require.NotNil(t, cfg.SamplingSize)
	require.NotNil(t, cfg.PoolMax)
	require.NotNil(t, cfg.PoolMin)
	require.Len(t, cfg.Cues, 4)

	assert.Equal(t, "lgt", cfg.GetTrackerType())
	assert.Equal(t, 100, cfg.GetSamplingSize())
	assert.InDelta(t, 0.2, cfg.GetSamplingThreshold(), 1e-9)
	assert.Equal(t, 50, cfg.GetPoolMax())
	assert.Equal(t, 10, cfg.GetPoolMin())
	assert.Equal(t, "histogram", cfg.GetPatchType())
}

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	assert.Equal(t, "lgt", cfg.GetTrackerType())
	assert.Equal(t, 50, cfg.GetPoolMax())
	assert.Equal(t, 10, cfg.GetPoolMin())
	assert.InDelta(t, 0.8, cfg.GetPoolPersistence(), 1e-9)
	assert.InDelta(t, 0.1, cfg.GetRemoveWeight(), 1e-9)
	assert.InDelta(t, 50.0, cfg.GetMedianThreshold(-1), 1e-9)
	assert.InDelta(t, 12.0, cfg.GetMedianThreshold(12.0), 1e-9, "nil MedianThreshold should fall back to the knn estimate when supplied")
	assert.False(t, cfg.GetGlobalClampScale())
}

func TestGlobalClampScaleImpliedBySizeConstraints(t *testing.T) {
	cfg := EmptyTuningConfig()
	cfg.MaxWidth = ptrInt(200)

	assert.True(t, cfg.GetGlobalClampScale(), "clamp should be implied once a size bound is configured")
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	cfg := EmptyTuningConfig()
	cfg.SamplingThreshold = ptrFloat64(1.5)
	require.Error(t, cfg.Validate())

	cfg2 := EmptyTuningConfig()
	cfg2.PoolMin = ptrInt(40)
	cfg2.PoolMax = ptrInt(10)
	require.Error(t, cfg2.Validate())
}

func TestValidateRejectsUnknownPatchType(t *testing.T) {
	cfg := EmptyTuningConfig()
	cfg.PatchType = ptrString("wavelet")
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownCue(t *testing.T) {
	cfg := EmptyTuningConfig()
	cfg.Cues = []CueConfig{{Type: "optical-flow-v9"}}
	require.Error(t, cfg.Validate())
}

func TestParsePatchVariant(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want PatchVariant
	}{
		{"histogram", PatchHistogram},
		{"rgb", PatchRGB},
		{"hs", PatchHS},
		{"ssd", PatchSSD},
	} {
		got, err := ParsePatchVariant(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParsePatchVariant("bogus")
	assert.Error(t, err)
}

func TestParseModalityKind(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want ModalityKind
	}{
		{"", ModalityNone},
		{"none", ModalityNone},
		{"colorhist", ModalityColorHistogram},
		{"convex", ModalityConvexHull},
		{"motionlk", ModalityMotionLK},
		{"bounding", ModalityBoundingBox},
	} {
		got, err := ParseModalityKind(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseModalityKind("bogus")
	assert.Error(t, err)
}
