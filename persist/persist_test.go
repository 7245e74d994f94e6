package persist

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/patchset"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lgt.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadConfigRoundTrips(t *testing.T) {
	s := openTestStore(t)

	cfg := config.EmptyTuningConfig()
	cfg.PoolMax = intPtr(40)
	cfg.RemoveWeight = floatPtr(0.05)
	cfg.PatchType = strPtr("histogram")

	require.NoError(t, s.SaveConfig("run-1", cfg, 42))

	got, seed, err := s.LoadConfig("run-1")
	require.NoError(t, err)
	require.Equal(t, int64(42), seed)

	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("config round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigUnknownRunErrors(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.LoadConfig("does-not-exist")
	require.Error(t, err)
}

func TestRecordAndFetchFrameOutputs(t *testing.T) {
	s := openTestStore(t)
	cfg := config.EmptyTuningConfig()
	require.NoError(t, s.SaveConfig("run-2", cfg, 0))

	require.NoError(t, s.RecordFrame("run-2", 0, patchset.Rect{X: 10, Y: 20, Width: 40, Height: 40}, true))
	require.NoError(t, s.RecordFrame("run-2", 1, patchset.Rect{}, false))

	outs, err := s.FrameOutputs("run-2")
	require.NoError(t, err)
	require.Len(t, outs, 2)
	require.Equal(t, 0, outs[0].Frame)
	require.True(t, outs[0].IsTracking)
	require.Equal(t, float32(10), outs[0].Rect.X)
	require.False(t, outs[1].IsTracking)
}

func TestFormatLine(t *testing.T) {
	require.Equal(t, "10,20,40,40", FormatLine(patchset.Rect{X: 10, Y: 20, Width: 40, Height: 40}, true))
	require.Equal(t, "0,0,0,0", FormatLine(patchset.Rect{X: 10, Y: 20, Width: 40, Height: 40}, false))
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }
