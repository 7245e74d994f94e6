package patchset

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/patch"
)

func solidView(t *testing.T, w, h int) *imageview.View {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	return imageview.New(img)
}

func TestAddIncrementsSizeAndAssignsSequentialIDs(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)

	id0, err := s.Add(v, config.PatchRGB, patch.Point{X: 10, Y: 10}, 1)
	require.NoError(t, err)
	id1, err := s.Add(v, config.PatchRGB, patch.Point{X: 20, Y: 20}, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Size())
	assert.Equal(t, int64(0), id0)
	assert.Equal(t, int64(1), id1)
}

func TestMeanPositionWeightedAndUnweighted(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)

	_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, 1)
	require.NoError(t, err)
	_, err = s.Add(v, config.PatchRGB, patch.Point{X: 10, Y: 0}, 3)
	require.NoError(t, err)

	unweighted := s.MeanPosition(false)
	assert.InDelta(t, 5.0, float64(unweighted.X), 1e-6)

	weighted := s.MeanPosition(true)
	assert.InDelta(t, 7.5, float64(weighted.X), 1e-6)
}

func TestMeanPositionEmptySetIsZero(t *testing.T) {
	s := New(5, patch.DefaultHistoryLimit)
	assert.Equal(t, patch.Point{}, s.MeanPosition(true))
}

func TestPositionCovarianceCollinearPoints(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	for _, x := range []float32{0, 10, 20} {
		_, err := s.Add(v, config.PatchRGB, patch.Point{X: x, Y: 0}, 1)
		require.NoError(t, err)
	}

	cov := s.PositionCovariance(false)
	assert.Greater(t, cov.At(0, 0), 0.0, "variance along x must be positive for spread points")
	assert.InDelta(t, 0, cov.At(1, 1), 1e-9, "all points share y=0, so y-variance is zero")
}

func TestRegionBoundsAllPositions(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	for _, p := range []patch.Point{{X: 5, Y: 5}, {X: 15, Y: 2}, {X: 8, Y: 20}} {
		_, err := s.Add(v, config.PatchRGB, p, 1)
		require.NoError(t, err)
	}

	r := s.Region()
	assert.Equal(t, Rect{X: 5, Y: 2, Width: 10, Height: 18}, r)
}

func TestRegionEmptySetIsZero(t *testing.T) {
	s := New(5, patch.DefaultHistoryLimit)
	assert.Equal(t, Rect{}, s.Region())
}

func TestFilterSelectsMatchingPatchesOnly(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	_, err := s.Add(v, config.PatchRGB, patch.Point{X: 1, Y: 1}, 0.2)
	require.NoError(t, err)
	_, err = s.Add(v, config.PatchRGB, patch.Point{X: 2, Y: 2}, 0.8)
	require.NoError(t, err)

	high := s.Filter(WeightGreaterThan(0.5))
	require.Equal(t, 1, high.Size())
	p, err := high.At(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, float64(p.Weight()), 1e-6)
}

func TestRemoveIndicesDropsOnlyNamedPatches(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	for i := 0; i < 4; i++ {
		_, err := s.Add(v, config.PatchRGB, patch.Point{X: float32(i), Y: 0}, 1)
		require.NoError(t, err)
	}

	s.RemoveIndices([]int{1, 3})
	require.Equal(t, 2, s.Size())
	p0, _ := s.At(0)
	p1, _ := s.At(1)
	assert.Equal(t, float32(0), p0.Position().X)
	assert.Equal(t, float32(2), p1.Position().X)
}

func TestRemoveWhereReturnsCount(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	for i := 0; i < 3; i++ {
		_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, float32(i))
		require.NoError(t, err)
	}

	n := s.RemoveWhere(WeightLowerThan(2))
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Size())
}

func TestMergeRequiresAtLeastTwoIndices(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, 1)
	require.NoError(t, err)

	n, err := s.Merge(v, []int{0}, config.PatchRGB)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMergeCombinesWeightedPositionAndAverageWeight(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, 1)
	require.NoError(t, err)
	_, err = s.Add(v, config.PatchRGB, patch.Point{X: 10, Y: 0}, 3)
	require.NoError(t, err)

	n, err := s.Merge(v, []int{0, 1}, config.PatchRGB)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	merged, err := s.At(0)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, float64(merged.Position().X), 1e-5)
	assert.InDelta(t, 2.0, float64(merged.Weight()), 1e-5)
}

func TestInhibitKeepsOnlyHighestWeight(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, 0.2)
	require.NoError(t, err)
	_, err = s.Add(v, config.PatchRGB, patch.Point{X: 10, Y: 10}, 0.9)
	require.NoError(t, err)
	_, err = s.Add(v, config.PatchRGB, patch.Point{X: 20, Y: 20}, 0.4)
	require.NoError(t, err)

	n, err := s.Inhibit([]int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	survivor, err := s.At(0)
	require.NoError(t, err)
	assert.Equal(t, patch.Point{X: 10, Y: 10}, survivor.Position())
}

func TestNormalizeWeightsSumToOne(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	for _, w := range []float32{1, 2, 3} {
		_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, w)
		require.NoError(t, err)
	}

	s.NormalizeWeights()

	var total float64
	for _, p := range s.Patches() {
		total += float64(p.Weight())
	}
	assert.InDelta(t, 1.0, total, 1e-6)
}

func TestPushAdvancesEveryPatch(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, 1)
	require.NoError(t, err)
	_, err = s.Add(v, config.PatchRGB, patch.Point{X: 1, Y: 1}, 1)
	require.NoError(t, err)

	s.Push()

	for _, p := range s.Patches() {
		assert.Equal(t, 2, p.Age())
	}
}

func TestMoveTranslatesAllCurrentPositions(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, 1)
	require.NoError(t, err)
	_, err = s.Add(v, config.PatchRGB, patch.Point{X: 5, Y: 5}, 1)
	require.NoError(t, err)

	s.Move(patch.Point{X: 2, Y: 3})

	p0, _ := s.At(0)
	p1, _ := s.At(1)
	assert.Equal(t, patch.Point{X: 2, Y: 3}, p0.Position())
	assert.Equal(t, patch.Point{X: 7, Y: 8}, p1.Position())
}

func TestMotionHistoryRespectsMaxLenAndAge(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, 1)
	require.NoError(t, err)

	p, err := s.At(0)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		p.Push()
		p.SetPosition(patch.Point{X: float32(i), Y: 0})
	}

	hist, err := s.MotionHistory(0, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, patch.Point{X: 3, Y: 0}, hist[0])
	assert.Equal(t, patch.Point{X: 2, Y: 0}, hist[1])
}

func TestSetPatchSizeFlushesExistingPatches(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	_, err := s.Add(v, config.PatchRGB, patch.Point{X: 0, Y: 0}, 1)
	require.NoError(t, err)

	s.SetPatchSize(9)
	assert.Equal(t, 0, s.Size())
	assert.Equal(t, 9, s.PatchSize())
	assert.Equal(t, 4, s.Radius())
}

func TestMoveThenInverseMoveRestoresPositions(t *testing.T) {
	v := solidView(t, 40, 40)
	s := New(5, patch.DefaultHistoryLimit)
	for _, p := range []patch.Point{{X: 3.25, Y: 7.5}, {X: 18, Y: 2.75}} {
		_, err := s.Add(v, config.PatchRGB, p, 1)
		require.NoError(t, err)
	}

	before := make([]patch.Point, s.Size())
	for i, p := range s.Patches() {
		before[i] = p.Position()
	}

	s.Move(patch.Point{X: 4, Y: -6})
	s.Move(patch.Point{X: -4, Y: 6})

	for i, p := range s.Patches() {
		assert.Equal(t, before[i], p.Position(), "integer-offset move then inverse must restore bit-exactly")
	}
}

func TestAtOutOfRangeReturnsError(t *testing.T) {
	s := New(5, patch.DefaultHistoryLimit)
	_, err := s.At(0)
	assert.Error(t, err)
}
