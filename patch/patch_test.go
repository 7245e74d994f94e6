package patch

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
)

func solidView(t *testing.T, w, h int, c color.Color) *imageview.View {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	nc := color.NRGBAModel.Convert(c).(color.NRGBA)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, nc)
		}
	}
	return imageview.New(img)
}

func checkerView(t *testing.T, w, h, cell int) *imageview.View {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/cell)+(y/cell))%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
			}
		}
	}
	return imageview.New(img)
}

func TestPointArithmetic(t *testing.T) {
	a := Point{X: 3, Y: 4}
	b := Point{X: 1, Y: 1}

	assert.Equal(t, Point{X: 4, Y: 5}, a.Add(b))
	assert.Equal(t, Point{X: 2, Y: 3}, a.Sub(b))
	assert.InDelta(t, 5.0, a.Dist(Point{}), 1e-9)
}

func TestPointFinite(t *testing.T) {
	assert.True(t, Point{X: 1, Y: 2}.Finite())
	assert.False(t, Point{X: float32(math.NaN()), Y: 0}.Finite())
	assert.False(t, Point{X: float32(math.Inf(1)), Y: 0}.Finite())
}

func TestNewSeedsHistoryWithOneActiveState(t *testing.T) {
	v := solidView(t, 20, 20, color.NRGBA{128, 128, 128, 255})
	p, err := New(1, config.PatchRGB, 5, v, Point{X: 10, Y: 10}, 0.5)
	require.NoError(t, err)

	require.Len(t, p.History(), 1)
	assert.Equal(t, 1, p.Age())
	assert.Equal(t, Point{X: 10, Y: 10}, p.Position())
	assert.InDelta(t, 0.5, float64(p.Weight()), 1e-9)
	assert.True(t, p.Active())
}

func TestNewWithLimitClampsToMinHistoryCapacity(t *testing.T) {
	v := solidView(t, 10, 10, color.NRGBA{0, 0, 0, 255})
	p, err := NewWithLimit(1, config.PatchRGB, 3, v, Point{X: 5, Y: 5}, 1, 2)
	require.NoError(t, err)

	for i := 0; i < MinHistoryCapacity+2; i++ {
		p.Push()
	}
	assert.LessOrEqual(t, len(p.History()), MinHistoryCapacity)
}

func TestPushRingBufferDropsOldestAtLimit(t *testing.T) {
	v := solidView(t, 10, 10, color.NRGBA{0, 0, 0, 255})
	p, err := NewWithLimit(1, config.PatchRGB, 3, v, Point{X: 1, Y: 1}, 1, MinHistoryCapacity)
	require.NoError(t, err)

	for i := 0; i < MinHistoryCapacity+5; i++ {
		p.SetPosition(Point{X: float32(i), Y: float32(i)})
		p.Push()
	}

	assert.Equal(t, MinHistoryCapacity, len(p.History()))
	assert.Equal(t, 1+MinHistoryCapacity+5, p.Age())
}

func TestStateAtRespectsAgeGate(t *testing.T) {
	v := solidView(t, 10, 10, color.NRGBA{0, 0, 0, 255})
	p, err := NewWithLimit(1, config.PatchRGB, 3, v, Point{X: 1, Y: 1}, 1, MinHistoryCapacity)
	require.NoError(t, err)

	// Age is 1: only slot 0 should be readable.
	_, ok := p.StateAt(0)
	assert.True(t, ok)
	_, ok = p.StateAt(1)
	assert.False(t, ok, "must not expose history beyond current age")

	p.Push()
	_, ok = p.StateAt(1)
	assert.True(t, ok, "after one push, one frame back is now valid")
	_, ok = p.StateAt(2)
	assert.False(t, ok)
}

func TestMoveTranslatesCurrentPositionOnly(t *testing.T) {
	v := solidView(t, 10, 10, color.NRGBA{0, 0, 0, 255})
	p, err := New(1, config.PatchRGB, 3, v, Point{X: 5, Y: 5}, 1)
	require.NoError(t, err)

	p.Move(Point{X: 2, Y: -1})
	assert.Equal(t, Point{X: 7, Y: 4}, p.Position())
}

func TestPushResetsStatus(t *testing.T) {
	v := solidView(t, 10, 10, color.NRGBA{0, 0, 0, 255})
	p, err := New(1, config.PatchRGB, 3, v, Point{X: 5, Y: 5}, 1)
	require.NoError(t, err)

	p.Status = Status{Fixed: true, Converged: true, Iterations: 7, Value: 0.1}
	p.Push()
	assert.Equal(t, Status{}, p.Status)
}

func TestNewVariantUnknownKind(t *testing.T) {
	_, err := NewVariant(config.PatchVariant(99), 5)
	assert.Error(t, err)
}

func TestRGBVariantResponse(t *testing.T) {
	v := solidView(t, 20, 20, color.NRGBA{10, 20, 30, 255})
	p, err := New(1, config.PatchRGB, 5, v, Point{X: 10, Y: 10}, 1)
	require.NoError(t, err)

	t.Run("identical pixel scores zero", func(t *testing.T) {
		r := p.Response(v, Point{X: 10, Y: 10})
		assert.InDelta(t, 0, r, 1e-6)
	})

	t.Run("out of bounds position saturates", func(t *testing.T) {
		r := p.Response(v, Point{X: -5, Y: -5})
		assert.InDelta(t, float64(rgbOutOfBoundsResponse), float64(r), 1e-6)
	})

	t.Run("differing pixel is proportional to squared delta", func(t *testing.T) {
		v2 := solidView(t, 20, 20, color.NRGBA{70, 20, 30, 255})
		r := p.Response(v2, Point{X: 10, Y: 10})
		want := float32(0.5) * (60 * 60) / rgbLambda
		assert.InDelta(t, float64(want), float64(r), 1e-4)
	})
}

func TestHSVariantCircularHueDifference(t *testing.T) {
	v := solidView(t, 20, 20, color.NRGBA{255, 0, 0, 255}) // pure red, hue ~0
	p, err := New(1, config.PatchHS, 5, v, Point{X: 10, Y: 10}, 1)
	require.NoError(t, err)

	r := p.Response(v, Point{X: 10, Y: 10})
	assert.InDelta(t, 0, r, 1e-4)

	t.Run("out of bounds saturates", func(t *testing.T) {
		r := p.Response(v, Point{X: -1, Y: -1})
		assert.InDelta(t, float64(hsOutOfBoundsResponse), float64(r), 1e-6)
	})
}

func TestHistogramVariantPerfectMatch(t *testing.T) {
	v := checkerView(t, 20, 20, 2)
	p, err := New(1, config.PatchHistogram, 8, v, Point{X: 10, Y: 10}, 1)
	require.NoError(t, err)

	r := p.Response(v, Point{X: 10, Y: 10})
	assert.InDelta(t, 0, r, 1e-9, "identical histogram must score a perfect match")
}

func TestHistogramVariantOutOfBoundsSquareIsTotalMismatch(t *testing.T) {
	v := checkerView(t, 20, 20, 2)
	p, err := New(1, config.PatchHistogram, 8, v, Point{X: 10, Y: 10}, 1)
	require.NoError(t, err)

	r := p.Response(v, Point{X: -1000, Y: -1000})
	assert.InDelta(t, 1, r, 1e-9)
}

func TestSSDVariantIdenticalTemplateScoresZero(t *testing.T) {
	v := checkerView(t, 20, 20, 3)
	p, err := New(1, config.PatchSSD, 6, v, Point{X: 10, Y: 10}, 1)
	require.NoError(t, err)

	r := p.Response(v, Point{X: 10, Y: 10})
	assert.InDelta(t, 0, r, 1e-6)
}

func TestSSDVariantEmptyIntersectionReturnsFloor(t *testing.T) {
	v := checkerView(t, 20, 20, 3)
	p, err := New(1, config.PatchSSD, 6, v, Point{X: 10, Y: 10}, 1)
	require.NoError(t, err)

	r := p.Response(v, Point{X: -1000, Y: -1000})
	assert.InDelta(t, ssdEmptyIntersection, float64(r), 1e-6)
}

func TestSSDVariantResponseIsNeverOutsideRange(t *testing.T) {
	v := checkerView(t, 30, 30, 4)
	p, err := New(1, config.PatchSSD, 8, v, Point{X: 15, Y: 15}, 1)
	require.NoError(t, err)

	positions := []Point{
		{X: 15, Y: 15}, {X: 0, Y: 0}, {X: 29, Y: 29}, {X: -5, Y: 5}, {X: 5, Y: -5},
	}
	for _, pos := range positions {
		r := p.Response(v, pos)
		assert.GreaterOrEqual(t, float64(r), -50.0)
		assert.LessOrEqual(t, float64(r), 0.0)
	}
}

func TestResponsesBatchMatchesIndividualResponse(t *testing.T) {
	v := checkerView(t, 24, 24, 3)
	kinds := []config.PatchVariant{config.PatchHistogram, config.PatchRGB, config.PatchHS, config.PatchSSD}
	positions := []Point{{X: 12, Y: 12}, {X: 5, Y: 5}, {X: 20, Y: 20}, {X: -3, Y: -3}}

	for _, kind := range kinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()
			p, err := New(1, kind, 6, v, Point{X: 12, Y: 12}, 1)
			require.NoError(t, err)

			batch := p.ResponsesBatch(v, positions)
			require.Len(t, batch, len(positions))
			for i, pos := range positions {
				single := p.Response(v, pos)
				assert.InDelta(t, float64(single), float64(batch[i]), 1e-6)
			}
		})
	}
}
