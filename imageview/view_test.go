package imageview

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkerboard(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/8+y/8)%2 == 0 {
				img.Set(x, y, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{R: 20, G: 20, B: 200, A: 255})
			}
		}
	}
	return img
}

func TestGetCachesPerFrame(t *testing.T) {
	v := New(checkerboard(32, 32))

	m1, err := v.Get(FormatGrey)
	require.NoError(t, err)
	m2, err := v.Get(FormatGrey)
	require.NoError(t, err)

	assert.Same(t, m1, m2, "second Get for the same format must return the cached Mat")
}

func TestSubViewSharesParentCache(t *testing.T) {
	v := New(checkerboard(32, 32))
	sub := v.Sub(image.Rect(8, 8, 20, 20))

	assert.Equal(t, 8, sub.OffsetX)
	assert.Equal(t, 8, sub.OffsetY)
	assert.Equal(t, 12, sub.Width())
	assert.Equal(t, 12, sub.Height())

	full, err := v.Get(FormatRGB)
	require.NoError(t, err)
	cropped, err := sub.Get(FormatRGB)
	require.NoError(t, err)

	assert.Equal(t, full.At(8, 8), cropped.At(0, 0))
	assert.Len(t, v.cache, 1, "Sub must not trigger eager conversion of formats never requested")
}

func TestSubViewClampsToParentBounds(t *testing.T) {
	v := New(checkerboard(16, 16))
	sub := v.Sub(image.Rect(10, 10, 30, 30))

	assert.Equal(t, 6, sub.Width())
	assert.Equal(t, 6, sub.Height())
}

func TestOutOfBoundsAtReturnsZeroPixel(t *testing.T) {
	v := New(checkerboard(16, 16))
	m, err := v.Get(FormatGrey)
	require.NoError(t, err)

	px := m.At(-5, 5)
	assert.Equal(t, []uint8{0}, px)

	px2 := m.At(100, 100)
	assert.Equal(t, []uint8{0}, px2)
}

func TestHSVRoundTripsPureColors(t *testing.T) {
	h, s, val := rgbToHSV(1, 0, 0)
	assert.InDelta(t, 0.0, h, 1e-9)
	assert.InDelta(t, 1.0, s, 1e-9)
	assert.InDelta(t, 1.0, val, 1e-9)

	h2, s2, _ := rgbToHSV(0, 0, 0)
	assert.Equal(t, 0.0, h2)
	assert.Equal(t, 0.0, s2)
}

func TestAllFormatsProduceExpectedShape(t *testing.T) {
	v := New(checkerboard(20, 10))
	for _, f := range []Format{FormatGrey, FormatRGB, FormatHSV, FormatYCrCb} {
		m, err := v.Get(f)
		require.NoError(t, err)
		assert.Equal(t, 20, m.Width)
		assert.Equal(t, 10, m.Height)
		if f == FormatGrey {
			assert.Equal(t, 1, m.Channels)
		} else {
			assert.Equal(t, 3, m.Channels)
		}
	}
}

func TestScratchMaskSizedToView(t *testing.T) {
	v := New(checkerboard(4, 5))
	mask := v.ScratchMask()
	assert.Len(t, mask, 20)
}
