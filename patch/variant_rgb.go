package patch

import (
	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
)

// rgbLambda normalises the squared channel deltas.
const rgbLambda = 3600.0

// rgbOutOfBoundsResponse is 255^2 * 3, the worst possible squared
// distance, returned for a candidate position outside the image.
const rgbOutOfBoundsResponse = 255 * 255 * 3

// rgbVariant models appearance as a single RGB pixel value.
type rgbVariant struct {
	r, g, b float32
}

func (rv *rgbVariant) Kind() config.PatchVariant { return config.PatchRGB }

func (rv *rgbVariant) Initialize(v *imageview.View, pos Point) {
	rgb, err := v.Get(imageview.FormatRGB)
	if err != nil {
		return
	}
	x := clampInt(int(pos.X), 0, rgb.Width-1)
	y := clampInt(int(pos.Y), 0, rgb.Height-1)
	px := rgb.At(x, y)
	rv.r, rv.g, rv.b = float32(px[0]), float32(px[1]), float32(px[2])
}

func (rv *rgbVariant) Response(v *imageview.View, pos Point) float32 {
	rgb, err := v.Get(imageview.FormatRGB)
	if err != nil {
		return rgbOutOfBoundsResponse
	}
	x, y := int(pos.X), int(pos.Y)
	if x < 0 || x >= rgb.Width || y < 0 || y >= rgb.Height {
		return rgbOutOfBoundsResponse
	}
	px := rgb.At(x, y)
	dr := float32(px[0]) - rv.r
	dg := float32(px[1]) - rv.g
	db := float32(px[2]) - rv.b
	return 0.5 * (dr*dr + dg*dg + db*db) / rgbLambda
}

func (rv *rgbVariant) ResponsesBatch(v *imageview.View, positions []Point) []float32 {
	out := make([]float32, len(positions))
	for i, p := range positions {
		out[i] = rv.Response(v, p)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
