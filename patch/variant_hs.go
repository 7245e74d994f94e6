package patch

import (
	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
)

// hsLambdaH and hsLambdaS normalise the hue and saturation deltas.
const (
	hsLambdaH = 0.063
	hsLambdaS = 0.063
)

const hsOutOfBoundsResponse = 255 * 255 * 3

// hsVariant models appearance as a single hue+saturation pixel; the
// value channel is read but never compared.
type hsVariant struct {
	h, s float32 // normalised to [0,1]
}

func (hv *hsVariant) Kind() config.PatchVariant { return config.PatchHS }

func (hv *hsVariant) Initialize(v *imageview.View, pos Point) {
	hsv, err := v.Get(imageview.FormatHSV)
	if err != nil {
		return
	}
	x := clampInt(int(pos.X), 0, hsv.Width-1)
	y := clampInt(int(pos.Y), 0, hsv.Height-1)
	px := hsv.At(x, y)
	hv.h = float32(px[0]) / 255
	hv.s = float32(px[1]) / 255
}

func (hv *hsVariant) Response(v *imageview.View, pos Point) float32 {
	hsv, err := v.Get(imageview.FormatHSV)
	if err != nil {
		return hsOutOfBoundsResponse
	}
	x, y := int(pos.X), int(pos.Y)
	if x < 0 || x >= hsv.Width || y < 0 || y >= hsv.Height {
		return hsOutOfBoundsResponse
	}
	px := hsv.At(x, y)
	h := float32(px[0]) / 255
	s := float32(px[1]) / 255

	dh := h - hv.h
	if dh < 0 {
		dh = -dh
	}
	if dh > 1-dh {
		dh = 1 - dh
	}
	ds := s - hv.s

	return 0.5 * (dh*dh/hsLambdaH + ds*ds/hsLambdaS)
}

func (hv *hsVariant) ResponsesBatch(v *imageview.View, positions []Point) []float32 {
	out := make([]float32, len(positions))
	for i, p := range positions {
		out[i] = hv.Response(v, p)
	}
	return out
}
