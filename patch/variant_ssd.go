package patch

import (
	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
)

// ssdEmptyIntersection is returned when a candidate window doesn't
// overlap the image at all.
const ssdEmptyIntersection = -50

// ssdVariant models appearance as a copied grey template, compared by
// normalised sum-of-squared-differences against the live image.
type ssdVariant struct {
	size int
	tmpl []uint8 // size*size, row-major, zero-padded outside the source image
}

func (sv *ssdVariant) Kind() config.PatchVariant { return config.PatchSSD }

func (sv *ssdVariant) Initialize(v *imageview.View, pos Point) {
	grey, err := v.Get(imageview.FormatGrey)
	if err != nil {
		sv.tmpl = make([]uint8, sv.size*sv.size)
		return
	}
	sv.tmpl = copyGreySquare(grey, pos, sv.size)
}

// copyGreySquare copies a size x size window from grey centred on pos,
// zero-padding any portion that falls outside the image bounds.
func copyGreySquare(grey *imageview.Mat, pos Point, size int) []uint8 {
	out := make([]uint8, size*size)
	half := size / 2
	cx, cy := int(pos.X), int(pos.Y)
	for row := 0; row < size; row++ {
		y := cy - half + row
		if y < 0 || y >= grey.Height {
			continue
		}
		for col := 0; col < size; col++ {
			x := cx - half + col
			if x < 0 || x >= grey.Width {
				continue
			}
			out[row*size+col] = grey.Pix[y*grey.Width+x]
		}
	}
	return out
}

func (sv *ssdVariant) Response(v *imageview.View, pos Point) float32 {
	grey, err := v.Get(imageview.FormatGrey)
	if err != nil {
		return ssdEmptyIntersection
	}
	return ssdResponseAt(grey, sv.tmpl, sv.size, pos)
}

func (sv *ssdVariant) ResponsesBatch(v *imageview.View, positions []Point) []float32 {
	out := make([]float32, len(positions))
	grey, err := v.Get(imageview.FormatGrey)
	if err != nil {
		for i := range out {
			out[i] = ssdEmptyIntersection
		}
		return out
	}
	for i, p := range positions {
		out[i] = ssdResponseAt(grey, sv.tmpl, sv.size, p)
	}
	return out
}

// ssdResponseAt clips the
// size x size window centred on pos to the image, compares only the
// overlapping pixels against the matching offset of the stored template,
// and normalises by (overlap area * 255^2), scaled to [-50, 0].
func ssdResponseAt(grey *imageview.Mat, tmpl []uint8, size int, pos Point) float32 {
	half := size / 2
	cx, cy := int(pos.X), int(pos.Y)

	x1 := maxInt(cx-half, 0)
	y1 := maxInt(cy-half, 0)
	x2 := minInt(cx-half+size, grey.Width)
	y2 := minInt(cy-half+size, grey.Height)

	if x1 >= x2 || y1 >= y2 {
		return ssdEmptyIntersection
	}

	ox := x1 - (cx - half)
	oy := y1 - (cy - half)

	var dist float64
	for j := 0; j < y2-y1; j++ {
		for i := 0; i < x2-x1; i++ {
			gp := int(grey.Pix[(j+y1)*grey.Width+(i+x1)])
			tp := int(tmpl[(j+oy)*size+(i+ox)])
			d := gp - tp
			dist += float64(d * d)
		}
	}

	area := float64((x2 - x1) * (y2 - y1))
	return float32(-(dist / (area * 255 * 255)) * 50)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
