package patch

import (
	"math"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
)

const histogramBins = 16

// histogramVariant models appearance as a 16-bin 8-bit grey-level
// histogram computed over a patch-sized square.
type histogramVariant struct {
	size int
	ref  [histogramBins]float64
}

func (h *histogramVariant) Kind() config.PatchVariant { return config.PatchHistogram }

func (h *histogramVariant) Initialize(v *imageview.View, pos Point) {
	grey, err := v.Get(imageview.FormatGrey)
	if err != nil {
		return
	}
	h.ref = computeGreyHistogram(grey, pos, h.size)
}

func (h *histogramVariant) Response(v *imageview.View, pos Point) float32 {
	grey, err := v.Get(imageview.FormatGrey)
	if err != nil {
		return 1
	}
	test := computeGreyHistogram(grey, pos, h.size)
	return float32(1 - bhattacharyya(h.ref, test))
}

func (h *histogramVariant) ResponsesBatch(v *imageview.View, positions []Point) []float32 {
	out := make([]float32, len(positions))
	grey, err := v.Get(imageview.FormatGrey)
	if err != nil {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, p := range positions {
		test := computeGreyHistogram(grey, p, h.size)
		out[i] = float32(1 - bhattacharyya(h.ref, test))
	}
	return out
}

// computeGreyHistogram bins pixel>>4 over the size x size square centred
// on pos, excluding pixels outside the image (not zero-padding them —
// excluding them keeps a patch straddling the frame edge from being
// biased towards bin 0).
func computeGreyHistogram(grey *imageview.Mat, pos Point, size int) [histogramBins]float64 {
	var hist [histogramBins]float64
	half := size / 2
	cx, cy := int(pos.X), int(pos.Y)
	for dy := -half; dy < size-half; dy++ {
		y := cy + dy
		if y < 0 || y >= grey.Height {
			continue
		}
		for dx := -half; dx < size-half; dx++ {
			x := cx + dx
			if x < 0 || x >= grey.Width {
				continue
			}
			px := grey.Pix[y*grey.Width+x]
			hist[px>>4]++
		}
	}
	return hist
}

// bhattacharyya returns the Bhattacharyya coefficient of two histograms,
// normalising each by its own sum first. If both sums are zero
// the coefficient is defined as 1 (perfect match, response 0); if only
// one histogram is empty (e.g. the candidate square fell entirely outside
// the image) the coefficient is 0 (total mismatch), since there is no
// meaningful distribution to compare against the non-empty one.
func bhattacharyya(ref, test [histogramBins]float64) float64 {
	var sumRef, sumTest float64
	for k := 0; k < histogramBins; k++ {
		sumRef += ref[k]
		sumTest += test[k]
	}
	if sumRef == 0 && sumTest == 0 {
		return 1
	}
	if sumRef == 0 || sumTest == 0 {
		return 0
	}
	var bc float64
	for k := 0; k < histogramBins; k++ {
		p := ref[k] / sumRef
		q := test[k] / sumTest
		bc += math.Sqrt(p * q)
	}
	return bc
}
