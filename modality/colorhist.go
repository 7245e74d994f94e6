package modality

import (
	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// colorHistogramCue models foreground/background appearance as two 3-D
// colour histograms (default 8x8x8 bins) over a configured colour space,
// each persisted frame-to-frame by a linear mix, and backprojects the
// current frame against both to estimate P(FG | pixel).
type colorHistogramCue struct {
	cfg    config.CueConfig
	format imageview.Format
	bins   int

	fg, bg   []float64 // bins^3, each sums to 1 once seeded
	hasFG    bool
	hasBG    bool
	seenOnce bool

	// bounds is the patch set's bounding rectangle as of the last Update,
	// the prior's estimate of how much of the frame the target occupies.
	bounds patchset.Rect
}

func newColorHistogramCue(cfg config.CueConfig) *colorHistogramCue {
	format := imageview.FormatHSV
	switch cfg.GetColorSpace() {
	case "rgb":
		format = imageview.FormatRGB
	case "ycrcb":
		format = imageview.FormatYCrCb
	}
	bins := cfg.GetHistBins()
	if bins < 1 {
		bins = 8
	}
	n := bins * bins * bins
	return &colorHistogramCue{cfg: cfg, format: format, bins: bins, fg: make([]float64, n), bg: make([]float64, n)}
}

func (c *colorHistogramCue) Kind() config.ModalityKind { return config.ModalityColorHistogram }

func (c *colorHistogramCue) Usable() bool { return c.seenOnce && c.hasFG && c.hasBG }

func (c *colorHistogramCue) Reset() {
	c.fg = make([]float64, len(c.fg))
	c.bg = make([]float64, len(c.bg))
	c.hasFG, c.hasBG, c.seenOnce = false, false, false
	c.bounds = patchset.Rect{}
}

func (c *colorHistogramCue) binIndex(px []uint8) int {
	stride := 256 / c.bins
	if stride < 1 {
		stride = 1
	}
	b0 := clampBin(int(px[0])/stride, c.bins)
	b1 := clampBin(int(px[1])/stride, c.bins)
	b2 := clampBin(int(px[2])/stride, c.bins)
	return (b0*c.bins+b1)*c.bins + b2
}

func clampBin(b, bins int) int {
	if b < 0 {
		return 0
	}
	if b >= bins {
		return bins - 1
	}
	return b
}

// Update resamples the foreground histogram from a window around every
// reliable patch (scaled by foreground_size) and the background
// histogram from a ring outside bounds (background_margin..
// background_margin+background_size), then mixes each into its running
// persisted histogram.
func (c *colorHistogramCue) Update(v *imageview.View, reliable []*patch.Patch, bounds patchset.Rect) {
	c.seenOnce = true
	c.bounds = bounds
	mat, err := v.Get(c.format)
	if err != nil || mat == nil {
		return
	}

	fgSize := c.cfg.GetForegroundSize()
	newFG := make([]float64, len(c.fg))
	var fgCount float64
	for _, p := range reliable {
		radius := int(float64(p.Size) * fgSize / 2)
		if radius < 1 {
			radius = 1
		}
		pos := p.Position()
		cx, cy := int(pos.X), int(pos.Y)
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				x, y := cx+dx, cy+dy
				if x < 0 || y < 0 || x >= mat.Width || y >= mat.Height {
					continue
				}
				newFG[c.binIndex(mat.At(x, y))]++
				fgCount++
			}
		}
	}
	if fgCount > 0 {
		for i := range newFG {
			newFG[i] /= fgCount
		}
		mixHistogram(c.fg, newFG, c.cfg.GetFGPersistence(), c.hasFG)
		c.hasFG = true
	}

	margin := c.cfg.GetBackgroundMargin()
	size := c.cfg.GetBackgroundSize()
	newBG := make([]float64, len(c.bg))
	var bgCount float64
	minX, minY := int(bounds.X)-margin-size, int(bounds.Y)-margin-size
	maxX, maxY := int(bounds.X+bounds.Width)+margin+size, int(bounds.Y+bounds.Height)+margin+size
	innerMinX, innerMinY := int(bounds.X)-margin, int(bounds.Y)-margin
	innerMaxX, innerMaxY := int(bounds.X+bounds.Width)+margin, int(bounds.Y+bounds.Height)+margin
	for y := minY; y < maxY; y++ {
		if y < 0 || y >= mat.Height {
			continue
		}
		for x := minX; x < maxX; x++ {
			if x < 0 || x >= mat.Width {
				continue
			}
			if x >= innerMinX && x < innerMaxX && y >= innerMinY && y < innerMaxY {
				continue // inside the inner ring boundary: not background
			}
			newBG[c.binIndex(mat.At(x, y))]++
			bgCount++
		}
	}
	if bgCount > 0 {
		for i := range newBG {
			newBG[i] /= bgCount
		}
		mixHistogram(c.bg, newBG, c.cfg.GetBGPersistence(), c.hasBG)
		c.hasBG = true
	}
}

func mixHistogram(running, fresh []float64, persistence float64, seeded bool) {
	if !seeded {
		copy(running, fresh)
		return
	}
	for i := range running {
		running[i] = persistence*running[i] + (1-persistence)*fresh[i]
	}
}

// ProbabilityMap backprojects the current frame over window via
// P(FG|x) = pi*h_FG(bin) / (pi*h_FG(bin) + (1-pi)*h_BG(bin)), pi the
// ratio of the posted bounds' area to the whole image's area.
func (c *colorHistogramCue) ProbabilityMap(v *imageview.View, window patchset.Rect) *Map {
	x, y, w, h := int(window.X), int(window.Y), int(window.Width), int(window.Height)
	out := NewMap(x, y, w, h)
	mat, err := v.Get(c.format)
	if err != nil || mat == nil {
		return out
	}

	pi := 0.5
	frameArea := float64(v.Width() * v.Height())
	if frameArea > 0 {
		boundsArea := float64(c.bounds.Width * c.bounds.Height)
		pi = boundsArea / frameArea
		if pi <= 0 {
			pi = 0.01
		}
		if pi >= 1 {
			pi = 0.99
		}
	}

	for ly := 0; ly < h; ly++ {
		for lx := 0; lx < w; lx++ {
			px, py := x+lx, y+ly
			if px < 0 || py < 0 || px >= mat.Width || py >= mat.Height {
				continue
			}
			bin := c.binIndex(mat.At(px, py))
			fg := pi * c.fg[bin]
			bg := (1 - pi) * c.bg[bin]
			denom := fg + bg
			if denom <= 0 {
				continue
			}
			out.Data[ly*w+lx] = fg / denom
		}
	}
	return out
}
