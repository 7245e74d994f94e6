package modality

import (
	"math"
	"sort"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// lkWindow is the half-width of the local window used both for corner
// scoring and the per-corner Lucas-Kanade normal-equations solve.
const lkWindow = 7

// lkCornerSpacing is the grid spacing (pixels) at which corner
// candidates are considered; a full per-pixel Harris response isn't
// needed for a consensus cue operating over a ~100px window.
const lkCornerSpacing = 5

// lkMaxCorners bounds how many of the highest-response candidates are
// tracked per frame.
const lkMaxCorners = 60

// lkBlurKernel is the Gaussian blur kernel side applied to the
// accumulated consensus map.
const lkBlurKernel = 55

// motionLKCue estimates object-presence from Lucas-Kanade optical flow
// consensus: corners whose observed motion agrees with the patch
// constellation's own centroid motion score highly.
// Usable only once both ring-buffer slots (current and previous frame)
// are filled.
type motionLKCue struct {
	cfg config.CueConfig

	grey     [2]*imageview.Mat // grey[0] = current, grey[1] = previous
	centroid [2]patch.Point
	filled   int
}

func newMotionLKCue(cfg config.CueConfig) *motionLKCue {
	return &motionLKCue{cfg: cfg}
}

func (c *motionLKCue) Kind() config.ModalityKind { return config.ModalityMotionLK }

func (c *motionLKCue) Usable() bool { return c.filled >= 2 }

func (c *motionLKCue) Reset() {
	c.grey = [2]*imageview.Mat{}
	c.centroid = [2]patch.Point{}
	c.filled = 0
}

func (c *motionLKCue) Update(v *imageview.View, reliable []*patch.Patch, bounds patchset.Rect) {
	grey, err := v.Get(imageview.FormatGrey)
	if err != nil {
		return
	}
	centroid := centroidOf(reliable, bounds)

	c.grey[1] = c.grey[0]
	c.centroid[1] = c.centroid[0]
	c.grey[0] = grey
	c.centroid[0] = centroid
	if c.filled < 2 {
		c.filled++
	}
}

func centroidOf(reliable []*patch.Patch, bounds patchset.Rect) patch.Point {
	if len(reliable) == 0 {
		return patch.Point{X: bounds.X + bounds.Width/2, Y: bounds.Y + bounds.Height/2}
	}
	var sumX, sumY float64
	for _, p := range reliable {
		pos := p.Position()
		sumX += float64(pos.X)
		sumY += float64(pos.Y)
	}
	n := float64(len(reliable))
	return patch.Point{X: float32(sumX / n), Y: float32(sumY / n)}
}

// ProbabilityMap runs Lucas-Kanade flow at a grid of corner candidates
// inside window, scores each by how closely its observed motion matches
// the constellation's own reference motion
// (exp(-|predicted-reference|/damping)), accumulates the scores at their
// corner positions, and blurs the result with a Gaussian kernel.
func (c *motionLKCue) ProbabilityMap(v *imageview.View, window patchset.Rect) *Map {
	x, y, w, h := int(window.X), int(window.Y), int(window.Width), int(window.Height)
	out := NewMap(x, y, w, h)
	if !c.Usable() {
		return out
	}

	prev, cur := c.grey[1], c.grey[0]
	refX := float64(c.centroid[0].X - c.centroid[1].X)
	refY := float64(c.centroid[0].Y - c.centroid[1].Y)
	damping := c.cfg.GetDamping()
	if damping <= 0 {
		damping = 100
	}

	type corner struct {
		x, y     int
		response float64
	}
	var corners []corner
	for cy := y + lkWindow; cy < y+h-lkWindow; cy += lkCornerSpacing {
		for cx := x + lkWindow; cx < x+w-lkWindow; cx += lkCornerSpacing {
			if !inBounds(cur, cx, cy, lkWindow) {
				continue
			}
			resp := cornerResponse(cur, cx, cy)
			corners = append(corners, corner{cx, cy, resp})
		}
	}
	sort.Slice(corners, func(i, j int) bool { return corners[i].response > corners[j].response })
	if len(corners) > lkMaxCorners {
		corners = corners[:lkMaxCorners]
	}

	for _, co := range corners {
		u, v2, ok := lucasKanade(prev, cur, co.x, co.y)
		if !ok {
			continue
		}
		dist := math.Hypot(u-refX, v2-refY)
		score := math.Exp(-dist / damping)
		out.Set(co.x, co.y, out.At(co.x, co.y)+score)
	}

	gaussianBlur(out, lkBlurKernel)
	out.Normalize()
	return out
}

func inBounds(m *imageview.Mat, x, y, margin int) bool {
	return x-margin >= 0 && y-margin >= 0 && x+margin < m.Width && y+margin < m.Height
}

// cornerResponse is a Shi-Tomasi-style structure-tensor score: the
// smaller eigenvalue of the local gradient covariance, high for corner-
// like texture and low for flat or single-edge regions.
func cornerResponse(m *imageview.Mat, cx, cy int) float64 {
	var sxx, sxy, syy float64
	for dy := -lkWindow; dy <= lkWindow; dy++ {
		for dx := -lkWindow; dx <= lkWindow; dx++ {
			ix, iy := gradient(m, cx+dx, cy+dy)
			sxx += ix * ix
			sxy += ix * iy
			syy += iy * iy
		}
	}
	tr := sxx + syy
	det := sxx*syy - sxy*sxy
	disc := tr*tr/4 - det
	if disc < 0 {
		disc = 0
	}
	return tr/2 - math.Sqrt(disc)
}

func gradient(m *imageview.Mat, x, y int) (ix, iy float64) {
	x1, x0 := clampCoord(x+1, 0, m.Width-1), clampCoord(x-1, 0, m.Width-1)
	y1, y0 := clampCoord(y+1, 0, m.Height-1), clampCoord(y-1, 0, m.Height-1)
	ix = (float64(m.At(x1, y)[0]) - float64(m.At(x0, y)[0])) / 2
	iy = (float64(m.At(x, y1)[0]) - float64(m.At(x, y0)[0])) / 2
	return
}

// lucasKanade solves the single-level LK normal equations for the
// optical-flow displacement (u, v) of the lkWindow-radius patch centred
// on (cx, cy) between prev and cur.
func lucasKanade(prev, cur *imageview.Mat, cx, cy int) (u, v float64, ok bool) {
	var sxx, sxy, syy, sxt, syt float64
	for dy := -lkWindow; dy <= lkWindow; dy++ {
		for dx := -lkWindow; dx <= lkWindow; dx++ {
			x, y := cx+dx, cy+dy
			ix, iy := gradient(cur, x, y)
			it := float64(cur.At(x, y)[0]) - float64(prev.At(x, y)[0])
			sxx += ix * ix
			sxy += ix * iy
			syy += iy * iy
			sxt += ix * it
			syt += iy * it
		}
	}
	det := sxx*syy - sxy*sxy
	if math.Abs(det) < 1e-6 {
		return 0, 0, false
	}
	u = (-syy*sxt + sxy*syt) / det
	v = (sxy*sxt - sxx*syt) / det
	return u, v, true
}

// gaussianBlur convolves m with a separable Gaussian kernel of the given
// side (odd), sigma = side/6.
func gaussianBlur(m *Map, side int) {
	if side < 3 || m.Width == 0 || m.Height == 0 {
		return
	}
	if side%2 == 0 {
		side++
	}
	radius := side / 2
	sigma := float64(side) / 6
	if sigma <= 0 {
		sigma = 1
	}
	kernel := make([]float64, side)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]float64, len(m.Data))
	for ly := 0; ly < m.Height; ly++ {
		for lx := 0; lx < m.Width; lx++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				sx := clampCoord(lx+k, 0, m.Width-1)
				acc += m.Data[ly*m.Width+sx] * kernel[k+radius]
			}
			tmp[ly*m.Width+lx] = acc
		}
	}
	for lx := 0; lx < m.Width; lx++ {
		for ly := 0; ly < m.Height; ly++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				sy := clampCoord(ly+k, 0, m.Height-1)
				acc += tmp[sy*m.Width+lx] * kernel[k+radius]
			}
			m.Data[ly*m.Width+lx] = acc
		}
	}
}
