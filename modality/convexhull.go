package modality

import (
	"math"
	"sort"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// convexHullCue maintains an exponential-decay record of past convex
// hulls of reliable patches, dilated by margin with a softer outer ring
// (margin_diminish). Starts empty; Reset invalidates.
type convexHullCue struct {
	cfg config.CueConfig

	width, height int
	accum         []float64 // full-frame, lazily sized on first Update
	seeded        bool
}

func newConvexHullCue(cfg config.CueConfig) *convexHullCue {
	return &convexHullCue{cfg: cfg}
}

func (c *convexHullCue) Kind() config.ModalityKind { return config.ModalityConvexHull }

func (c *convexHullCue) Usable() bool { return c.seeded }

func (c *convexHullCue) Reset() {
	c.accum = nil
	c.seeded = false
}

func (c *convexHullCue) Update(v *imageview.View, reliable []*patch.Patch, bounds patchset.Rect) {
	if c.accum == nil {
		c.width, c.height = v.Width(), v.Height()
		c.accum = make([]float64, c.width*c.height)
	}
	if len(reliable) < 3 {
		return
	}

	pts := make([]hullPoint, len(reliable))
	for i, p := range reliable {
		pos := p.Position()
		pts[i] = hullPoint{X: float64(pos.X), Y: float64(pos.Y)}
	}
	hull := convexHull(pts)
	if len(hull) < 3 {
		return
	}

	margin := c.cfg.GetMargin()
	diminish := c.cfg.GetMarginDiminish()
	persistence := c.cfg.GetHullPersistence()

	minX, maxX, minY, maxY := hullBounds(hull)
	lo := margin + diminish
	x0 := clampCoord(int(minX-lo), 0, c.width-1)
	x1 := clampCoord(int(maxX+lo)+1, 0, c.width)
	y0 := clampCoord(int(minY-lo), 0, c.height-1)
	y1 := clampCoord(int(maxY+lo)+1, 0, c.height)

	fresh := make([]float64, c.width*c.height)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			d := signedHullDistance(hull, hullPoint{X: float64(x), Y: float64(y)})
			var val float64
			switch {
			case d <= margin:
				val = 1
			case d <= margin+diminish && diminish > 0:
				val = 1 - (d-margin)/diminish
			default:
				val = 0
			}
			fresh[y*c.width+x] = val
		}
	}

	if !c.seeded {
		copy(c.accum, fresh)
		c.seeded = true
		return
	}
	for i := range c.accum {
		c.accum[i] = persistence*c.accum[i] + (1-persistence)*fresh[i]
	}
}

func (c *convexHullCue) ProbabilityMap(v *imageview.View, window patchset.Rect) *Map {
	x, y, w, h := int(window.X), int(window.Y), int(window.Width), int(window.Height)
	out := NewMap(x, y, w, h)
	if c.accum == nil {
		return out
	}
	for ly := 0; ly < h; ly++ {
		py := y + ly
		if py < 0 || py >= c.height {
			continue
		}
		for lx := 0; lx < w; lx++ {
			px := x + lx
			if px < 0 || px >= c.width {
				continue
			}
			out.Data[ly*w+lx] = c.accum[py*c.width+px]
		}
	}
	out.Normalize()
	return out
}

func clampCoord(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type hullPoint struct{ X, Y float64 }

// convexHull computes the convex hull of pts via Andrew's monotone chain,
// returning hull vertices in counter-clockwise order.
func convexHull(pts []hullPoint) []hullPoint {
	p := append([]hullPoint(nil), pts...)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	n := len(p)
	if n < 3 {
		return p
	}

	cross := func(o, a, b hullPoint) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	lower := make([]hullPoint, 0, n)
	for _, pt := range p {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], pt) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, pt)
	}
	upper := make([]hullPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		pt := p[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], pt) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, pt)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

func hullBounds(hull []hullPoint) (minX, maxX, minY, maxY float64) {
	minX, maxX = hull[0].X, hull[0].X
	minY, maxY = hull[0].Y, hull[0].Y
	for _, p := range hull[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return
}

// signedHullDistance returns the Euclidean distance from p to the hull
// boundary, 0 or negative when p is inside the (CCW) hull.
func signedHullDistance(hull []hullPoint, p hullPoint) float64 {
	inside := true
	minDist := math.Inf(1)
	n := len(hull)
	for i := 0; i < n; i++ {
		a, b := hull[i], hull[(i+1)%n]
		cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
		if cross < 0 {
			inside = false
		}
		minDist = math.Min(minDist, pointSegmentDistance(p, a, b))
	}
	if inside {
		return -minDist
	}
	return minDist
}

func pointSegmentDistance(p, a, b hullPoint) float64 {
	abx, aby := b.X-a.X, b.Y-a.Y
	apx, apy := p.X-a.X, p.Y-a.Y
	lenSq := abx*abx + aby*aby
	if lenSq == 0 {
		return math.Hypot(apx, apy)
	}
	t := (apx*abx + apy*aby) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx, cy := a.X+t*abx, a.Y+t*aby
	return math.Hypot(p.X-cx, p.Y-cy)
}
