package modality

import (
	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/imageview"
	"github.com/banshee-data/lgt-tracker/patch"
	"github.com/banshee-data/lgt-tracker/patchset"
)

// boundingBoxCue is an indicator of the last posted bounding rectangle,
// expanded by a configured margin.
type boundingBoxCue struct {
	cfg    config.CueConfig
	last   patchset.Rect
	posted bool
}

func newBoundingBoxCue(cfg config.CueConfig) *boundingBoxCue {
	return &boundingBoxCue{cfg: cfg}
}

func (c *boundingBoxCue) Kind() config.ModalityKind { return config.ModalityBoundingBox }

func (c *boundingBoxCue) Usable() bool { return c.posted }

func (c *boundingBoxCue) Reset() {
	c.last = patchset.Rect{}
	c.posted = false
}

func (c *boundingBoxCue) Update(v *imageview.View, reliable []*patch.Patch, bounds patchset.Rect) {
	c.last = bounds
	c.posted = true
}

func (c *boundingBoxCue) ProbabilityMap(v *imageview.View, window patchset.Rect) *Map {
	x, y, w, h := int(window.X), int(window.Y), int(window.Width), int(window.Height)
	out := NewMap(x, y, w, h)
	if !c.posted {
		return out
	}
	expand := c.cfg.GetExpand()
	minX := int(c.last.X - float32(expand))
	minY := int(c.last.Y - float32(expand))
	maxX := int(c.last.X + c.last.Width + float32(expand))
	maxY := int(c.last.Y + c.last.Height + float32(expand))
	for ly := 0; ly < h; ly++ {
		py := y + ly
		for lx := 0; lx < w; lx++ {
			px := x + lx
			if px >= minX && px < maxX && py >= minY && py < maxY {
				out.Data[ly*w+lx] = 1
			}
		}
	}
	out.Normalize()
	return out
}
