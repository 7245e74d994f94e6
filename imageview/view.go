// Package imageview provides a lazy, cached multi-format snapshot of one
// video frame. A View exposes the same pixel data in several colour
// formats (grey, RGB, HSV, YCrCb); each format is computed at most once per
// frame, on first request. Sub-region views share the parent's cached
// formats read-only and carry an offset relative to the full frame, so
// patch/modality code can work in a local coordinate system while the
// tracker pipeline works in frame coordinates.
//
// Colour-space conversion is a collaborator concern with a fixed
// pre/postcondition contract; this package supplies one concrete,
// deterministic implementation so the rest of the core has something
// real to run against.
package imageview

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Format identifies one of the four pixel representations the core reads.
type Format int

const (
	FormatGrey Format = iota
	FormatRGB
	FormatHSV
	FormatYCrCb
)

func (f Format) String() string {
	switch f {
	case FormatGrey:
		return "grey"
	case FormatRGB:
		return "rgb"
	case FormatHSV:
		return "hsv"
	case FormatYCrCb:
		return "ycrcb"
	default:
		return "unknown"
	}
}

// Mat is a dense row-major pixel buffer. Channels is 1 for grey, 3 for
// RGB/HSV/YCrCb. HSV and RGB channels are stored as bytes in [0,255];
// callers that need HS as normalised floats divide by 255.
type Mat struct {
	Width, Height int
	Channels      int
	Pix           []uint8
}

// At returns the channel values at (x, y). Out-of-bounds reads return a
// zero pixel; callers that need to distinguish a real zero pixel check
// Contains first.
func (m *Mat) At(x, y int) []uint8 {
	if m == nil || x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return make([]uint8, maxInt(1, m.channelsOrOne()))
	}
	i := (y*m.Width + x) * m.Channels
	return m.Pix[i : i+m.Channels]
}

func (m *Mat) channelsOrOne() int {
	if m == nil {
		return 1
	}
	return m.Channels
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Contains reports whether (x, y) is inside the buffer.
func (m *Mat) Contains(x, y int) bool {
	return m != nil && x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

func newMat(w, h, channels int) *Mat {
	return &Mat{Width: w, Height: h, Channels: channels, Pix: make([]uint8, w*h*channels)}
}

// View is a lazily-converted snapshot of one frame (or a sub-region of
// one). It owns its own format cache; sub-region views created via Sub
// share the parent's already-computed Mats read-only and only add an
// offset, so converting a large frame once and then querying many small
// patch windows does not re-run colour conversion per patch.
type View struct {
	source image.Image

	// OffsetX/OffsetY is this view's top-left corner in the coordinates of
	// the root frame it was derived from. The root view has offset (0,0).
	OffsetX, OffsetY int

	width, height int

	parent *View // nil for the root view
	cache  map[Format]*Mat
}

// New wraps a decoded frame as the root View for a new frame. The source
// image is read-only for the lifetime of the view; the pipeline is
// single-threaded so no locking is performed.
func New(source image.Image) *View {
	b := source.Bounds()
	return &View{
		source: source,
		width:  b.Dx(),
		height: b.Dy(),
		cache:  make(map[Format]*Mat),
	}
}

// Width and Height report this view's own extent (the sub-region's extent
// when this view was produced by Sub, not the root frame's).
func (v *View) Width() int  { return v.width }
func (v *View) Height() int { return v.height }

// Sub returns a non-owning view of the rectangle r (in this view's own
// coordinate system), clamped to this view's bounds. The returned view
// shares the parent's cached Mats and carries a cumulative offset, so
// Get(format) on the sub-view still only converts once per frame no matter
// how many sub-regions are requested.
func (v *View) Sub(r image.Rectangle) *View {
	r = r.Intersect(image.Rect(0, 0, v.width, v.height))
	if r.Empty() {
		r = image.Rectangle{}
	}
	root := v
	if v.parent != nil {
		root = v.parent
	}
	return &View{
		source:  v.source,
		width:   r.Dx(),
		height:  r.Dy(),
		OffsetX: v.OffsetX + r.Min.X,
		OffsetY: v.OffsetY + r.Min.Y,
		parent:  root,
	}
}

// Get returns the pixel matrix for the requested format, computing and
// caching it on first use. Sub-region views delegate conversion to their
// root and then crop, so the conversion itself happens once per frame.
func (v *View) Get(format Format) (*Mat, error) {
	if v.parent != nil {
		full, err := v.parent.Get(format)
		if err != nil {
			return nil, err
		}
		return cropMat(full, v.OffsetX, v.OffsetY, v.width, v.height), nil
	}

	if m, ok := v.cache[format]; ok {
		return m, nil
	}

	m, err := v.convert(format)
	if err != nil {
		return nil, err
	}
	v.cache[format] = m
	return m, nil
}

func cropMat(full *Mat, x, y, w, h int) *Mat {
	out := newMat(w, h, full.Channels)
	for row := 0; row < h; row++ {
		srcStart := ((y+row)*full.Width + x) * full.Channels
		srcEnd := srcStart + w*full.Channels
		if srcStart < 0 || srcEnd > len(full.Pix) || x+w > full.Width || y+row >= full.Height {
			// partially or fully out of bounds: fall back to per-pixel At,
			// zero-padding outside the source (patch squares may straddle
			// the frame edge, per the SSD/Histogram initialisation rules).
			for col := 0; col < w; col++ {
				px := full.At(x+col, y+row)
				copy(out.Pix[(row*w+col)*out.Channels:], px)
			}
			continue
		}
		copy(out.Pix[row*w*out.Channels:(row+1)*w*out.Channels], full.Pix[srcStart:srcEnd])
	}
	return out
}

func (v *View) convert(format Format) (*Mat, error) {
	switch format {
	case FormatRGB:
		return v.convertRGB(), nil
	case FormatGrey:
		return v.convertGrey(), nil
	case FormatHSV:
		return v.convertHSV(), nil
	case FormatYCrCb:
		return v.convertYCrCb(), nil
	default:
		return nil, fmt.Errorf("imageview: unknown format %v", format)
	}
}

// convertRGB copies the source into a tight 3-channel buffer via
// golang.org/x/image/draw, which handles sources that aren't already
// image.NRGBA (e.g. image.YCbCr from a JPEG frame).
func (v *View) convertRGB() *Mat {
	b := v.source.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), v.source, b.Min, draw.Src)

	m := newMat(b.Dx(), b.Dy(), 3)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			o := dst.PixOffset(x, y)
			i := (y*b.Dx() + x) * 3
			m.Pix[i+0] = dst.Pix[o+0]
			m.Pix[i+1] = dst.Pix[o+1]
			m.Pix[i+2] = dst.Pix[o+2]
		}
	}
	return m
}

func (v *View) convertGrey() *Mat {
	b := v.source.Bounds()
	m := newMat(b.Dx(), b.Dy(), 1)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.GrayModel.Convert(v.source.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			m.Pix[y*b.Dx()+x] = g.Y
		}
	}
	return m
}

// convertHSV implements the standard RGB->HSV transform, storing H, S, V
// each scaled to a byte in [0,255], the representation the HS patch
// variant reads.
func (v *View) convertHSV() *Mat {
	rgb, _ := v.rootConvert(FormatRGB)
	m := newMat(rgb.Width, rgb.Height, 3)
	for i := 0; i < rgb.Width*rgb.Height; i++ {
		r := float64(rgb.Pix[i*3+0]) / 255
		g := float64(rgb.Pix[i*3+1]) / 255
		b := float64(rgb.Pix[i*3+2]) / 255
		h, s, val := rgbToHSV(r, g, b)
		m.Pix[i*3+0] = uint8(h * 255)
		m.Pix[i*3+1] = uint8(s * 255)
		m.Pix[i*3+2] = uint8(val * 255)
	}
	return m
}

func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxc := maxF(r, maxF(g, b))
	minc := minF(r, minF(g, b))
	v = maxc
	delta := maxc - minc
	if maxc == 0 || delta == 0 {
		return 0, 0, v
	}
	s = delta / maxc
	switch maxc {
	case r:
		h = (g - b) / delta
	case g:
		h = 2 + (b-r)/delta
	default:
		h = 4 + (r-g)/delta
	}
	h /= 6
	if h < 0 {
		h += 1
	}
	return h, s, v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// convertYCrCb stores Y, Cr, Cb bytes per pixel (Cr before Cb),
// computed via the stdlib's JPEG-standard YCbCr transform and
// re-ordered.
func (v *View) convertYCrCb() *Mat {
	rgb, _ := v.rootConvert(FormatRGB)
	m := newMat(rgb.Width, rgb.Height, 3)
	for i := 0; i < rgb.Width*rgb.Height; i++ {
		r, g, b := rgb.Pix[i*3+0], rgb.Pix[i*3+1], rgb.Pix[i*3+2]
		y, cb, cr := color.RGBToYCbCr(r, g, b)
		m.Pix[i*3+0] = y
		m.Pix[i*3+1] = cr
		m.Pix[i*3+2] = cb
	}
	return m
}

// rootConvert fetches (and caches) a format on the root view regardless of
// which view convert() was invoked from; convertHSV/convertYCrCb derive
// from RGB and must not re-derive per sub-view.
func (v *View) rootConvert(format Format) (*Mat, error) {
	if v.parent != nil {
		return v.parent.rootConvert(format)
	}
	return v.Get(format)
}

// ScratchMask returns a freshly zeroed boolean mask sized to this view,
// for callers that need a reusable working buffer (e.g. modality
// inhibition masks) without owning frame-sized allocations themselves.
func (v *View) ScratchMask() []bool {
	return make([]bool, v.width*v.height)
}
