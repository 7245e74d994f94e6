package videosource

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/banshee-data/lgt-tracker/imageview"
)

// SyntheticConfig parametrises Synthetic, the deterministic frame
// generator behind the end-to-end scenario tests (stationary target,
// constant-velocity translation, occlusion recovery, seed
// reproducibility): a textured square moving at a constant per-frame
// velocity over a white-noise background, optionally occluded by a flat
// grey rectangle for a configured frame range.
type SyntheticConfig struct {
	Width, Height int
	// PatchRect is the textured square's position in frame 0.
	PatchRect image.Rectangle
	// VelocityX, VelocityY is the per-frame translation applied to
	// PatchRect; zero for the stationary-target scenario.
	VelocityX, VelocityY float64
	Frames               int
	// Seed drives the background noise generator; identical Seed values
	// reproduce byte-identical frame sequences.
	Seed int64
	// OccludeFrom, OccludeTo is a half-open frame-index range during
	// which the patch is replaced by a flat grey rectangle; a zero range
	// (OccludeTo <= OccludeFrom) disables occlusion.
	OccludeFrom, OccludeTo int
}

// Synthetic implements Source by rendering SyntheticConfig frame by
// frame. It never reads a file; it exists so the scenario tests have a
// video source to drive without a real video codec.
type Synthetic struct {
	cfg   SyntheticConfig
	rng   *rand.Rand
	frame int
}

// NewSynthetic constructs a Synthetic generator. The background noise
// stream is seeded once at construction, so replaying with the same
// SyntheticConfig.Seed reproduces the same frames.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	return &Synthetic{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Capture implements Source.
func (s *Synthetic) Capture() (*imageview.View, bool, error) {
	if s.frame >= s.cfg.Frames {
		return nil, false, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, s.cfg.Width, s.cfg.Height))
	for y := 0; y < s.cfg.Height; y++ {
		for x := 0; x < s.cfg.Width; x++ {
			n := uint8(s.rng.Intn(256))
			img.SetRGBA(x, y, color.RGBA{n, n, n, 255})
		}
	}

	dx := s.cfg.VelocityX * float64(s.frame)
	dy := s.cfg.VelocityY * float64(s.frame)
	rect := s.cfg.PatchRect.Add(image.Pt(int(dx), int(dy)))

	occluded := s.cfg.OccludeTo > s.cfg.OccludeFrom &&
		s.frame >= s.cfg.OccludeFrom && s.frame < s.cfg.OccludeTo

	if occluded {
		drawFlat(img, rect, color.RGBA{128, 128, 128, 255})
	} else {
		drawCheckerboard(img, rect)
	}

	s.frame++
	return imageview.New(img), true, nil
}

func (s *Synthetic) Width() int   { return s.cfg.Width }
func (s *Synthetic) Height() int  { return s.cfg.Height }
func (s *Synthetic) Close() error { return nil }

// drawCheckerboard paints a fixed, non-random 8px checkerboard inside
// rect — distinguishable from the white-noise background and identical
// frame to frame, so appearance-based matching has something stable to
// track.
func drawCheckerboard(img *image.RGBA, rect image.Rectangle) {
	clip := rect.Intersect(img.Bounds())
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			local := image.Pt(x-rect.Min.X, y-rect.Min.Y)
			if (local.X/8+local.Y/8)%2 == 0 {
				img.SetRGBA(x, y, color.RGBA{230, 230, 230, 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{20, 20, 20, 255})
			}
		}
	}
}

func drawFlat(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	clip := rect.Intersect(img.Bounds())
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}
