// Package videosource holds the minimal frame-source contract the
// tracker core consumes. The core treats the video/image source layer
// as an external collaborator: only this interface matters to it, not
// which file/directory/camera decoder sits behind the interface.
//
// FileSource, the one concrete implementation this package ships, reads a
// numbered sequence of image files from a directory — enough to drive the
// CLI driver and the end-to-end scenario tests without pulling in a real
// video codec.
package videosource

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/banshee-data/lgt-tracker/imageview"
)

// Source is the blocking frame reader the tracker's driver pulls from:
// Capture blocks until the next frame is ready and reports false at end
// of stream.
type Source interface {
	// Capture reads the next frame, returning a fresh View over it. ok is
	// false at end of stream; err is non-nil
	// only for an actual read failure, distinct from a clean EOF.
	Capture() (view *imageview.View, ok bool, err error)

	// Width and Height report the source's native frame size, or 0 if not
	// yet known (e.g. before the first Capture).
	Width() int
	Height() int

	// Close releases any resources (open files, handles) held by the
	// source. Capture must not be called after Close.
	Close() error
}

// FileSource reads frames from a directory of image files, sorted
// lexically by filename.
type FileSource struct {
	paths  []string
	pos    int
	width  int
	height int
}

// NewFileSource globs dir for image files (.png, .jpg, .jpeg, .gif),
// sorts them, and returns a Source that yields one frame per Capture call
// in that order. Returns an error if dir contains no matching files.
func NewFileSource(dir string) (*FileSource, error) {
	var paths []string
	for _, pattern := range []string{"*.png", "*.jpg", "*.jpeg", "*.gif"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("videosource: glob %s: %w", pattern, err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("videosource: no image files found in %s", dir)
	}
	sort.Strings(paths)
	return &FileSource{paths: paths}, nil
}

// Capture implements Source.
func (s *FileSource) Capture() (*imageview.View, bool, error) {
	if s.pos >= len(s.paths) {
		return nil, false, nil
	}
	path := s.paths[s.pos]
	s.pos++

	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("videosource: open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, false, fmt.Errorf("videosource: decode %s: %w", path, err)
	}

	view := imageview.New(img)
	s.width, s.height = view.Width(), view.Height()
	return view, true, nil
}

func (s *FileSource) Width() int  { return s.width }
func (s *FileSource) Height() int { return s.height }

// Close is a no-op: FileSource opens each file only for the duration of
// its own Capture call.
func (s *FileSource) Close() error { return nil }

// Remaining reports how many frames FileSource has left to yield, for
// driver progress reporting.
func (s *FileSource) Remaining() int { return len(s.paths) - s.pos }
