// Package assets loads the count-indexed overlay images drawn onto frames.
package assets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ayusman/fingercount/internal/fingers"
	"github.com/ayusman/fingercount/internal/overlay"
	"gocv.io/x/gocv"
)

// ErrCollectionSize is returned when an asset directory does not hold exactly
// one image per finger count.
var ErrCollectionSize = errors.New("asset collection must hold one image per finger count")

// Default placements of the two overlays inside a 640x480 frame.
var (
	FingerPlacement = overlay.Placement{Row: 40, Col: 0}
	DigitPlacement  = overlay.Placement{Row: 260, Col: 0}
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
}

// Collection holds one BGRA overlay per finger count, indexed by count.
type Collection [fingers.NumCounts]gocv.Mat

// At returns the overlay for count c.
func (c *Collection) At(count fingers.Count) (gocv.Mat, error) {
	if !count.Valid() {
		return gocv.Mat{}, fmt.Errorf("%w: %d", fingers.ErrCountRange, count)
	}
	return c[count], nil
}

// Close releases every loaded image.
func (c *Collection) Close() {
	for i := range c {
		c[i].Close()
	}
}

// ListImages returns the image file names in dir sorted lexically.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read asset dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

// LoadDir reads the overlays in dir. The directory must hold exactly six
// images; sorted by name they map to counts 0 through 5. Every image must be
// BGRA of height x width.
func LoadDir(dir string, height, width int) (*Collection, error) {
	names, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	if len(names) != fingers.NumCounts {
		return nil, fmt.Errorf("%w: %s has %d images, want %d", ErrCollectionSize, dir, len(names), fingers.NumCounts)
	}

	c := &Collection{}
	for i, name := range names {
		path := filepath.Join(dir, name)
		mat := gocv.IMRead(path, gocv.IMReadUnchanged)
		if mat.Empty() {
			mat.Close()
			closeFirst(c, i)
			return nil, fmt.Errorf("decode overlay %s", path)
		}
		if mat.Type() != gocv.MatTypeCV8UC4 || mat.Rows() != height || mat.Cols() != width {
			err := fmt.Errorf("%w: %s is %dx%d with %d channels, want %dx%d with 4",
				overlay.ErrDimensionMismatch, path, mat.Cols(), mat.Rows(), mat.Channels(), width, height)
			mat.Close()
			closeFirst(c, i)
			return nil, err
		}
		c[i] = mat
	}

	return c, nil
}

func closeFirst(c *Collection, n int) {
	for i := 0; i < n; i++ {
		c[i].Close()
	}
}

// Set pairs the finger-pose overlays with the digit overlays.
type Set struct {
	Fingers *Collection
	Digits  *Collection

	FingerAt overlay.Placement
	DigitAt  overlay.Placement
}

// Options configures Load.
type Options struct {
	FingerDir string
	DigitDir  string
	Width     int
	Height    int
	FingerAt  overlay.Placement
	DigitAt   overlay.Placement
}

// Load reads both collections and checks that their placements fit a frame
// of frameWidth x frameHeight.
func Load(opts Options, frameWidth, frameHeight int, logger *slog.Logger) (*Set, error) {
	fingerSet, err := LoadDir(opts.FingerDir, opts.Height, opts.Width)
	if err != nil {
		return nil, fmt.Errorf("finger overlays: %w", err)
	}

	digitSet, err := LoadDir(opts.DigitDir, opts.Height, opts.Width)
	if err != nil {
		fingerSet.Close()
		return nil, fmt.Errorf("digit overlays: %w", err)
	}

	s := &Set{
		Fingers:  fingerSet,
		Digits:   digitSet,
		FingerAt: opts.FingerAt,
		DigitAt:  opts.DigitAt,
	}
	if err := s.Validate(frameWidth, frameHeight); err != nil {
		s.Close()
		return nil, err
	}

	logger.Info("overlays loaded",
		"fingers", opts.FingerDir,
		"digits", opts.DigitDir,
		"size", fmt.Sprintf("%dx%d", opts.Width, opts.Height))

	return s, nil
}

// Validate checks that both overlay slots lie inside the frame.
func (s *Set) Validate(frameWidth, frameHeight int) error {
	f := s.Fingers[0]
	if err := s.FingerAt.Fits(f.Rows(), f.Cols(), frameHeight, frameWidth); err != nil {
		return fmt.Errorf("finger overlay placement: %w", err)
	}
	d := s.Digits[0]
	if err := s.DigitAt.Fits(d.Rows(), d.Cols(), frameHeight, frameWidth); err != nil {
		return fmt.Errorf("digit overlay placement: %w", err)
	}
	return nil
}

// Select returns the finger-pose and digit overlays for count.
func (s *Set) Select(count fingers.Count) (finger, digit gocv.Mat, err error) {
	if finger, err = s.Fingers.At(count); err != nil {
		return gocv.Mat{}, gocv.Mat{}, err
	}
	if digit, err = s.Digits.At(count); err != nil {
		return gocv.Mat{}, gocv.Mat{}, err
	}
	return finger, digit, nil
}

// Apply composites both overlays for count onto frame.
func (s *Set) Apply(frame *gocv.Mat, count fingers.Count) error {
	finger, digit, err := s.Select(count)
	if err != nil {
		return err
	}
	if err := overlay.CompositeAt(frame, finger, s.FingerAt); err != nil {
		return fmt.Errorf("finger overlay: %w", err)
	}
	if err := overlay.CompositeAt(frame, digit, s.DigitAt); err != nil {
		return fmt.Errorf("digit overlay: %w", err)
	}
	return nil
}

// Close releases both collections.
func (s *Set) Close() {
	if s.Fingers != nil {
		s.Fingers.Close()
	}
	if s.Digits != nil {
		s.Digits.Close()
	}
}
