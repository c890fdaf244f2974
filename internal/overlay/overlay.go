// Package overlay alpha-blends BGRA overlay images onto BGR video frames.
package overlay

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// Default overlay size in pixels.
const (
	DefaultWidth  = 200
	DefaultHeight = 200
)

// ErrDimensionMismatch is returned when an overlay, a frame or a placement
// region do not fit together.
var ErrDimensionMismatch = errors.New("overlay dimension mismatch")

// Placement is the top-left corner of an overlay inside a frame.
type Placement struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Fits reports an error wrapping ErrDimensionMismatch when a height x width
// region at p does not lie fully inside a frame of frameHeight x frameWidth.
func (p Placement) Fits(height, width, frameHeight, frameWidth int) error {
	if height <= 0 || width <= 0 {
		return fmt.Errorf("%w: empty region %dx%d", ErrDimensionMismatch, width, height)
	}
	if p.Row < 0 || p.Col < 0 {
		return fmt.Errorf("%w: negative placement (%d,%d)", ErrDimensionMismatch, p.Row, p.Col)
	}
	if p.Row+height > frameHeight || p.Col+width > frameWidth {
		return fmt.Errorf("%w: region %dx%d at (%d,%d) exceeds frame %dx%d",
			ErrDimensionMismatch, width, height, p.Row, p.Col, frameWidth, frameHeight)
	}
	return nil
}

// Composite blends the height x width BGRA overlay onto frame with its top-left
// corner at (row, col). For every pixel and each of the three colour channels:
//
//	dst = (a*src + (255-a)*dst) / 255
//
// where a is the overlay alpha, rounded to the nearest integer. Alpha 255
// replaces the frame pixel and alpha 0 leaves it untouched. The frame keeps
// three channels.
//
// Nothing is written when the overlay is not BGRA of exactly height x width,
// the frame is not BGR, or the region leaves the frame.
func Composite(frame *gocv.Mat, asset gocv.Mat, row, col, height, width int) error {
	if frame == nil || frame.Empty() {
		return fmt.Errorf("%w: empty frame", ErrDimensionMismatch)
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%w: frame has %d channels, want 3", ErrDimensionMismatch, frame.Channels())
	}
	if asset.Empty() || asset.Type() != gocv.MatTypeCV8UC4 {
		return fmt.Errorf("%w: overlay has %d channels, want 4", ErrDimensionMismatch, asset.Channels())
	}
	if asset.Rows() != height || asset.Cols() != width {
		return fmt.Errorf("%w: overlay is %dx%d, want %dx%d",
			ErrDimensionMismatch, asset.Cols(), asset.Rows(), width, height)
	}
	if err := (Placement{Row: row, Col: col}).Fits(height, width, frame.Rows(), frame.Cols()); err != nil {
		return err
	}

	dst, err := frame.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("frame data: %w", err)
	}
	src, err := asset.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("overlay data: %w", err)
	}

	blend(dst, frame.Cols(), src, row, col, height, width)
	return nil
}

// CompositeAt blends asset at p using the asset's own size.
func CompositeAt(frame *gocv.Mat, asset gocv.Mat, p Placement) error {
	return Composite(frame, asset, p.Row, p.Col, asset.Rows(), asset.Cols())
}

// blend works on raw interleaved buffers: dst is BGR with frameCols pixels
// per row, src is BGRA of exactly height x width.
func blend(dst []uint8, frameCols int, src []uint8, row, col, height, width int) {
	for y := 0; y < height; y++ {
		d := ((row+y)*frameCols + col) * 3
		s := y * width * 4
		for x := 0; x < width; x++ {
			a := uint32(src[s+3])
			switch a {
			case 0:
			case 255:
				dst[d] = src[s]
				dst[d+1] = src[s+1]
				dst[d+2] = src[s+2]
			default:
				inv := 255 - a
				for c := 0; c < 3; c++ {
					dst[d+c] = uint8((a*uint32(src[s+c]) + inv*uint32(dst[d+c]) + 127) / 255)
				}
			}
			d += 3
			s += 4
		}
	}
}
