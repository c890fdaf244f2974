// Package detector provides hand detection interfaces and landmark types.
package detector

import "errors"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// ErrMalformedLandmarks is returned when the detector reports a hand that does
// not carry exactly NumLandmarks points.
var ErrMalformedLandmarks = errors.New("malformed landmark set")

// Point3D represents a normalized point as reported by MediaPipe.
// X and Y are fractions of the frame width and height.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Landmark is a single hand point in frame pixel coordinates.
type Landmark struct {
	ID int `json:"id"`
	X  int `json:"x"`
	Y  int `json:"y"`
}

// LandmarkSet holds all 21 landmarks of one hand, indexed by landmark ID.
type LandmarkSet [NumLandmarks]Landmark

// Pixels converts the normalized landmarks into pixel coordinates for a frame
// of the given size. Coordinates are truncated towards zero and clamped to
// the frame so that every landmark stays addressable.
func (h *HandLandmarks) Pixels(width, height int) *LandmarkSet {
	if h == nil {
		return nil
	}

	var set LandmarkSet
	for i, p := range h.Points {
		set[i] = Landmark{
			ID: i,
			X:  clamp(int(p.X*float64(width)), width),
			Y:  clamp(int(p.Y*float64(height)), height),
		}
	}
	return &set
}

// clamp bounds v to [0, limit-1]. A non-positive limit yields 0.
func clamp(v, limit int) int {
	if v < 0 || limit <= 0 {
		return 0
	}
	if v >= limit {
		return limit - 1
	}
	return v
}
