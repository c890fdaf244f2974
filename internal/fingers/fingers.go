// Package fingers decides which fingers of a detected hand are extended.
package fingers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayusman/fingercount/internal/detector"
)

// Finger identifies one of the five fingers, thumb first.
type Finger int

const (
	Thumb Finger = iota
	Index
	Middle
	Ring
	Pinky
	NumFingers
)

// NumCounts is the number of distinct finger counts (0 through 5).
const NumCounts = int(NumFingers) + 1

var fingerNames = [NumFingers]string{"thumb", "index", "middle", "ring", "pinky"}

func (f Finger) String() string {
	if f < 0 || f >= NumFingers {
		return fmt.Sprintf("Finger(%d)", int(f))
	}
	return fingerNames[f]
}

// Joint pairs the landmark compared against a reference landmark to decide
// whether a finger is open.
type Joint struct {
	Finger    Finger
	Tip       int
	Reference int
}

// Joints maps every finger to its tip and reference landmark.
// The thumb is compared against its IP joint, the other fingers against
// their PIP joint.
var Joints = [NumFingers]Joint{
	{Finger: Thumb, Tip: detector.ThumbTip, Reference: detector.ThumbIP},
	{Finger: Index, Tip: detector.IndexTip, Reference: detector.IndexPIP},
	{Finger: Middle, Tip: detector.MiddleTip, Reference: detector.MiddlePIP},
	{Finger: Ring, Tip: detector.RingTip, Reference: detector.RingPIP},
	{Finger: Pinky, Tip: detector.PinkyTip, Reference: detector.PinkyPIP},
}

// ErrCountRange is returned when a finger count falls outside [0, 5].
var ErrCountRange = errors.New("finger count out of range")

// Count is the number of open fingers, always in [0, 5].
type Count int

// NewCount validates n and returns it as a Count.
func NewCount(n int) (Count, error) {
	c := Count(n)
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrCountRange, n)
	}
	return c, nil
}

// Valid reports whether c lies in [0, 5].
func (c Count) Valid() bool {
	return c >= 0 && int(c) < NumCounts
}

// Vector holds the open state of each finger, indexed by Finger.
type Vector [NumFingers]bool

// Count returns the number of open fingers.
func (v Vector) Count() Count {
	var n Count
	for _, open := range v {
		if open {
			n++
		}
	}
	return n
}

// String renders the vector as five digits, e.g. "11000".
func (v Vector) String() string {
	var b strings.Builder
	for _, open := range v {
		if open {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// State is the classification result for one frame.
// The zero State is undetermined: no hand was seen.
type State struct {
	Fingers    Vector `json:"fingers"`
	Count      Count  `json:"count"`
	Determined bool   `json:"determined"`
}
