package fingers

import (
	"errors"
	"fmt"

	"github.com/ayusman/fingercount/internal/detector"
)

// HandOrientation names the pose the classifier assumes the hand is held in.
type HandOrientation int

const (
	// RightHandUpright is a right hand with the palm facing the camera and the
	// fingers pointing up. The thumb is open when its tip is right of its IP
	// joint; the other fingers are open when their tip is above their PIP joint.
	// Left hands and rotated hands are misclassified under this orientation.
	RightHandUpright HandOrientation = iota
)

func (o HandOrientation) String() string {
	switch o {
	case RightHandUpright:
		return "right-upright"
	default:
		return fmt.Sprintf("HandOrientation(%d)", int(o))
	}
}

// ErrUnsupportedOrientation is returned for orientations the classifier has no
// rule for.
var ErrUnsupportedOrientation = errors.New("unsupported hand orientation")

// Classifier maps a hand's landmarks to the open state of each finger.
type Classifier struct {
	orientation HandOrientation
}

// NewClassifier returns a classifier for the given orientation.
func NewClassifier(orientation HandOrientation) (*Classifier, error) {
	if orientation != RightHandUpright {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOrientation, orientation)
	}
	return &Classifier{orientation: orientation}, nil
}

// Orientation returns the orientation the classifier was built for.
func (c *Classifier) Orientation() HandOrientation {
	return c.orientation
}

// Classify decides which fingers are open. A nil set means no hand was
// detected and yields an undetermined State.
//
// Ties between tip and reference count as closed.
func (c *Classifier) Classify(set *detector.LandmarkSet) State {
	if set == nil {
		return State{}
	}

	var v Vector
	for _, j := range Joints {
		tip, ref := set[j.Tip], set[j.Reference]
		if j.Finger == Thumb {
			v[j.Finger] = tip.X > ref.X
		} else {
			v[j.Finger] = tip.Y < ref.Y
		}
	}

	return State{
		Fingers:    v,
		Count:      v.Count(),
		Determined: true,
	}
}
