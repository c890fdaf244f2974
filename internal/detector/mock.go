package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// fingerChains lists the four joints of each finger from base to tip,
// thumb first.
var fingerChains = [5][4]int{
	{ThumbCMC, ThumbMCP, ThumbIP, ThumbTip},
	{IndexMCP, IndexPIP, IndexDIP, IndexTip},
	{MiddleMCP, MiddlePIP, MiddleDIP, MiddleTip},
	{RingMCP, RingPIP, RingDIP, RingTip},
	{PinkyMCP, PinkyPIP, PinkyDIP, PinkyTip},
}

// PoseLandmarks returns a right hand held upright, palm towards the camera,
// with each finger extended or curled as given (thumb, index, middle, ring,
// pinky). Coordinates are normalized like MediaPipe output.
func PoseLandmarks(open [5]bool) HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8}

	// Thumb sticks out sideways when open and folds back across the palm when closed.
	thumb := fingerChains[0]
	if open[0] {
		landmarks.Points[thumb[0]] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
		landmarks.Points[thumb[1]] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
		landmarks.Points[thumb[2]] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
		landmarks.Points[thumb[3]] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}
	} else {
		landmarks.Points[thumb[0]] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
		landmarks.Points[thumb[1]] = Point3D{X: 0.60, Y: 0.70, Z: 0.0}
		landmarks.Points[thumb[2]] = Point3D{X: 0.58, Y: 0.66, Z: -0.02}
		landmarks.Points[thumb[3]] = Point3D{X: 0.53, Y: 0.66, Z: -0.03}
	}

	// Index to pinky, spread from right to left.
	baseX := [5]float64{0, 0.55, 0.50, 0.45, 0.40}
	for f := 1; f < 5; f++ {
		chain := fingerChains[f]
		x := baseX[f]
		if open[f] {
			landmarks.Points[chain[0]] = Point3D{X: x, Y: 0.68}
			landmarks.Points[chain[1]] = Point3D{X: x, Y: 0.55}
			landmarks.Points[chain[2]] = Point3D{X: x, Y: 0.45}
			landmarks.Points[chain[3]] = Point3D{X: x, Y: 0.35}
		} else {
			landmarks.Points[chain[0]] = Point3D{X: x, Y: 0.70, Z: -0.02}
			landmarks.Points[chain[1]] = Point3D{X: x, Y: 0.66, Z: -0.05}
			landmarks.Points[chain[2]] = Point3D{X: x - 0.02, Y: 0.70, Z: -0.04}
			landmarks.Points[chain[3]] = Point3D{X: x - 0.03, Y: 0.73, Z: -0.02}
		}
	}

	return landmarks
}

// OpenPalmLandmarks returns a preset hand with all five fingers extended.
func OpenPalmLandmarks() HandLandmarks {
	return PoseLandmarks([5]bool{true, true, true, true, true})
}

// FistLandmarks returns a preset hand with every finger curled.
func FistLandmarks() HandLandmarks {
	return PoseLandmarks([5]bool{})
}
