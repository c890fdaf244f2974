package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ayusman/fingercount/internal/assets"
	"github.com/ayusman/fingercount/internal/capture"
	"github.com/ayusman/fingercount/internal/detector"
	"github.com/ayusman/fingercount/internal/fingers"
	"github.com/ayusman/fingercount/internal/overlay"
	"github.com/ayusman/fingercount/internal/store"
	"gocv.io/x/gocv"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	testWidth       = 640
	testHeight      = 480
	testOverlaySize = 200
)

// testOverlays builds an in-memory overlay set. Finger overlay i is opaque
// blue 10*i+1, digit overlay i is opaque green 10*i+1.
func testOverlays(t *testing.T) *assets.Set {
	t.Helper()

	var fingerSet, digitSet assets.Collection
	for i := 0; i < fingers.NumCounts; i++ {
		v := float64(10*i + 1)
		fingerSet[i] = gocv.NewMatWithSize(testOverlaySize, testOverlaySize, gocv.MatTypeCV8UC4)
		fingerSet[i].SetTo(gocv.NewScalar(v, 0, 0, 255))
		digitSet[i] = gocv.NewMatWithSize(testOverlaySize, testOverlaySize, gocv.MatTypeCV8UC4)
		digitSet[i].SetTo(gocv.NewScalar(0, v, 0, 255))
	}

	s := &assets.Set{
		Fingers:  &fingerSet,
		Digits:   &digitSet,
		FingerAt: assets.FingerPlacement,
		DigitAt:  assets.DigitPlacement,
	}
	t.Cleanup(s.Close)
	return s
}

func blackFrame() gocv.Mat {
	m := gocv.NewMatWithSize(testHeight, testWidth, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return m
}

// pixelAt returns the BGR pixel at (row, col) of a CV8UC3 frame.
func pixelAt(t *testing.T, frame *gocv.Mat, row, col int) [3]uint8 {
	t.Helper()
	data, err := frame.DataPtrUint8()
	if err != nil {
		t.Fatalf("DataPtrUint8() error = %v", err)
	}
	i := (row*frame.Cols() + col) * 3
	return [3]uint8{data[i], data[i+1], data[i+2]}
}

func newTestApp(t *testing.T, det detector.Detector, cam capture.Camera, display capture.Display) *App {
	t.Helper()

	classifier, err := fingers.NewClassifier(fingers.RightHandUpright)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	if cam == nil {
		cam = capture.NewMockCamera(nil, false)
	}

	a, err := New(Config{
		Camera:     cam,
		Detector:   det,
		Classifier: classifier,
		Overlays:   testOverlays(t),
		Width:      testWidth,
		Height:     testHeight,
		Display:    display,
		HideFPS:    true,
		Logger:     discard,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestNew_RequiresCollaborators(t *testing.T) {
	classifier, _ := fingers.NewClassifier(fingers.RightHandUpright)
	full := Config{
		Camera:     capture.NewMockCamera(nil, false),
		Detector:   detector.NewMockDetector(),
		Classifier: classifier,
		Overlays:   &assets.Set{},
	}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"camera", func(c *Config) { c.Camera = nil }},
		{"detector", func(c *Config) { c.Detector = nil }},
		{"classifier", func(c *Config) { c.Classifier = nil }},
		{"overlays", func(c *Config) { c.Overlays = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := full
			tt.modify(&c)
			if _, err := New(c); err == nil {
				t.Errorf("New() without %s should fail", tt.name)
			}
		})
	}

	a, err := New(full)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !a.IsEnabled() {
		t.Error("new app should be enabled")
	}
}

func TestProcessFrame_CompositesOverlaysForCount(t *testing.T) {
	for count := 0; count < fingers.NumCounts; count++ {
		t.Run(fmt.Sprintf("count %d", count), func(t *testing.T) {
			var open [fingers.NumFingers]bool
			for i := 0; i < count; i++ {
				open[i] = true
			}

			det := detector.NewMockDetector()
			det.SetHands([]detector.HandLandmarks{detector.PoseLandmarks(open)})
			a := newTestApp(t, det, nil, nil)

			frame := blackFrame()
			defer frame.Close()

			state := a.ProcessFrame(&frame)
			if !state.Determined {
				t.Fatal("state should be determined")
			}
			if int(state.Count) != count {
				t.Fatalf("Count = %d, want %d", state.Count, count)
			}

			want := uint8(10*count + 1)
			finger := pixelAt(t, &frame, assets.FingerPlacement.Row, assets.FingerPlacement.Col)
			if finger != [3]uint8{want, 0, 0} {
				t.Errorf("finger slot pixel = %v, want [%d 0 0]", finger, want)
			}
			digit := pixelAt(t, &frame, assets.DigitPlacement.Row+testOverlaySize-1, assets.DigitPlacement.Col+testOverlaySize-1)
			if digit != [3]uint8{0, want, 0} {
				t.Errorf("digit slot pixel = %v, want [0 %d 0]", digit, want)
			}
			outside := pixelAt(t, &frame, 0, 0)
			if outside != [3]uint8{0, 0, 0} {
				t.Errorf("pixel outside both slots = %v, want black", outside)
			}

			if a.LastState() != state {
				t.Errorf("LastState() = %+v, want %+v", a.LastState(), state)
			}
		})
	}
}

func TestProcessFrame_TwoFingers(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{
		detector.PoseLandmarks([fingers.NumFingers]bool{true, true, false, false, false}),
	})
	a := newTestApp(t, det, nil, nil)

	frame := blackFrame()
	defer frame.Close()

	state := a.ProcessFrame(&frame)
	want := fingers.State{
		Fingers:    fingers.Vector{true, true, false, false, false},
		Count:      2,
		Determined: true,
	}
	if state != want {
		t.Fatalf("ProcessFrame() = %+v, want %+v", state, want)
	}
	if got := pixelAt(t, &frame, 100, 100); got != [3]uint8{21, 0, 0} {
		t.Errorf("finger slot pixel = %v, want [21 0 0]", got)
	}
	if got := pixelAt(t, &frame, 300, 100); got != [3]uint8{0, 21, 0} {
		t.Errorf("digit slot pixel = %v, want [0 21 0]", got)
	}
}

func TestProcessFrame_LeavesFrameUntouched(t *testing.T) {
	tests := []struct {
		name  string
		setup func(det *detector.MockDetector, a *App)
	}{
		{
			name:  "no hand",
			setup: func(det *detector.MockDetector, a *App) {},
		},
		{
			name: "malformed landmarks",
			setup: func(det *detector.MockDetector, a *App) {
				det.SetError(fmt.Errorf("hand 0: %w", detector.ErrMalformedLandmarks))
			},
		},
		{
			name: "detector failure",
			setup: func(det *detector.MockDetector, a *App) {
				det.SetError(errors.New("service gone"))
			},
		},
		{
			name: "detection disabled",
			setup: func(det *detector.MockDetector, a *App) {
				det.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
				a.SetEnabled(false)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := detector.NewMockDetector()
			a := newTestApp(t, det, nil, nil)
			tt.setup(det, a)

			frame := blackFrame()
			defer frame.Close()

			state := a.ProcessFrame(&frame)
			if state.Determined {
				t.Errorf("state = %+v, want undetermined", state)
			}
			for _, p := range []overlay.Placement{assets.FingerPlacement, assets.DigitPlacement} {
				if got := pixelAt(t, &frame, p.Row, p.Col); got != [3]uint8{0, 0, 0} {
					t.Errorf("pixel at %+v = %v, want black", p, got)
				}
			}
		})
	}
}

func TestProcessFrame_DisabledSkipsDetector(t *testing.T) {
	det := detector.NewMockDetector()
	a := newTestApp(t, det, nil, nil)
	a.SetEnabled(false)

	frame := blackFrame()
	defer frame.Close()
	a.ProcessFrame(&frame)

	if det.Calls() != 0 {
		t.Errorf("Detect called %d times while disabled", det.Calls())
	}
}

func TestProcessFrame_DrawsFPS(t *testing.T) {
	det := detector.NewMockDetector()
	a := newTestApp(t, det, nil, nil)
	a.config.HideFPS = false

	frame := blackFrame()
	defer frame.Close()
	a.ProcessFrame(&frame)

	// The label is drawn in pure blue somewhere near its origin.
	found := false
	for row := 15; row <= 32 && !found; row++ {
		for col := 18; col <= 120 && !found; col++ {
			p := pixelAt(t, &frame, row, col)
			found = p[0] > 0 && p[1] == 0 && p[2] == 0
		}
	}
	if !found {
		t.Error("no FPS label pixels near (20, 30)")
	}
}

// recordingObserver collects the states it observes.
type recordingObserver struct {
	mu     sync.Mutex
	states []fingers.State
}

func (o *recordingObserver) Observe(frame *gocv.Mat, state fingers.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.states)
}

// countingSink counts written frames.
type countingSink struct {
	writes int
	closed bool
}

func (s *countingSink) Write(frame *gocv.Mat) error {
	s.writes++
	return nil
}

func (s *countingSink) Close() error {
	s.closed = true
	return nil
}

func testFrames(t *testing.T, n int) []*gocv.Mat {
	t.Helper()
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := blackFrame()
		frames[i] = &m
	}
	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})
	return frames
}

func TestRun_StopsWhenFramesRunOut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
	cam := capture.NewMockCamera(testFrames(t, 3), false)
	display := capture.NewMockDisplay()
	a := newTestApp(t, det, cam, display)

	sink := &countingSink{}
	a.config.Sinks = []capture.Sink{sink}
	obs := &recordingObserver{}
	a.AddObserver(obs)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if display.Shown() != 3 {
		t.Errorf("display showed %d frames, want 3", display.Shown())
	}
	if sink.writes != 3 {
		t.Errorf("sink got %d frames, want 3", sink.writes)
	}
	if obs.len() != 3 {
		t.Fatalf("observer saw %d frames, want 3", obs.len())
	}
	for i, s := range obs.states {
		if !s.Determined || s.Count != 5 {
			t.Errorf("frame %d state = %+v, want five fingers", i, s)
		}
	}
	if !display.Closed() || !sink.closed {
		t.Error("display and sink should be closed after Run")
	}
	if cam.IsOpen() {
		t.Error("camera should be closed after Run")
	}
}

func TestRun_StopsOnEscape(t *testing.T) {
	det := detector.NewMockDetector()
	cam := capture.NewMockCamera(testFrames(t, 1), true)
	display := capture.NewMockDisplay(-1, 'a', capture.KeyEscape, -1)
	a := newTestApp(t, det, cam, display)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if display.Shown() != 3 {
		t.Errorf("display showed %d frames, want 3", display.Shown())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	det := detector.NewMockDetector()
	cam := capture.NewMockCamera(testFrames(t, 1), true)
	a := newTestApp(t, det, cam, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var seen int
	a.AddObserver(ObserverFunc(func(frame *gocv.Mat, state fingers.State) {
		seen++
		if seen == 5 {
			cancel()
		}
	}))

	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if seen != 5 {
		t.Errorf("observer saw %d frames, want 5", seen)
	}
}

func TestRun_RejectsUnexpectedFrameSize(t *testing.T) {
	tests := []struct {
		name          string
		rows, cols    int
		width, height int
	}{
		{name: "differs from configured size", rows: 720, cols: 1280, width: testWidth, height: testHeight},
		{name: "too small for overlays", rows: 240, cols: 320},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := gocv.NewMatWithSize(tt.rows, tt.cols, gocv.MatTypeCV8UC3)
			defer m.Close()
			cam := capture.NewMockCamera([]*gocv.Mat{&m}, true)
			display := capture.NewMockDisplay()
			a := newTestApp(t, detector.NewMockDetector(), cam, display)
			a.config.Width, a.config.Height = tt.width, tt.height

			err := a.Run(context.Background())
			if !errors.Is(err, overlay.ErrDimensionMismatch) {
				t.Fatalf("Run() error = %v, want %v", err, overlay.ErrDimensionMismatch)
			}
			if display.Shown() != 0 {
				t.Errorf("display showed %d frames, want 0", display.Shown())
			}
			if cam.IsOpen() {
				t.Error("camera should be closed after Run")
			}
		})
	}
}

func TestRun_FPSAdvances(t *testing.T) {
	det := detector.NewMockDetector()
	cam := capture.NewMockCamera(testFrames(t, 10), false)
	a := newTestApp(t, det, cam, nil)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if a.FPS() <= 0 {
		t.Errorf("FPS() = %f after 10 frames, want > 0", a.FPS())
	}
}

func TestHistory_RecordsCountChanges(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, err := store.New(t.TempDir() + "/history.db")
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	h, err := NewHistory(st, 0, discard)
	if err != nil {
		t.Fatalf("NewHistory() error = %v", err)
	}

	two := fingers.State{Fingers: fingers.Vector{true, true}, Count: 2, Determined: true}
	three := fingers.State{Fingers: fingers.Vector{true, true, true}, Count: 3, Determined: true}
	none := fingers.State{}

	// 2, 2, none, 2, 3, 3, none: only the first 2 and the 3 are changes.
	for _, s := range []fingers.State{two, two, none, two, three, three, none} {
		h.Observe(nil, s)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events, err := st.Events().ListBySession(h.SessionID())
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Count != 2 || events[0].Fingers != "11000" {
		t.Errorf("events[0] = %+v, want count 2 fingers 11000", events[0])
	}
	if events[1].Count != 3 || events[1].Fingers != "11100" {
		t.Errorf("events[1] = %+v, want count 3 fingers 11100", events[1])
	}

	sess, err := st.Sessions().GetByID(h.SessionID())
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.Frames != 7 || sess.HandFrames != 5 {
		t.Errorf("frames = %d/%d, want 7/5", sess.Frames, sess.HandFrames)
	}
	if sess.EndedAt == nil {
		t.Error("session should be ended")
	}
}
