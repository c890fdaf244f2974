package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// KeyEscape is the key code that ends the display loop.
const KeyEscape = 27

// Sink receives every processed frame. Sinks must not keep the Mat after
// Write returns.
type Sink interface {
	Write(frame *gocv.Mat) error
	Close() error
}

// Display shows frames in a window and reports the key pressed while the
// frame was on screen, or -1 when none was.
type Display interface {
	Show(frame *gocv.Mat) (key int, err error)
	Close() error
}

// Recorder writes frames to a video file.
type Recorder struct {
	writer *gocv.VideoWriter
	path   string
}

// NewRecorder opens path for writing with the mp4v codec.
func NewRecorder(path string, fps float64, width, height int) (*Recorder, error) {
	writer, err := gocv.VideoWriterFile(path, "mp4v", fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("open video writer: %w", err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("open video writer: %s not writable", path)
	}
	return &Recorder{writer: writer, path: path}, nil
}

// Path returns the output file.
func (r *Recorder) Path() string {
	return r.path
}

func (r *Recorder) Write(frame *gocv.Mat) error {
	return r.writer.Write(*frame)
}

func (r *Recorder) Close() error {
	return r.writer.Close()
}

// Window is a Display backed by an OpenCV HighGUI window. On macOS it must be
// used from the main thread.
type Window struct {
	window *gocv.Window
	delay  int
}

// NewWindow opens a window titled title. Each Show waits up to delayMs for a
// key press.
func NewWindow(title string, delayMs int) *Window {
	if delayMs <= 0 {
		delayMs = 1
	}
	return &Window{window: gocv.NewWindow(title), delay: delayMs}
}

func (w *Window) Show(frame *gocv.Mat) (int, error) {
	w.window.IMShow(*frame)
	return w.window.WaitKey(w.delay), nil
}

func (w *Window) Close() error {
	return w.window.Close()
}

// MockDisplay records shown frames and replays scripted key presses.
type MockDisplay struct {
	mu     sync.Mutex
	keys   []int
	shown  int
	closed bool
}

// NewMockDisplay returns a display that answers the n-th Show with keys[n],
// and -1 once keys run out.
func NewMockDisplay(keys ...int) *MockDisplay {
	return &MockDisplay{keys: keys}
}

func (d *MockDisplay) Show(frame *gocv.Mat) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := -1
	if d.shown < len(d.keys) {
		key = d.keys[d.shown]
	}
	d.shown++
	return key, nil
}

func (d *MockDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Shown returns how many frames were displayed.
func (d *MockDisplay) Shown() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

// Closed reports whether Close was called.
func (d *MockDisplay) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
