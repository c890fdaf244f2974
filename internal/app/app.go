// Package app runs the finger counting frame loop.
package app

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ayusman/fingercount/internal/assets"
	"github.com/ayusman/fingercount/internal/capture"
	"github.com/ayusman/fingercount/internal/detector"
	"github.com/ayusman/fingercount/internal/fingers"
	"gocv.io/x/gocv"
)

// MaxReadFailures is how many consecutive failed camera reads end the loop.
const MaxReadFailures = 100

// Observer is notified after every processed frame, after the frame was
// composited and shown. Observers must not keep the Mat.
type Observer interface {
	Observe(frame *gocv.Mat, state fingers.State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(frame *gocv.Mat, state fingers.State)

// Observe calls f.
func (f ObserverFunc) Observe(frame *gocv.Mat, state fingers.State) {
	f(frame, state)
}

// Config holds the collaborators of an App. Camera, Detector, Classifier and
// Overlays are required; Display, Sinks and Observers are optional.
type Config struct {
	Camera     capture.Camera
	Detector   detector.Detector
	Classifier *fingers.Classifier
	Overlays   *assets.Set

	// Width and Height are the frame size landmarks are scaled to. Zero
	// values use the size of each frame.
	Width  int
	Height int

	Display   capture.Display
	Sinks     []capture.Sink
	Observers []Observer

	// HideFPS disables the frame rate label.
	HideFPS bool

	Logger *slog.Logger
}

// App runs capture, detection, classification and compositing one frame at
// a time.
type App struct {
	config  Config
	logger  *slog.Logger
	timer   *FrameTimer
	enabled bool
	mu      sync.RWMutex

	lastState fingers.State
}

// New creates a new App with the given configuration.
func New(config Config) (*App, error) {
	if config.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if config.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	if config.Classifier == nil {
		return nil, errors.New("app: classifier is required")
	}
	if config.Overlays == nil {
		return nil, errors.New("app: overlays are required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &App{
		config:  config,
		logger:  logger,
		timer:   NewFrameTimer(DefaultTimerWindow),
		enabled: true,
	}, nil
}

// SetEnabled enables or disables hand detection. A disabled app still shows
// frames, without overlays.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether hand detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// AddObserver registers an observer. It must be called before Run.
func (a *App) AddObserver(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config.Observers = append(a.config.Observers, o)
}

// LastState returns the state of the most recently processed frame.
func (a *App) LastState() fingers.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastState
}

// FPS returns the measured frame rate.
func (a *App) FPS() float64 {
	return a.timer.FPS()
}
