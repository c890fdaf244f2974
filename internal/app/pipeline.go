package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/ayusman/fingercount/internal/capture"
	"github.com/ayusman/fingercount/internal/detector"
	"github.com/ayusman/fingercount/internal/fingers"
	"github.com/ayusman/fingercount/internal/overlay"
	"gocv.io/x/gocv"
)

// fpsColor is the colour of the frame rate label.
var fpsColor = color.RGBA{R: 0, G: 0, B: 255, A: 0}

// Run is the frame loop. It opens the camera and processes frames until ctx
// is cancelled, the display reports the escape key, or the camera is
// exhausted. The first frame must match the configured size and hold both
// overlays, otherwise Run fails with overlay.ErrDimensionMismatch. Each frame is fully processed before the next one is read.
//
// Per frame:
// 1. Read a frame from the camera
// 2. Detect hand landmarks (first hand only)
// 3. Classify open fingers
// 4. Composite the finger-pose and digit overlays for the count
// 5. Draw the frame rate
// 6. Hand the frame to the display, sinks and observers
func (a *App) Run(ctx context.Context) error {
	if err := a.config.Camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer a.release()

	a.logger.Info("frame loop started", "press", "escape to exit")

	failures := 0
	sized := false
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("frame loop stopped", "reason", ctx.Err())
			return nil
		default:
		}

		frame, err := a.config.Camera.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrNoMoreFrames) || errors.Is(err, capture.ErrCameraNotOpen) {
				a.logger.Info("frame loop stopped", "reason", err)
				return nil
			}
			failures++
			if failures >= MaxReadFailures {
				return fmt.Errorf("camera failed %d times in a row: %w", failures, err)
			}
			a.logger.Debug("read frame", "err", err)
			continue
		}
		failures = 0

		if !sized {
			if err := a.checkFrameSize(frame); err != nil {
				frame.Close()
				return err
			}
			sized = true
		}

		quit := a.step(frame)
		frame.Close()

		if quit {
			a.logger.Info("frame loop stopped", "reason", "escape key")
			return nil
		}
	}
}

// checkFrameSize compares the first frame against the configured size and
// the overlay placements. Cameras may ignore the requested resolution.
func (a *App) checkFrameSize(frame *gocv.Mat) error {
	cols, rows := frame.Cols(), frame.Rows()
	if a.config.Width > 0 && a.config.Height > 0 && (cols != a.config.Width || rows != a.config.Height) {
		return fmt.Errorf("%w: camera delivers %dx%d frames, configured %dx%d",
			overlay.ErrDimensionMismatch, cols, rows, a.config.Width, a.config.Height)
	}
	if err := a.config.Overlays.Validate(cols, rows); err != nil {
		return fmt.Errorf("camera frame %dx%d: %w", cols, rows, err)
	}
	return nil
}

// release closes the camera, the display and every sink.
func (a *App) release() {
	if err := a.config.Camera.Close(); err != nil {
		a.logger.Warn("close camera", "err", err)
	}
	if a.config.Display != nil {
		if err := a.config.Display.Close(); err != nil {
			a.logger.Warn("close display", "err", err)
		}
	}
	for _, sink := range a.config.Sinks {
		if err := sink.Close(); err != nil {
			a.logger.Warn("close sink", "err", err)
		}
	}
}

// step processes one frame and dispatches it. It reports whether the user
// asked to quit.
func (a *App) step(frame *gocv.Mat) bool {
	state := a.ProcessFrame(frame)
	a.timer.Tick()

	quit := false
	if a.config.Display != nil {
		key, err := a.config.Display.Show(frame)
		if err != nil {
			a.logger.Warn("display frame", "err", err)
		}
		quit = key == capture.KeyEscape
	}

	for _, sink := range a.config.Sinks {
		if err := sink.Write(frame); err != nil {
			a.logger.Warn("write frame", "err", err)
		}
	}

	a.mu.RLock()
	observers := a.config.Observers
	a.mu.RUnlock()
	for _, o := range observers {
		o.Observe(frame, state)
	}

	return quit
}

// ProcessFrame detects, classifies and composites one frame in place and
// returns the finger state. Problems with a single frame are logged and leave
// the frame without overlays; they never end the loop.
func (a *App) ProcessFrame(frame *gocv.Mat) fingers.State {
	var state fingers.State

	if a.IsEnabled() {
		state = a.classify(frame)
		if state.Determined {
			if err := a.config.Overlays.Apply(frame, state.Count); err != nil {
				a.logger.Error("composite overlays", "count", state.Count, "err", err)
			}
		}
	}

	if !a.config.HideFPS {
		a.drawFPS(frame)
	}

	a.mu.Lock()
	a.lastState = state
	a.mu.Unlock()

	return state
}

func (a *App) classify(frame *gocv.Mat) fingers.State {
	hands, err := a.config.Detector.Detect(frame)
	if err != nil {
		if errors.Is(err, detector.ErrMalformedLandmarks) {
			a.logger.Warn("skipping frame with malformed landmarks", "err", err)
		} else {
			a.logger.Warn("detect hands", "err", err)
		}
		return fingers.State{}
	}

	width, height := a.config.Width, a.config.Height
	if width <= 0 || height <= 0 {
		width, height = frame.Cols(), frame.Rows()
	}

	state := a.config.Classifier.Classify(detector.First(hands, width, height))
	if state.Determined {
		a.logger.Debug("fingers", "open", state.Fingers.String(), "count", state.Count)
	}
	return state
}

func (a *App) drawFPS(frame *gocv.Mat) {
	label := fmt.Sprintf("FPS: %d", int(a.timer.FPS()))
	gocv.PutText(frame, label, image.Pt(20, 30), gocv.FontHersheyPlain, 1, fpsColor, 1)
}
