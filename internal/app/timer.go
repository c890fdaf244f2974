package app

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultTimerWindow is the number of frame intervals averaged by FrameTimer.
const DefaultTimerWindow = 30

// FrameTimer measures the frame rate over a sliding window of intervals.
type FrameTimer struct {
	mu        sync.Mutex
	last      time.Time
	intervals []float64 // seconds
	next      int
	full      bool
	now       func() time.Time
}

// NewFrameTimer returns a timer averaging the last window intervals.
func NewFrameTimer(window int) *FrameTimer {
	if window <= 0 {
		window = DefaultTimerWindow
	}
	return &FrameTimer{
		intervals: make([]float64, window),
		now:       time.Now,
	}
}

// Tick marks the end of a frame.
func (t *FrameTimer) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.last.IsZero() {
		t.intervals[t.next] = now.Sub(t.last).Seconds()
		t.next++
		if t.next == len(t.intervals) {
			t.next = 0
			t.full = true
		}
	}
	t.last = now
}

// FPS returns frames per second over the window, or 0 before two ticks.
func (t *FrameTimer) FPS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.intervals[:t.next]
	if t.full {
		samples = t.intervals
	}
	if len(samples) == 0 {
		return 0
	}

	mean := stat.Mean(samples, nil)
	if mean <= 0 {
		return 0
	}
	return 1 / mean
}
