package server

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/fingercount/internal/fingers"
	"gocv.io/x/gocv"
)

// DefaultEncodeInterval limits how often the hub encodes a JPEG (~15 FPS).
const DefaultEncodeInterval = 66 * time.Millisecond

// Hub receives composited frames from the frame loop and fans them out to
// the stream and websocket handlers. It implements the frame loop's observer
// interface.
type Hub struct {
	mu       sync.Mutex
	jpeg     []byte
	seq      uint64
	frameCh  chan struct{} // closed and replaced on every new JPEG
	state    fingers.State
	subs     map[chan fingers.State]struct{}
	interval time.Duration
	encoded  time.Time
	now      func() time.Time
}

// NewHub returns a hub that encodes at most one frame per interval.
// A non-positive interval encodes every frame.
func NewHub(interval time.Duration) *Hub {
	return &Hub{
		frameCh:  make(chan struct{}),
		subs:     make(map[chan fingers.State]struct{}),
		interval: interval,
		now:      time.Now,
	}
}

// Observe publishes the frame and its finger state.
func (h *Hub) Observe(frame *gocv.Mat, state fingers.State) {
	h.publishState(state)

	h.mu.Lock()
	now := h.now()
	due := h.interval <= 0 || h.encoded.IsZero() || now.Sub(h.encoded) >= h.interval
	if due {
		h.encoded = now
	}
	h.mu.Unlock()

	if !due || frame == nil || frame.Empty() {
		return
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	h.mu.Lock()
	h.jpeg = data
	h.seq++
	close(h.frameCh)
	h.frameCh = make(chan struct{})
	h.mu.Unlock()
}

func (h *Hub) publishState(state fingers.State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if state == h.state {
		return
	}
	h.state = state
	for ch := range h.subs {
		// Keep only the newest state for slow readers.
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

// State returns the latest finger state.
func (h *Hub) State() fingers.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Latest returns the latest JPEG and its sequence number. The sequence is
// zero before the first frame.
func (h *Hub) Latest() ([]byte, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.jpeg, h.seq
}

// NextFrame blocks until a JPEG newer than after is available or ctx is done.
func (h *Hub) NextFrame(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		h.mu.Lock()
		if h.seq > after {
			data, seq := h.jpeg, h.seq
			h.mu.Unlock()
			return data, seq, nil
		}
		ch := h.frameCh
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-ch:
		}
	}
}

// Subscribe returns a channel receiving every state change and a function
// that unsubscribes. The channel is primed with the current state.
func (h *Hub) Subscribe() (<-chan fingers.State, func()) {
	ch := make(chan fingers.State, 1)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	ch <- h.state
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// Subscribers returns the number of state subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
