package app

import (
	"log/slog"

	"github.com/ayusman/fingercount/internal/fingers"
	"github.com/ayusman/fingercount/internal/store"
	"gocv.io/x/gocv"
)

// historyFlushFrames is how many frames History counts before writing the
// session counters.
const historyFlushFrames = 100

// History writes a session and its count changes to the store.
type History struct {
	store   *store.Store
	session *store.Session
	logger  *slog.Logger

	last       fingers.State
	frames     int64
	handFrames int64
}

// NewHistory starts a new session for cameraID.
func NewHistory(st *store.Store, cameraID int, logger *slog.Logger) (*History, error) {
	sess, err := st.Sessions().Start(cameraID)
	if err != nil {
		return nil, err
	}
	logger.Info("history session started", "session", sess.ID)

	return &History{
		store:   st,
		session: sess,
		logger:  logger,
	}, nil
}

// SessionID returns the ID of the running session.
func (h *History) SessionID() string {
	return h.session.ID
}

// Observe records a count event when the determined count differs from the
// last determined one. Frames without a hand only bump the frame counter.
func (h *History) Observe(frame *gocv.Mat, state fingers.State) {
	h.frames++
	if state.Determined {
		h.handFrames++
		if !h.last.Determined || h.last.Count != state.Count {
			err := h.store.Events().Record(&store.CountEvent{
				SessionID: h.session.ID,
				Count:     int(state.Count),
				Fingers:   state.Fingers.String(),
			})
			if err != nil {
				h.logger.Warn("record count event", "err", err)
			}
		}
		h.last = state
	}

	if h.frames >= historyFlushFrames {
		h.flush()
	}
}

func (h *History) flush() {
	if h.frames == 0 {
		return
	}
	if err := h.store.Sessions().AddFrames(h.session.ID, h.frames, h.handFrames); err != nil {
		h.logger.Warn("update session counters", "err", err)
		return
	}
	h.frames = 0
	h.handFrames = 0
}

// Close flushes the counters and ends the session.
func (h *History) Close() error {
	h.flush()
	return h.store.Sessions().End(h.session.ID)
}
