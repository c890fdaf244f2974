package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/fingercount/internal/store"
)

// SessionHandler serves the recorded sessions and their count events.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP routes requests for these paths:
//
//	/api/sessions
//	/api/sessions/{id}
//	/api/sessions/{id}/events
//	/api/sessions/{id}/histogram
//	/api/sessions/{id}/histogram.png
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")
	if path == "" {
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		h.get(w, id)
	case len(parts) == 2 && parts[1] == "events":
		h.events(w, id)
	case len(parts) == 2 && parts[1] == "histogram":
		h.histogram(w, id)
	case len(parts) == 2 && parts[1] == "histogram.png":
		h.histogramChart(w, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Response types

type sessionResponse struct {
	ID         string `json:"id"`
	CameraID   int    `json:"camera_id"`
	Frames     int64  `json:"frames"`
	HandFrames int64  `json:"hand_frames"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type eventResponse struct {
	ID         int64  `json:"id"`
	Count      int    `json:"count"`
	Fingers    string `json:"fingers"`
	RecordedAt string `json:"recorded_at"`
}

type listEventsResponse struct {
	SessionID string          `json:"session_id"`
	Events    []eventResponse `json:"events"`
}

type histogramResponse struct {
	SessionID string                 `json:"session_id"`
	Counts    [store.MaxCount + 1]int `json:"counts"`
}

func toSessionResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:         s.ID,
		CameraID:   s.CameraID,
		Frames:     s.Frames,
		HandFrames: s.HandFrames,
		StartedAt:  formatTime(s.StartedAt),
	}
	if s.EndedAt != nil {
		resp.EndedAt = formatTime(*s.EndedAt)
	}
	return resp
}

// list handles GET /api/sessions, newest first. ?limit=N caps the result.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toSessionResponse(s))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, id string) {
	sess, ok := h.lookup(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// events handles GET /api/sessions/{id}/events.
func (h *SessionHandler) events(w http.ResponseWriter, id string) {
	if _, ok := h.lookup(w, id); !ok {
		return
	}

	events, err := h.store.Events().ListBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	response := listEventsResponse{
		SessionID: id,
		Events:    make([]eventResponse, 0, len(events)),
	}
	for _, e := range events {
		response.Events = append(response.Events, eventResponse{
			ID:         e.ID,
			Count:      e.Count,
			Fingers:    e.Fingers,
			RecordedAt: formatTime(e.RecordedAt),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// histogram handles GET /api/sessions/{id}/histogram.
func (h *SessionHandler) histogram(w http.ResponseWriter, id string) {
	if _, ok := h.lookup(w, id); !ok {
		return
	}

	counts, err := h.store.Events().Histogram(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build histogram")
		return
	}

	writeJSON(w, http.StatusOK, histogramResponse{SessionID: id, Counts: counts})
}

// lookup fetches a session and writes the error response when it fails.
func (h *SessionHandler) lookup(w http.ResponseWriter, id string) (*store.Session, bool) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return nil, false
	}
	return sess, true
}

// histogramChart handles GET /api/sessions/{id}/histogram.png.
func (h *SessionHandler) histogramChart(w http.ResponseWriter, id string) {
	if _, ok := h.lookup(w, id); !ok {
		return
	}

	counts, err := h.store.Events().Histogram(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build histogram")
		return
	}

	png, err := renderHistogram("Session "+id, counts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render histogram")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
