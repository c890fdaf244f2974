package store

import (
	"database/sql"
	"fmt"
	"time"
)

// MaxCount is the highest finger count an event can hold.
const MaxCount = 5

// CountEvent records a change of the detected finger count.
type CountEvent struct {
	ID         int64
	SessionID  string
	Count      int
	Fingers    string // open state per finger, thumb first, e.g. "11000"
	RecordedAt time.Time
}

// EventRepository provides operations on count events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the count event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record inserts e and fills in its ID and, when unset, its timestamp.
func (r *EventRepository) Record(e *CountEvent) error {
	if e.Count < 0 || e.Count > MaxCount {
		return fmt.Errorf("count %d out of range [0,%d]", e.Count, MaxCount)
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO count_events (session_id, count, fingers, recorded_at) VALUES (?, ?, ?, ?)`,
		e.SessionID, e.Count, e.Fingers, e.RecordedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListBySession returns the events of a session in the order they happened.
func (r *EventRepository) ListBySession(sessionID string) ([]CountEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, count, fingers, recorded_at
		 FROM count_events
		 WHERE session_id = ?
		 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CountEvent
	for rows.Next() {
		var e CountEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Count, &e.Fingers, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Histogram returns how many events of a session landed on each count.
func (r *EventRepository) Histogram(sessionID string) ([MaxCount + 1]int, error) {
	var hist [MaxCount + 1]int

	rows, err := r.db.Query(
		`SELECT count, COUNT(*) FROM count_events WHERE session_id = ? GROUP BY count`,
		sessionID,
	)
	if err != nil {
		return hist, err
	}
	defer rows.Close()

	for rows.Next() {
		var count, n int
		if err := rows.Scan(&count, &n); err != nil {
			return hist, err
		}
		if count >= 0 && count <= MaxCount {
			hist[count] = n
		}
	}

	return hist, rows.Err()
}
