package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Event is a single timeline entry. Owned by the CRUD layer; the engine
// treats events as immutable input.
type Event struct {
	ID            string
	Title         string
	StartDate     time.Time
	EndDate       *time.Time
	Description   string
	Category      string
	Era           string
	RawTranscript string
	CreatedAt     time.Time
}

// Tag is a label attached to an event, with the confidence it was
// assigned at (1.0 for manual tags)
type Tag struct {
	Name       string
	Confidence float64
}

// GetEvent retrieves an event by ID
func (s *DB) GetEvent(id string) (*Event, error) {
	row := s.db.QueryRow(`
		SELECT id, title, start_date, end_date, description, category, era, raw_transcript, created_at
		FROM events WHERE id = ?
	`, id)
	return scanEvent(row)
}

// ListEvents retrieves all events ordered by start date
func (s *DB) ListEvents() ([]*Event, error) {
	rows, err := s.db.Query(`
		SELECT id, title, start_date, end_date, description, category, era, raw_transcript, created_at
		FROM events ORDER BY start_date ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// ListEventIDs returns all event IDs in ascending order
func (s *DB) ListEventIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM events ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PutEvent inserts or replaces an event. Belongs to the CRUD layer; kept on
// the store so cmds and tests can seed a timeline.
func (s *DB) PutEvent(e *Event) error {
	if e.ID == "" {
		return fmt.Errorf("event ID is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO events (id, title, start_date, end_date, description, category, era, raw_transcript, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			description = excluded.description,
			category = excluded.category,
			era = excluded.era,
			raw_transcript = excluded.raw_transcript
	`,
		e.ID, e.Title, e.StartDate, nullableTime(e.EndDate), nullString(e.Description),
		e.Category, nullString(e.Era), nullString(e.RawTranscript), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// AddTag attaches a tag to an event
func (s *DB) AddTag(eventID, tag string, confidence float64) error {
	_, err := s.db.Exec(`
		INSERT INTO event_tags (event_id, tag, confidence)
		VALUES (?, ?, ?)
		ON CONFLICT(event_id, tag) DO UPDATE SET confidence = excluded.confidence
	`, eventID, tag, confidence)
	if err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}
	return nil
}

// TagsForEvent returns the tags attached to one event
func (s *DB) TagsForEvent(eventID string) ([]Tag, error) {
	m, err := s.TagsForEvents([]string{eventID})
	if err != nil {
		return nil, err
	}
	return m[eventID], nil
}

// TagsForEvents returns tags for a set of events, keyed by event ID
func (s *DB) TagsForEvents(eventIDs []string) (map[string][]Tag, error) {
	result := make(map[string][]Tag)
	if len(eventIDs) == 0 {
		return result, nil
	}

	// Expand placeholders; the candidate sets here are small (topK capped)
	query := `SELECT event_id, tag, confidence FROM event_tags WHERE event_id IN (?` +
		repeatPlaceholder(len(eventIDs)-1) + `) ORDER BY event_id, tag`
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID string
		var tag Tag
		if err := rows.Scan(&eventID, &tag.Name, &tag.Confidence); err != nil {
			return nil, err
		}
		result[eventID] = append(result[eventID], tag)
	}
	return result, rows.Err()
}

func repeatPlaceholder(n int) string {
	var out string
	for i := 0; i < n; i++ {
		out += ",?"
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var endDate sql.NullTime
	var description, era, transcript sql.NullString

	err := row.Scan(&e.ID, &e.Title, &e.StartDate, &endDate, &description, &e.Category, &era, &transcript, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	if endDate.Valid {
		t := endDate.Time
		e.EndDate = &t
	}
	e.Description = description.String
	e.Era = era.String
	e.RawTranscript = transcript.String
	return &e, nil
}

func scanEventRows(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
