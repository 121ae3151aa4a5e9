package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RelationshipType classifies how two events relate
type RelationshipType string

const (
	RelCausal   RelationshipType = "causal"
	RelThematic RelationshipType = "thematic"
	RelTemporal RelationshipType = "temporal"
	RelPerson   RelationshipType = "person"
	RelLocation RelationshipType = "location"
	RelOther    RelationshipType = "other"
)

// ValidRelationshipType reports whether t is one of the six known types
func ValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelCausal, RelThematic, RelTemporal, RelPerson, RelLocation, RelOther:
		return true
	}
	return false
}

// CrossReference is an undirected, typed relationship between two events.
// EventID1 < EventID2 always holds; the pair is canonicalized on write so
// rediscovery in either direction hits the same row.
type CrossReference struct {
	ID           string
	EventID1     string
	EventID2     string
	Type         RelationshipType
	Confidence   float64
	Explanation  string
	DiscoveredAt time.Time
}

// CanonicalPair orders two event IDs into their canonical storage order
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// UpsertCrossReference inserts or overwrites the relationship between two
// events, canonicalizing the pair order first. Returns the reference ID,
// which is stable across rediscovery.
func (s *DB) UpsertCrossReference(eventIDA, eventIDB string, relType RelationshipType, confidence float64, explanation string) (string, error) {
	if eventIDA == "" || eventIDB == "" {
		return "", fmt.Errorf("both event IDs are required")
	}
	if eventIDA == eventIDB {
		return "", fmt.Errorf("cannot cross-reference event %s with itself", eventIDA)
	}
	if !ValidRelationshipType(relType) {
		return "", fmt.Errorf("unknown relationship type %q", relType)
	}

	id1, id2 := CanonicalPair(eventIDA, eventIDB)

	_, err := s.db.Exec(`
		INSERT INTO cross_references (id, event_id_1, event_id_2, relationship_type, confidence, explanation, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id_1, event_id_2) DO UPDATE SET
			relationship_type = excluded.relationship_type,
			confidence = excluded.confidence,
			explanation = excluded.explanation,
			discovered_at = excluded.discovered_at
	`, uuid.New().String(), id1, id2, string(relType), confidence, explanation, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to upsert cross-reference: %w", err)
	}

	var id string
	if err := s.db.QueryRow(`SELECT id FROM cross_references WHERE event_id_1 = ? AND event_id_2 = ?`, id1, id2).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read cross-reference id: %w", err)
	}
	return id, nil
}

// GetCrossReferencesForEvent returns every reference touching the event,
// highest confidence first
func (s *DB) GetCrossReferencesForEvent(eventID string) ([]*CrossReference, error) {
	rows, err := s.db.Query(`
		SELECT id, event_id_1, event_id_2, relationship_type, confidence, explanation, discovered_at
		FROM cross_references
		WHERE event_id_1 = ? OR event_id_2 = ?
		ORDER BY confidence DESC, id ASC
	`, eventID, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cross-references: %w", err)
	}
	defer rows.Close()

	var refs []*CrossReference
	for rows.Next() {
		ref, err := scanCrossReference(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// GetCrossReference looks up the reference between two events regardless of
// argument order, or ErrNotFound
func (s *DB) GetCrossReference(eventIDA, eventIDB string) (*CrossReference, error) {
	id1, id2 := CanonicalPair(eventIDA, eventIDB)
	row := s.db.QueryRow(`
		SELECT id, event_id_1, event_id_2, relationship_type, confidence, explanation, discovered_at
		FROM cross_references WHERE event_id_1 = ? AND event_id_2 = ?
	`, id1, id2)
	return scanCrossReference(row)
}

// DeleteCrossReferencesForEvent removes every reference touching the event
func (s *DB) DeleteCrossReferencesForEvent(eventID string) error {
	_, err := s.db.Exec(`DELETE FROM cross_references WHERE event_id_1 = ? OR event_id_2 = ?`, eventID, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete cross-references: %w", err)
	}
	return nil
}

func scanCrossReference(row rowScanner) (*CrossReference, error) {
	var ref CrossReference
	var relType string
	var explanation sql.NullString

	err := row.Scan(&ref.ID, &ref.EventID1, &ref.EventID2, &relType, &ref.Confidence, &explanation, &ref.DiscoveredAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cross-reference: %w", err)
	}

	ref.Type = RelationshipType(relType)
	ref.Explanation = explanation.String
	return &ref, nil
}
