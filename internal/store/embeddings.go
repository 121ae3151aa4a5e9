package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventEmbedding is the stored vector for one event. At most one row per
// event; replacing is a full overwrite. Vectors from different
// provider/model pairs are not comparable — callers must ClearEmbeddings
// before switching providers.
type EventEmbedding struct {
	ID        string
	EventID   string
	Vector    []float64
	Provider  string
	Model     string
	Dimension int
	CreatedAt time.Time
}

// UpsertEmbedding inserts or replaces the embedding for an event and returns
// the embedding ID. The ID is stable across overwrites of the same event.
func (s *DB) UpsertEmbedding(eventID string, vector []float64, provider, model string, dimension int) (string, error) {
	if eventID == "" {
		return "", fmt.Errorf("event ID is required")
	}

	vectorBytes, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("failed to encode vector: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO event_embeddings (id, event_id, vector, provider, model, dimension, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			vector = excluded.vector,
			provider = excluded.provider,
			model = excluded.model,
			dimension = excluded.dimension,
			created_at = excluded.created_at
	`, uuid.New().String(), eventID, vectorBytes, provider, model, dimension, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to upsert embedding: %w", err)
	}

	var id string
	if err := s.db.QueryRow(`SELECT id FROM event_embeddings WHERE event_id = ?`, eventID).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read embedding id: %w", err)
	}
	return id, nil
}

// GetEmbedding retrieves the embedding for an event, or ErrNotFound
func (s *DB) GetEmbedding(eventID string) (*EventEmbedding, error) {
	row := s.db.QueryRow(`
		SELECT id, event_id, vector, provider, model, dimension, created_at
		FROM event_embeddings WHERE event_id = ?
	`, eventID)
	return scanEmbedding(row)
}

// ListEmbeddings retrieves every stored embedding, ordered by event ID.
// Used by the similarity engine's full scan.
func (s *DB) ListEmbeddings() ([]*EventEmbedding, error) {
	rows, err := s.db.Query(`
		SELECT id, event_id, vector, provider, model, dimension, created_at
		FROM event_embeddings ORDER BY event_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []*EventEmbedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, e)
	}
	return embeddings, rows.Err()
}

// ListEmbeddedEventIDs returns the IDs of all events that currently have an
// embedding, in ascending order
func (s *DB) ListEmbeddedEventIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT event_id FROM event_embeddings ORDER BY event_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedded event ids: %w", err)
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

// DeleteEmbedding removes the embedding for one event
func (s *DB) DeleteEmbedding(eventID string) error {
	_, err := s.db.Exec(`DELETE FROM event_embeddings WHERE event_id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

// ClearEmbeddings removes every stored embedding. Required before switching
// embedding provider or model, so vectors from incompatible spaces never
// coexist.
func (s *DB) ClearEmbeddings() error {
	_, err := s.db.Exec(`DELETE FROM event_embeddings`)
	if err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	return nil
}

func scanEmbedding(row rowScanner) (*EventEmbedding, error) {
	var e EventEmbedding
	var vectorBytes []byte

	err := row.Scan(&e.ID, &e.EventID, &vectorBytes, &e.Provider, &e.Model, &e.Dimension, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan embedding: %w", err)
	}

	if len(vectorBytes) > 0 {
		if err := json.Unmarshal(vectorBytes, &e.Vector); err != nil {
			return nil, fmt.Errorf("failed to decode vector: %w", err)
		}
	}
	return &e, nil
}
