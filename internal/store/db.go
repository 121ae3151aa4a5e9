package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database holding the journal's events, embeddings and
// cross-references. The events and event_tags tables are owned by the CRUD
// layer; this engine only reads them.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the journal database under dataDir
func Open(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "journal.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &DB{db: db, path: dbPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *DB) Close() error {
	return s.db.Close()
}

// Path returns the on-disk location of the database file
func (s *DB) Path() string {
	return s.path
}

func (s *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	start_date     TIMESTAMP NOT NULL,
	end_date       TIMESTAMP,
	description    TEXT,
	category       TEXT NOT NULL DEFAULT 'Other',
	era            TEXT,
	raw_transcript TEXT,
	created_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS event_tags (
	event_id   TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	tag        TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	PRIMARY KEY (event_id, tag)
);

CREATE TABLE IF NOT EXISTS event_embeddings (
	id         TEXT PRIMARY KEY,
	event_id   TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	vector     BLOB,
	provider   TEXT NOT NULL,
	model      TEXT NOT NULL,
	dimension  INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS cross_references (
	id                TEXT PRIMARY KEY,
	event_id_1        TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	event_id_2        TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	relationship_type TEXT NOT NULL,
	confidence        REAL NOT NULL,
	explanation       TEXT,
	discovered_at     TIMESTAMP NOT NULL,
	UNIQUE (event_id_1, event_id_2)
);

CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
CREATE INDEX IF NOT EXISTS idx_events_start_date ON events(start_date);
CREATE INDEX IF NOT EXISTS idx_crossref_event1 ON cross_references(event_id_1);
CREATE INDEX IF NOT EXISTS idx_crossref_event2 ON cross_references(event_id_2);
`
	_, err := s.db.Exec(schema)
	return err
}

// Stats returns row counts per table, for CLI reporting
func (s *DB) Stats() (map[string]int, error) {
	stats := make(map[string]int)
	for _, table := range []string{"events", "event_tags", "event_embeddings", "cross_references"} {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}
