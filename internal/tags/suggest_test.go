package tags

import (
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/mpyne/threadline/internal/similarity"
	"github.com/mpyne/threadline/internal/store"
)

func setupTestEngine(t *testing.T) (*Engine, *store.DB, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tags-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	db, err := store.Open(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}
	engine := New(similarity.NewEngine(db), db)
	return engine, db, func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}
}

func addEmbeddedEvent(t *testing.T, db *store.DB, id string, vector []float64) {
	t.Helper()
	err := db.PutEvent(&store.Event{
		ID:        id,
		Title:     "Event " + id,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to add event %s: %v", id, err)
	}
	if _, err := db.UpsertEmbedding(id, vector, "local", "hash-v1", len(vector)); err != nil {
		t.Fatalf("Failed to embed event %s: %v", id, err)
	}
}

// src sits at [1,0]; n1 is identical (cos 1.0), n2 is [4,3] (cos 0.8),
// far is orthogonal and below the neighbor threshold.
func seedNeighborhood(t *testing.T, db *store.DB) {
	t.Helper()
	addEmbeddedEvent(t, db, "src", []float64{1, 0})
	addEmbeddedEvent(t, db, "n1", []float64{1, 0})
	addEmbeddedEvent(t, db, "n2", []float64{4, 3})
	addEmbeddedEvent(t, db, "far", []float64{0, 1})
}

func TestSuggestTagsRanksByFrequencyAndConfidence(t *testing.T) {
	engine, db, cleanup := setupTestEngine(t)
	defer cleanup()
	seedNeighborhood(t, db)

	// hiking: on both neighbors, avg conf 0.8 -> 1.0 * 0.8 = 0.8
	// photography: on one of two, conf 1.0 -> 0.5 * 1.0 = 0.5
	mustAddTag(t, db, "n1", "hiking", 0.9)
	mustAddTag(t, db, "n2", "hiking", 0.7)
	mustAddTag(t, db, "n2", "photography", 1.0)
	mustAddTag(t, db, "far", "ignored", 1.0)

	suggestions, err := engine.SuggestTags("src", 5)
	if err != nil {
		t.Fatalf("SuggestTags failed: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("Expected 2 suggestions, got %+v", suggestions)
	}
	if suggestions[0].TagName != "hiking" || math.Abs(suggestions[0].Confidence-0.8) > 1e-9 {
		t.Errorf("Expected hiking at 0.8, got %+v", suggestions[0])
	}
	if suggestions[1].TagName != "photography" || math.Abs(suggestions[1].Confidence-0.5) > 1e-9 {
		t.Errorf("Expected photography at 0.5, got %+v", suggestions[1])
	}
}

func TestSuggestTagsExcludesExistingTags(t *testing.T) {
	engine, db, cleanup := setupTestEngine(t)
	defer cleanup()
	seedNeighborhood(t, db)

	mustAddTag(t, db, "src", "travel", 1.0)
	mustAddTag(t, db, "n1", "Travel", 0.9) // case-insensitive match with existing
	mustAddTag(t, db, "n1", "hiking", 0.9)

	suggestions, err := engine.SuggestTags("src", 5)
	if err != nil {
		t.Fatalf("SuggestTags failed: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].TagName != "hiking" {
		t.Errorf("Expected only hiking, got %+v", suggestions)
	}
}

func TestSuggestTagsLimit(t *testing.T) {
	engine, db, cleanup := setupTestEngine(t)
	defer cleanup()
	seedNeighborhood(t, db)

	mustAddTag(t, db, "n1", "alpha", 0.9)
	mustAddTag(t, db, "n1", "beta", 0.8)
	mustAddTag(t, db, "n1", "gamma", 0.7)

	suggestions, err := engine.SuggestTags("src", 2)
	if err != nil {
		t.Fatalf("SuggestTags failed: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("Expected limit of 2, got %+v", suggestions)
	}
	if suggestions[0].TagName != "alpha" || suggestions[1].TagName != "beta" {
		t.Errorf("Wrong truncation order: %+v", suggestions)
	}
}

func TestSuggestTagsTieBreaksByName(t *testing.T) {
	engine, db, cleanup := setupTestEngine(t)
	defer cleanup()
	seedNeighborhood(t, db)

	mustAddTag(t, db, "n1", "zebra", 0.8)
	mustAddTag(t, db, "n1", "apple", 0.8)

	suggestions, err := engine.SuggestTags("src", 5)
	if err != nil {
		t.Fatalf("SuggestTags failed: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("Expected 2 suggestions, got %+v", suggestions)
	}
	if suggestions[0].TagName != "apple" || suggestions[1].TagName != "zebra" {
		t.Errorf("Expected alphabetical tie-break, got %+v", suggestions)
	}
}

func TestSuggestTagsNoNeighbors(t *testing.T) {
	engine, db, cleanup := setupTestEngine(t)
	defer cleanup()

	addEmbeddedEvent(t, db, "lonely", []float64{1, 0})
	addEmbeddedEvent(t, db, "distant", []float64{0, 1})

	suggestions, err := engine.SuggestTags("lonely", 5)
	if err != nil {
		t.Fatalf("SuggestTags failed: %v", err)
	}
	if len(suggestions) != 0 {
		t.Errorf("Expected no suggestions, got %+v", suggestions)
	}
}

func TestSuggestTagsNotEmbedded(t *testing.T) {
	engine, db, cleanup := setupTestEngine(t)
	defer cleanup()

	err := db.PutEvent(&store.Event{
		ID:        "bare",
		Title:     "No vector",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to add event: %v", err)
	}

	_, err = engine.SuggestTags("bare", 5)
	if !errors.Is(err, similarity.ErrNotEmbedded) {
		t.Errorf("Expected ErrNotEmbedded, got %v", err)
	}
}

func mustAddTag(t *testing.T, db *store.DB, eventID, tag string, confidence float64) {
	t.Helper()
	if err := db.AddTag(eventID, tag, confidence); err != nil {
		t.Fatalf("Failed to tag %s: %v", eventID, err)
	}
}
