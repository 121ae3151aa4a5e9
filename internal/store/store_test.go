package store

import (
	"errors"
	"os"
	"testing"
	"time"
)

// setupTestDB creates a temporary test database
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "store-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := Open(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}
	return db, cleanup
}

func addTestEvent(t *testing.T, db *DB, id, title, category string, start time.Time) {
	t.Helper()
	err := db.PutEvent(&Event{
		ID:        id,
		Title:     title,
		Category:  category,
		StartDate: start,
	})
	if err != nil {
		t.Fatalf("Failed to add event %s: %v", id, err)
	}
}

func TestEventRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	end := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	want := &Event{
		ID:          "evt-1",
		Title:       "Moved to Lisbon",
		StartDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     &end,
		Description: "Packed everything and flew out",
		Category:    "Milestone",
		Era:         "Europe years",
	}
	if err := db.PutEvent(want); err != nil {
		t.Fatalf("PutEvent failed: %v", err)
	}

	got, err := db.GetEvent("evt-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Title != want.Title || got.Category != want.Category || got.Era != want.Era {
		t.Errorf("Round trip mismatch: got %+v", got)
	}
	if got.EndDate == nil || !got.EndDate.Equal(end) {
		t.Errorf("EndDate mismatch: got %v", got.EndDate)
	}
	if !got.StartDate.Equal(want.StartDate) {
		t.Errorf("StartDate mismatch: got %v", got.StartDate)
	}
}

func TestGetEventNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.GetEvent("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEmbeddingUpsert(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	addTestEvent(t, db, "evt-1", "First", "Other", time.Now())

	id1, err := db.UpsertEmbedding("evt-1", []float64{1, 0, 0}, "local", "hash-v1", 3)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Overwrite keeps the same embedding ID and replaces the vector
	id2, err := db.UpsertEmbedding("evt-1", []float64{0, 1, 0}, "local", "hash-v1", 3)
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Embedding ID changed on overwrite: %s vs %s", id1, id2)
	}

	emb, err := db.GetEmbedding("evt-1")
	if err != nil {
		t.Fatalf("GetEmbedding failed: %v", err)
	}
	if emb.Vector[0] != 0 || emb.Vector[1] != 1 {
		t.Errorf("Vector not replaced: %v", emb.Vector)
	}
	if emb.Dimension != 3 || emb.Provider != "local" {
		t.Errorf("Metadata mismatch: %+v", emb)
	}

	ids, err := db.ListEmbeddedEventIDs()
	if err != nil {
		t.Fatalf("ListEmbeddedEventIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "evt-1" {
		t.Errorf("Expected [evt-1], got %v", ids)
	}
}

func TestEmbeddingClearAndDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	addTestEvent(t, db, "evt-1", "First", "Other", time.Now())
	addTestEvent(t, db, "evt-2", "Second", "Other", time.Now())
	db.UpsertEmbedding("evt-1", []float64{1}, "local", "hash-v1", 1)
	db.UpsertEmbedding("evt-2", []float64{1}, "local", "hash-v1", 1)

	if err := db.DeleteEmbedding("evt-1"); err != nil {
		t.Fatalf("DeleteEmbedding failed: %v", err)
	}
	if _, err := db.GetEmbedding("evt-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	if err := db.ClearEmbeddings(); err != nil {
		t.Fatalf("ClearEmbeddings failed: %v", err)
	}
	ids, _ := db.ListEmbeddedEventIDs()
	if len(ids) != 0 {
		t.Errorf("Expected no embeddings after clear, got %v", ids)
	}
}

func TestCrossReferenceCanonicalization(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	addTestEvent(t, db, "evt-a", "A", "Other", time.Now())
	addTestEvent(t, db, "evt-b", "B", "Other", time.Now())

	id1, err := db.UpsertCrossReference("evt-b", "evt-a", RelThematic, 0.6, "first discovery")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Rediscovery in the opposite direction hits the same row
	id2, err := db.UpsertCrossReference("evt-a", "evt-b", RelCausal, 0.9, "second discovery")
	if err != nil {
		t.Fatalf("Reverse upsert failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Canonical pair produced two rows: %s vs %s", id1, id2)
	}

	ref, err := db.GetCrossReference("evt-b", "evt-a")
	if err != nil {
		t.Fatalf("GetCrossReference failed: %v", err)
	}
	if ref.EventID1 != "evt-a" || ref.EventID2 != "evt-b" {
		t.Errorf("Pair not canonicalized: %s, %s", ref.EventID1, ref.EventID2)
	}
	if ref.Type != RelCausal || ref.Confidence != 0.9 || ref.Explanation != "second discovery" {
		t.Errorf("Overwrite did not replace fields: %+v", ref)
	}

	refs, err := db.GetCrossReferencesForEvent("evt-a")
	if err != nil {
		t.Fatalf("GetCrossReferencesForEvent failed: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("Expected exactly one reference, got %d", len(refs))
	}
}

func TestCrossReferenceSelfRejected(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	addTestEvent(t, db, "evt-a", "A", "Other", time.Now())
	if _, err := db.UpsertCrossReference("evt-a", "evt-a", RelOther, 0.5, ""); err == nil {
		t.Error("Expected error for self-reference")
	}
}

func TestCrossReferenceUnknownTypeRejected(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	addTestEvent(t, db, "evt-a", "A", "Other", time.Now())
	addTestEvent(t, db, "evt-b", "B", "Other", time.Now())
	if _, err := db.UpsertCrossReference("evt-a", "evt-b", "friendship", 0.5, ""); err == nil {
		t.Error("Expected error for unknown relationship type")
	}
}

func TestCrossReferenceOrdering(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for _, id := range []string{"evt-a", "evt-b", "evt-c", "evt-d"} {
		addTestEvent(t, db, id, id, "Other", time.Now())
	}
	db.UpsertCrossReference("evt-a", "evt-b", RelTemporal, 0.5, "")
	db.UpsertCrossReference("evt-a", "evt-c", RelCausal, 0.9, "")
	db.UpsertCrossReference("evt-a", "evt-d", RelThematic, 0.7, "")

	refs, err := db.GetCrossReferencesForEvent("evt-a")
	if err != nil {
		t.Fatalf("GetCrossReferencesForEvent failed: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("Expected 3 references, got %d", len(refs))
	}
	for i := 1; i < len(refs); i++ {
		if refs[i].Confidence > refs[i-1].Confidence {
			t.Errorf("References not ordered by confidence desc: %v then %v", refs[i-1].Confidence, refs[i].Confidence)
		}
	}
}

func TestTags(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	addTestEvent(t, db, "evt-1", "First", "Travel", time.Now())
	addTestEvent(t, db, "evt-2", "Second", "Travel", time.Now())
	db.AddTag("evt-1", "beach", 0.9)
	db.AddTag("evt-1", "family", 1.0)
	db.AddTag("evt-2", "beach", 0.7)

	tags, err := db.TagsForEvent("evt-1")
	if err != nil {
		t.Fatalf("TagsForEvent failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("Expected 2 tags, got %d", len(tags))
	}

	byEvent, err := db.TagsForEvents([]string{"evt-1", "evt-2"})
	if err != nil {
		t.Fatalf("TagsForEvents failed: %v", err)
	}
	if len(byEvent["evt-1"]) != 2 || len(byEvent["evt-2"]) != 1 {
		t.Errorf("Tag map mismatch: %+v", byEvent)
	}
}

func TestEventCascadeDeletesEmbeddingAndRefs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	addTestEvent(t, db, "evt-1", "First", "Other", time.Now())
	addTestEvent(t, db, "evt-2", "Second", "Other", time.Now())
	db.UpsertEmbedding("evt-1", []float64{1}, "local", "hash-v1", 1)
	db.UpsertCrossReference("evt-1", "evt-2", RelTemporal, 0.5, "")

	if _, err := db.db.Exec(`DELETE FROM events WHERE id = ?`, "evt-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := db.GetEmbedding("evt-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Embedding survived event deletion: %v", err)
	}
	refs, _ := db.GetCrossReferencesForEvent("evt-2")
	if len(refs) != 0 {
		t.Errorf("Cross-reference survived event deletion: %+v", refs)
	}
}

func TestCanonicalPair(t *testing.T) {
	a, b := CanonicalPair("zeta", "alpha")
	if a != "alpha" || b != "zeta" {
		t.Errorf("CanonicalPair(zeta, alpha) = %s, %s", a, b)
	}
	a, b = CanonicalPair("alpha", "zeta")
	if a != "alpha" || b != "zeta" {
		t.Errorf("CanonicalPair(alpha, zeta) = %s, %s", a, b)
	}
}
