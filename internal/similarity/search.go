// Package similarity finds semantically related events by brute-force cosine
// scan over the stored embeddings. Full scan is deliberate: the corpus is a
// personal timeline of at most a few thousand events.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mpyne/threadline/internal/store"
)

// ErrNotEmbedded is returned when the source event has no stored vector.
// Recoverable: embed the event first.
var ErrNotEmbedded = errors.New("event has no embedding")

// DimensionMismatchError indicates the store holds vectors from incompatible
// embedding spaces. This is a provider-switch hygiene violation and is always
// surfaced, never scored around.
type DimensionMismatchError struct {
	EventID      string // candidate whose vector length differs
	SourceDim    int
	CandidateDim int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: event %s has %d dims, source has %d (clear embeddings before switching providers)",
		e.EventID, e.CandidateDim, e.SourceDim)
}

// EmbeddingSource is what the engine needs from the embedding store
type EmbeddingSource interface {
	GetEmbedding(eventID string) (*store.EventEmbedding, error)
	ListEmbeddings() ([]*store.EventEmbedding, error)
}

// Match is one similar event with its cosine similarity score
type Match struct {
	EventID string
	Score   float64
}

// Engine ranks stored events by cosine similarity to a source event
type Engine struct {
	embeddings EmbeddingSource
}

// NewEngine creates a similarity engine over the given embedding store
func NewEngine(embeddings EmbeddingSource) *Engine {
	return &Engine{embeddings: embeddings}
}

// FindSimilar returns up to limit events whose similarity to the source is at
// least threshold, best first. Ties break by event ID so output is
// deterministic. The source event itself is never included.
func (e *Engine) FindSimilar(sourceEventID string, threshold float64, limit int) ([]Match, error) {
	source, err := e.embeddings.GetEmbedding(sourceEventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotEmbedded
		}
		return nil, fmt.Errorf("failed to load source embedding: %w", err)
	}

	candidates, err := e.embeddings.ListEmbeddings()
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}

	var matches []Match
	for _, cand := range candidates {
		if cand.EventID == sourceEventID {
			continue
		}
		if len(cand.Vector) != len(source.Vector) {
			return nil, &DimensionMismatchError{
				EventID:      cand.EventID,
				SourceDim:    len(source.Vector),
				CandidateDim: len(cand.Vector),
			}
		}

		score, ok := cosineSimilarity(source.Vector, cand.Vector)
		if !ok {
			continue // zero-norm vector, similarity undefined: treat as non-match
		}
		if score >= threshold {
			matches = append(matches, Match{EventID: cand.EventID, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].EventID < matches[j].EventID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// cosineSimilarity computes dot(a,b)/(|a||b|). The second return is false
// when either vector has zero norm.
func cosineSimilarity(a, b []float64) (float64, bool) {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
