// Package analysis batch-drives the cross-reference engine across the
// timeline: similarity search, relationship classification, persistence.
// One event's failure never aborts a run; failures land in the run's error
// ledger instead.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/mpyne/threadline/internal/classify"
	"github.com/mpyne/threadline/internal/embedding"
	"github.com/mpyne/threadline/internal/logging"
	"github.com/mpyne/threadline/internal/similarity"
	"github.com/mpyne/threadline/internal/store"
)

const (
	// maxCandidates caps how many similar events are classified per source
	maxCandidates = 20
	// defaultDelay is the cooperative pause between events in batch runs,
	// to stay under external provider rate limits
	defaultDelay = 500 * time.Millisecond
)

// Classifier is the relationship-classification capability the orchestrator
// drives. The production implementation absorbs LLM failures internally and
// only errors on infrastructure problems.
type Classifier interface {
	Classify(ctx context.Context, a, b *store.Event) (classify.Result, error)
}

// DiscoveredReference is one related event found for a source event
type DiscoveredReference struct {
	EventID    string // the related event
	Similarity float64
	Result     classify.Result
}

// EventResult is the outcome of analyzing a single event. Not persisted by
// AnalyzeEvent; the batch variant persists explicitly.
type EventResult struct {
	EventID    string
	Status     string // "ok", "no candidates above threshold"
	References []DiscoveredReference
}

// EventError records one event whose processing failed during a batch run
type EventError struct {
	EventID string
	Err     error
}

// AnalysisRun aggregates a full-timeline analysis. In-memory only.
type AnalysisRun struct {
	EventsAnalyzed    int
	ReferencesWritten int
	Errors            []EventError
	Cancelled         bool
}

// Orchestrator wires the similarity engine, classifier and stores together
type Orchestrator struct {
	db         *store.DB
	search     *similarity.Engine
	classifier Classifier
	provider   embedding.Provider
	delay      time.Duration
}

// New creates an orchestrator. provider may be nil if embedding generation
// is not needed (analysis-only callers).
func New(db *store.DB, search *similarity.Engine, classifier Classifier, provider embedding.Provider) *Orchestrator {
	return &Orchestrator{
		db:         db,
		search:     search,
		classifier: classifier,
		provider:   provider,
		delay:      defaultDelay,
	}
}

// SetDelay overrides the inter-event pause in batch runs (tests use 0)
func (o *Orchestrator) SetDelay(d time.Duration) {
	o.delay = d
}

// AnalyzeEvent finds and classifies the events related to one source event.
// Does not persist anything. No candidates is a status, not an error.
func (o *Orchestrator) AnalyzeEvent(ctx context.Context, eventID string, threshold float64) (*EventResult, error) {
	source, err := o.db.GetEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}

	matches, err := o.search.FindSimilar(eventID, threshold, maxCandidates)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &EventResult{EventID: eventID, Status: "no candidates above threshold"}, nil
	}

	result := &EventResult{EventID: eventID, Status: "ok"}
	for _, m := range matches {
		candidate, err := o.db.GetEvent(m.EventID)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidate %s: %w", m.EventID, err)
		}

		verdict, err := o.classifier.Classify(ctx, source, candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to classify %s vs %s: %w", eventID, m.EventID, err)
		}
		if !verdict.HasRelationship {
			continue
		}
		result.References = append(result.References, DiscoveredReference{
			EventID:    m.EventID,
			Similarity: m.Score,
			Result:     verdict,
		})
	}
	return result, nil
}

// AnalyzeFullTimeline analyzes every embedded event in ascending ID order,
// persisting each discovered cross-reference. Per-event failures are recorded
// and skipped; only setup failures (cannot enumerate events) return an error.
// Cancelling the context stops the run early and returns the partial result
// together with the context's error.
func (o *Orchestrator) AnalyzeFullTimeline(ctx context.Context, threshold float64) (*AnalysisRun, error) {
	ids, err := o.db.ListEmbeddedEventIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded events: %w", err)
	}

	logging.Info("analysis", "analyzing %d embedded events (threshold %.2f)", len(ids), threshold)
	run := &AnalysisRun{}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			run.Cancelled = true
			return run, err
		}

		result, err := o.AnalyzeEvent(ctx, id, threshold)
		if err != nil {
			logging.Warn("analysis", "event %s failed: %v", id, err)
			run.Errors = append(run.Errors, EventError{EventID: id, Err: err})
		} else {
			run.EventsAnalyzed++
			// One failed write must not drop the event's remaining references
			for _, ref := range result.References {
				_, err := o.db.UpsertCrossReference(id, ref.EventID, ref.Result.Type, ref.Result.Confidence, ref.Result.Explanation)
				if err != nil {
					run.Errors = append(run.Errors, EventError{EventID: id, Err: fmt.Errorf("failed to write reference to %s: %w", ref.EventID, err)})
					continue
				}
				run.ReferencesWritten++
			}
		}

		// Cooperative pause between events so the classifier's backing
		// service is not hammered
		if o.delay > 0 && i < len(ids)-1 {
			select {
			case <-ctx.Done():
				run.Cancelled = true
				return run, ctx.Err()
			case <-time.After(o.delay):
			}
		}
	}

	logging.Info("analysis", "done: %d events analyzed, %d references written, %d errors",
		run.EventsAnalyzed, run.ReferencesWritten, len(run.Errors))
	return run, nil
}
