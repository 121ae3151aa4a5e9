package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mpyne/threadline/internal/logging"
	"github.com/mpyne/threadline/internal/store"
)

// EmbedRun aggregates a batch embedding pass. In-memory only.
type EmbedRun struct {
	EventsConsidered int
	Embedded         int
	Errors           []EventError
	Cancelled        bool
}

// GenerateEmbedding embeds one event's text and upserts the vector. Used by
// the CRUD layer's embed-on-create hook and by the batch pass. Returns the
// embedding ID.
func (o *Orchestrator) GenerateEmbedding(ctx context.Context, eventID string) (string, error) {
	if o.provider == nil {
		return "", fmt.Errorf("no embedding provider configured")
	}

	event, err := o.db.GetEvent(eventID)
	if err != nil {
		return "", fmt.Errorf("failed to load event %s: %w", eventID, err)
	}

	vector, err := o.provider.Embed(ctx, embeddingText(event))
	if err != nil {
		return "", err
	}

	id, err := o.db.UpsertEmbedding(eventID, vector, o.provider.Name(), o.provider.Model(), o.provider.Dimension())
	if err != nil {
		return "", err
	}
	logging.Debug("embed", "event %s embedded (%s/%s, %d dims)", eventID, o.provider.Name(), o.provider.Model(), o.provider.Dimension())
	return id, nil
}

// GenerateMissingEmbeddings embeds every event that has no stored vector,
// in ascending ID order. Same failure policy as AnalyzeFullTimeline: record
// per-event errors and keep going; cancel via context.
func (o *Orchestrator) GenerateMissingEmbeddings(ctx context.Context) (*EmbedRun, error) {
	if o.provider == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}

	allIDs, err := o.db.ListEventIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	embedded, err := o.db.ListEmbeddedEventIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded events: %w", err)
	}
	have := make(map[string]bool, len(embedded))
	for _, id := range embedded {
		have[id] = true
	}

	var missing []string
	for _, id := range allIDs {
		if !have[id] {
			missing = append(missing, id)
		}
	}

	logging.Info("embed", "embedding %d of %d events via %s/%s", len(missing), len(allIDs), o.provider.Name(), o.provider.Model())
	run := &EmbedRun{EventsConsidered: len(missing)}

	for i, id := range missing {
		if err := ctx.Err(); err != nil {
			run.Cancelled = true
			return run, err
		}

		if _, err := o.GenerateEmbedding(ctx, id); err != nil {
			logging.Warn("embed", "event %s failed: %v", id, err)
			run.Errors = append(run.Errors, EventError{EventID: id, Err: err})
		} else {
			run.Embedded++
		}

		if o.delay > 0 && i < len(missing)-1 {
			select {
			case <-ctx.Done():
				run.Cancelled = true
				return run, ctx.Err()
			case <-time.After(o.delay):
			}
		}
	}

	logging.Info("embed", "done: %d embedded, %d errors", run.Embedded, len(run.Errors))
	return run, nil
}

// embeddingText builds the text an event is embedded from: title plus
// whatever prose the event carries
func embeddingText(e *store.Event) string {
	parts := []string{e.Title}
	if e.Description != "" {
		parts = append(parts, e.Description)
	} else if e.RawTranscript != "" {
		parts = append(parts, e.RawTranscript)
	}
	if e.Category != "" {
		parts = append(parts, "Category: "+e.Category)
	}
	return strings.Join(parts, "\n")
}
