// Package patterns mines the timeline for recurring structure: categories
// that keep coming back, months where life got dense, and milestone events
// marking era transitions. Read-only; nothing here is persisted.
package patterns

import (
	"fmt"
	"sort"

	"github.com/mpyne/threadline/internal/store"
)

const (
	minRecurrence   = 3  // events before a category counts as recurring
	minClusterSize  = 3  // events in a month before it counts as a cluster
	maxClusters     = 10 // busiest months reported
	defaultCategory = "Other"
)

// milestoneCategories mark events that can signal an era transition
var milestoneCategories = map[string]bool{
	"Milestone":   true,
	"Achievement": true,
	"Challenge":   true,
}

// Match is one member of a pattern group: a category, a calendar month, or a
// single milestone event
type Match struct {
	Label    string   `json:"label"`
	Count    int      `json:"count"`
	EventIDs []string `json:"event_ids"`
}

// Pattern is one detected pattern group
type Pattern struct {
	Type        string  `json:"type"` // recurring_category, temporal_cluster, era_transition
	Description string  `json:"description"`
	Matches     []Match `json:"matches"`
}

// EventSource is what the detector reads from
type EventSource interface {
	ListEvents() ([]*store.Event, error)
}

// Detector runs the three timeline analyses
type Detector struct {
	events EventSource
}

// New creates a pattern detector over the given event source
func New(events EventSource) *Detector {
	return &Detector{events: events}
}

// DetectPatterns runs every analysis and returns the non-empty groups
func (d *Detector) DetectPatterns() ([]Pattern, error) {
	events, err := d.events.ListEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var patterns []Pattern
	if m := recurringCategories(events); len(m) > 0 {
		patterns = append(patterns, Pattern{
			Type:        "recurring_category",
			Description: fmt.Sprintf("Categories appearing in %d or more events", minRecurrence),
			Matches:     m,
		})
	}
	if m := temporalClusters(events); len(m) > 0 {
		patterns = append(patterns, Pattern{
			Type:        "temporal_cluster",
			Description: fmt.Sprintf("Months containing %d or more events", minClusterSize),
			Matches:     m,
		})
	}
	if m := eraTransitions(events); len(m) > 0 {
		patterns = append(patterns, Pattern{
			Type:        "era_transition",
			Description: "Milestone events marking transitions between eras",
			Matches:     m,
		})
	}
	return patterns, nil
}

// recurringCategories counts events per category, excluding the default
func recurringCategories(events []*store.Event) []Match {
	byCategory := make(map[string][]string)
	for _, e := range events {
		if e.Category == defaultCategory || e.Category == "" {
			continue
		}
		byCategory[e.Category] = append(byCategory[e.Category], e.ID)
	}

	var matches []Match
	for cat, ids := range byCategory {
		if len(ids) >= minRecurrence {
			sort.Strings(ids)
			matches = append(matches, Match{Label: cat, Count: len(ids), EventIDs: ids})
		}
	}
	sortByCountDesc(matches)
	return matches
}

// temporalClusters finds the busiest calendar months, capped to the top 10
func temporalClusters(events []*store.Event) []Match {
	byMonth := make(map[string][]string)
	for _, e := range events {
		month := e.StartDate.Format("2006-01")
		byMonth[month] = append(byMonth[month], e.ID)
	}

	var matches []Match
	for month, ids := range byMonth {
		if len(ids) >= minClusterSize {
			sort.Strings(ids)
			matches = append(matches, Match{Label: month, Count: len(ids), EventIDs: ids})
		}
	}
	sortByCountDesc(matches)
	if len(matches) > maxClusters {
		matches = matches[:maxClusters]
	}
	return matches
}

// eraTransitions lists milestone-category events that belong to an era,
// oldest first
func eraTransitions(events []*store.Event) []Match {
	var milestones []*store.Event
	for _, e := range events {
		if milestoneCategories[e.Category] && e.Era != "" {
			milestones = append(milestones, e)
		}
	}
	sort.Slice(milestones, func(i, j int) bool {
		if !milestones[i].StartDate.Equal(milestones[j].StartDate) {
			return milestones[i].StartDate.Before(milestones[j].StartDate)
		}
		return milestones[i].ID < milestones[j].ID
	})

	matches := make([]Match, 0, len(milestones))
	for _, e := range milestones {
		matches = append(matches, Match{
			Label:    fmt.Sprintf("%s (%s, era: %s)", e.Title, e.StartDate.Format("2006-01-02"), e.Era),
			Count:    1,
			EventIDs: []string{e.ID},
		})
	}
	return matches
}

// sortByCountDesc orders matches by count descending, label ascending on ties
func sortByCountDesc(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Count != matches[j].Count {
			return matches[i].Count > matches[j].Count
		}
		return matches[i].Label < matches[j].Label
	})
}
