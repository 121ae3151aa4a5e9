// Package tags recommends tags for an event by aggregating the tags its
// semantic neighbors already carry.
package tags

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mpyne/threadline/internal/similarity"
	"github.com/mpyne/threadline/internal/store"
)

const (
	neighborThreshold = 0.7
	neighborLimit     = 10
)

// Suggestion is one recommended tag with an aggregate confidence
type Suggestion struct {
	TagName    string  `json:"tag_name"`
	Confidence float64 `json:"confidence"`
}

// TagSource is what the engine reads tags from
type TagSource interface {
	TagsForEvent(eventID string) ([]store.Tag, error)
	TagsForEvents(eventIDs []string) (map[string][]store.Tag, error)
}

// Engine suggests tags from an event's similarity neighborhood
type Engine struct {
	search *similarity.Engine
	tags   TagSource
}

// New creates a tag suggestion engine
func New(search *similarity.Engine, tags TagSource) *Engine {
	return &Engine{search: search, tags: tags}
}

// SuggestTags returns up to limit tags ranked by how common and how trusted
// they are among the event's nearest neighbors. Tags already on the event are
// excluded. No neighbors means an empty list, not an error;
// similarity.ErrNotEmbedded propagates when the source has no vector.
func (e *Engine) SuggestTags(eventID string, limit int) ([]Suggestion, error) {
	neighbors, err := e.search.FindSimilar(eventID, neighborThreshold, neighborLimit)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	own, err := e.tags.TagsForEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event tags: %w", err)
	}
	existing := make(map[string]bool, len(own))
	for _, t := range own {
		existing[strings.ToLower(t.Name)] = true
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.EventID
	}
	neighborTags, err := e.tags.TagsForEvents(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load neighbor tags: %w", err)
	}

	type agg struct {
		count   int
		confSum float64
	}
	byTag := make(map[string]*agg)
	for _, eventTags := range neighborTags {
		seen := make(map[string]bool) // count each tag once per neighbor
		for _, t := range eventTags {
			key := strings.ToLower(t.Name)
			if existing[key] || seen[key] {
				continue
			}
			seen[key] = true
			a := byTag[key]
			if a == nil {
				a = &agg{}
				byTag[key] = a
			}
			a.count++
			a.confSum += t.Confidence
		}
	}

	suggestions := make([]Suggestion, 0, len(byTag))
	for name, a := range byTag {
		frequency := float64(a.count) / float64(len(neighbors))
		avgConf := a.confSum / float64(a.count)
		suggestions = append(suggestions, Suggestion{
			TagName:    name,
			Confidence: clamp01(frequency * avgConf),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].TagName < suggestions[j].TagName
	})

	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
