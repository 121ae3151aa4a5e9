// Package classify decides whether and how two timeline events are related.
// Tier 1 asks a chat model for a strict-JSON verdict; any transport or parse
// failure falls through to a deterministic heuristic so classification can
// never abort a batch just because the model is unreachable.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mpyne/threadline/internal/llm"
	"github.com/mpyne/threadline/internal/logging"
	"github.com/mpyne/threadline/internal/store"
)

const (
	thematicConfidence = 0.6
	temporalConfidence = 0.5
	entityConfidence   = 0.65
	temporalWindowDays = 30
	defaultCategory    = "Other"
)

// Result is the classifier's verdict on one event pair
type Result struct {
	HasRelationship bool
	Type            store.RelationshipType
	Confidence      float64
	Explanation     string
}

// Classifier runs the two-tier relationship classification. A nil chat
// client means heuristic-only operation.
type Classifier struct {
	llm llm.Client
}

// New creates a classifier backed by the given chat client (may be nil)
func New(client llm.Client) *Classifier {
	return &Classifier{llm: client}
}

// Classify decides the relationship between two events. LLM failures are
// absorbed by degrading to the heuristic tier; the error return exists for
// infrastructure problems only and is always nil here.
func (c *Classifier) Classify(ctx context.Context, a, b *store.Event) (Result, error) {
	if c.llm != nil {
		if res, ok := c.classifyLLM(ctx, a, b); ok {
			return res, nil
		}
	}
	return c.classifyHeuristic(a, b), nil
}

// llmVerdict is the strict response schema demanded from the model
type llmVerdict struct {
	HasRelationship  bool    `json:"has_relationship"`
	RelationshipType string  `json:"relationship_type"`
	Confidence       float64 `json:"confidence"`
	Explanation      string  `json:"explanation"`
}

func (c *Classifier) classifyLLM(ctx context.Context, a, b *store.Event) (Result, bool) {
	prompt := buildPrompt(a, b)

	response, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		logging.Debug("classify", "LLM unavailable, falling back to heuristic: %v", err)
		return Result{}, false
	}

	var verdict llmVerdict
	cleaned := extractJSON(response)
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		logging.Debug("classify", "unparseable LLM verdict, falling back to heuristic: %s",
			logging.Truncate(response, 120))
		return Result{}, false
	}

	relType := store.RelationshipType(strings.ToLower(verdict.RelationshipType))
	if verdict.HasRelationship && !store.ValidRelationshipType(relType) {
		logging.Debug("classify", "LLM returned unknown relationship type %q, falling back", verdict.RelationshipType)
		return Result{}, false
	}
	if !verdict.HasRelationship {
		return Result{}, true
	}

	return Result{
		HasRelationship: true,
		Type:            relType,
		Confidence:      clamp01(verdict.Confidence),
		Explanation:     verdict.Explanation,
	}, true
}

// classifyHeuristic is the deterministic fallback tier: shared category,
// then temporal proximity, then shared named entities. The entity rule runs
// last so it only rescues pairs the category and date rules call unrelated.
func (c *Classifier) classifyHeuristic(a, b *store.Event) Result {
	if a.Category == b.Category && a.Category != defaultCategory {
		return Result{
			HasRelationship: true,
			Type:            store.RelThematic,
			Confidence:      thematicConfidence,
			Explanation:     fmt.Sprintf("Both events share the category %q", a.Category),
		}
	}

	if days := daysBetween(a.StartDate, b.StartDate); days <= temporalWindowDays {
		return Result{
			HasRelationship: true,
			Type:            store.RelTemporal,
			Confidence:      temporalConfidence,
			Explanation:     fmt.Sprintf("Events occurred within %d days of each other", days),
		}
	}

	if ent, relType := sharedEntity(a, b); ent != "" {
		noun := "person"
		if relType == store.RelLocation {
			noun = "location"
		}
		return Result{
			HasRelationship: true,
			Type:            relType,
			Confidence:      entityConfidence,
			Explanation:     fmt.Sprintf("Both events mention the %s %q", noun, ent),
		}
	}

	return Result{}
}

func daysBetween(a, b time.Time) int {
	hours := math.Abs(a.Sub(b).Hours())
	return int(hours / 24)
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

func buildPrompt(a, b *store.Event) string {
	var sb strings.Builder
	sb.WriteString("You are analyzing a personal event timeline. Decide whether these two events are related.\n\n")
	writeEvent(&sb, "Event A", a)
	writeEvent(&sb, "Event B", b)
	sb.WriteString(`Respond with ONLY a JSON object, no other text:

{
  "has_relationship": true,
  "relationship_type": "causal",
  "confidence": 0.8,
  "explanation": "one sentence"
}

relationship_type must be one of: causal, thematic, temporal, person, location, other.
confidence is 0.0-1.0. If the events are unrelated, set has_relationship to false.
`)
	return sb.String()
}

func writeEvent(sb *strings.Builder, label string, e *store.Event) {
	fmt.Fprintf(sb, "%s:\n  Title: %s\n  Date: %s\n  Category: %s\n", label, e.Title, e.StartDate.Format("2006-01-02"), e.Category)
	if e.Description != "" {
		fmt.Fprintf(sb, "  Description: %s\n", e.Description)
	}
	sb.WriteString("\n")
}

// extractJSON extracts JSON from markdown code blocks or returns the input
// if no code block found
func extractJSON(s string) string {
	if start := strings.Index(s, "```json"); start != -1 {
		start += 7
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if start := strings.Index(s, "```"); start != -1 {
		start += 3
		if end := strings.Index(s[start:], "```"); end != -1 {
			content := strings.TrimSpace(s[start : start+end])
			// Skip a leading language line ("json") if present
			if idx := strings.Index(content, "\n"); idx != -1 && !strings.HasPrefix(content, "{") {
				content = content[idx+1:]
			}
			return strings.TrimSpace(content)
		}
	}
	// No fences: take the first {...} span so a chatty preamble doesn't
	// break decoding
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			return strings.TrimSpace(s[start : end+1])
		}
	}
	return strings.TrimSpace(s)
}
