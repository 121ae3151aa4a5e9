package classify

import (
	"strings"

	"github.com/tsawler/prose/v3"

	"github.com/mpyne/threadline/internal/store"
)

// sharedEntity looks for a person or place name appearing in both events'
// prose. Only runs when both events actually have prose text, so events
// with bare titles classify purely on category and dates.
func sharedEntity(a, b *store.Event) (string, store.RelationshipType) {
	textA := proseText(a)
	textB := proseText(b)
	if textA == "" || textB == "" {
		return "", ""
	}

	entsA := namedEntities(textA)
	if len(entsA) == 0 {
		return "", ""
	}
	entsB := namedEntities(textB)

	// Persons take precedence over places when both kinds are shared
	for _, label := range []string{"PERSON", "GPE", "LOC"} {
		if name := firstShared(entsA[label], entsB[label]); name != "" {
			relType := store.RelPerson
			if label != "PERSON" {
				relType = store.RelLocation
			}
			return name, relType
		}
	}
	return "", ""
}

// firstShared returns the lexicographically smallest name present in both
// sets, so a pair sharing several entities always reports the same one
func firstShared(a, b map[string]bool) string {
	best := ""
	for name := range a {
		if b[name] && (best == "" || name < best) {
			best = name
		}
	}
	return best
}

func proseText(e *store.Event) string {
	if e.Description != "" {
		return e.Description
	}
	return e.RawTranscript
}

// namedEntities runs NER and buckets lowercase entity names by label
func namedEntities(text string) map[string]map[string]bool {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil
	}

	out := make(map[string]map[string]bool)
	for _, ent := range doc.Entities() {
		label := strings.ToUpper(ent.Label)
		name := strings.ToLower(strings.TrimSpace(ent.Text))
		if name == "" {
			continue
		}
		if out[label] == nil {
			out[label] = make(map[string]bool)
		}
		out[label][name] = true
	}
	return out
}
