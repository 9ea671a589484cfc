package memory

import (
	"sort"
	"strings"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// relevantLimit caps RelevantTo results.
const relevantLimit = 5

// usageWeight scales confidence*timesUsed in relevance scoring.
const usageWeight = 0.1

// tokenize lowercases s and splits it on whitespace.
func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// Search returns learnings matching any whitespace-separated token of
// query, highest confidence first. A token matches when it is a
// case-insensitive substring of the entry's title, description, context,
// solution or tags. An empty category matches every category; a query
// with no tokens matches every entry.
func (s *Store) Search(query string, category models.KnowledgeCategory) []models.KnowledgeEntry {
	tokens := tokenize(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.KnowledgeEntry
	for _, e := range s.memory.Learnings {
		if category != "" && e.Category != category {
			continue
		}
		if len(tokens) > 0 && !containsAny(searchText(e), tokens) {
			continue
		}
		out = append(out, e.Clone())
	}

	// Stable keeps insertion order among equal confidence.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// RelevantTo ranks learnings against a free-text context and returns at
// most five. Each token found in an entry's title, description or context
// adds confidence*timesUsed*0.1; entries scoring zero are left out, so an
// entry never marked used is never relevant.
func (s *Store) RelevantTo(context string) []models.KnowledgeEntry {
	tokens := tokenize(context)
	if len(tokens) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry     models.KnowledgeEntry
		relevance float64
	}
	var ranked []scored
	for _, e := range s.memory.Learnings {
		text := strings.ToLower(e.Title + " " + e.Description + " " + e.Context)
		weight := e.Confidence * float64(e.TimesUsed) * usageWeight

		var relevance float64
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				relevance += weight
			}
		}
		if relevance > 0 {
			ranked = append(ranked, scored{entry: e.Clone(), relevance: relevance})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].relevance > ranked[j].relevance
	})
	if len(ranked) > relevantLimit {
		ranked = ranked[:relevantLimit]
	}

	out := make([]models.KnowledgeEntry, len(ranked))
	for i, r := range ranked {
		out[i] = r.entry
	}
	return out
}

func searchText(e models.KnowledgeEntry) string {
	return strings.ToLower(strings.Join([]string{
		e.Title, e.Description, e.Context, e.Solution, strings.Join(e.Tags, " "),
	}, " "))
}

func containsAny(text string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
