package models

import (
	"slices"
	"time"
)

// KnowledgeCategory classifies a learned knowledge entry.
type KnowledgeCategory string

const (
	KnowledgeCategoryPattern       KnowledgeCategory = "pattern"
	KnowledgeCategorySolution      KnowledgeCategory = "solution"
	KnowledgeCategoryBestPractice  KnowledgeCategory = "best_practice"
	KnowledgeCategoryPitfall       KnowledgeCategory = "pitfall"
	KnowledgeCategoryLessonLearned KnowledgeCategory = "lesson_learned"
)

// Valid returns true if the category is a known value.
func (c KnowledgeCategory) Valid() bool {
	switch c {
	case KnowledgeCategoryPattern, KnowledgeCategorySolution, KnowledgeCategoryBestPractice,
		KnowledgeCategoryPitfall, KnowledgeCategoryLessonLearned:
		return true
	default:
		return false
	}
}

// KnowledgeEntry is a stored lesson or pattern. Entries are immutable once
// learned except for the usage counters.
type KnowledgeEntry struct {
	ID          string            `json:"id"`
	Category    KnowledgeCategory `json:"category"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Context     string            `json:"context"`
	Solution    string            `json:"solution"`
	Tags        []string          `json:"tags"`
	// Confidence is in [0,1].
	Confidence float64   `json:"confidence"`
	TimesUsed  uint      `json:"timesUsed"`
	LastUsed   time.Time `json:"lastUsed"`
}

// Clone returns a deep copy of the entry.
func (e KnowledgeEntry) Clone() KnowledgeEntry {
	e.Tags = slices.Clone(e.Tags)
	return e
}
