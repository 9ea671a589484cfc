package memory

import (
	"slices"
	"sort"
	"sync"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// KnowledgeGraph is a tag to entry-id index over learned knowledge. It is
// derived from the learnings and never persisted on its own.
type KnowledgeGraph struct {
	// tags maps a tag to the set of entry IDs carrying it.
	tags map[string]map[string]struct{}
	mu   sync.RWMutex
}

// NewKnowledgeGraph creates an empty graph.
func NewKnowledgeGraph() *KnowledgeGraph {
	return &KnowledgeGraph{
		tags: make(map[string]map[string]struct{}),
	}
}

// Index adds the entry's ID under each of its tags.
func (g *KnowledgeGraph) Index(entry models.KnowledgeEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, tag := range entry.Tags {
		g.addLocked(tag, entry.ID)
	}
}

// Add inserts id into the set keyed by tag, creating the set if absent.
func (g *KnowledgeGraph) Add(tag, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addLocked(tag, id)
}

func (g *KnowledgeGraph) addLocked(tag, id string) {
	set, ok := g.tags[tag]
	if !ok {
		set = make(map[string]struct{})
		g.tags[tag] = set
	}
	set[id] = struct{}{}
}

// Lookup returns the sorted IDs indexed under tag.
func (g *KnowledgeGraph) Lookup(tag string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.tags[tag])
}

// Tags returns all indexed tags, sorted.
func (g *KnowledgeGraph) Tags() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tags := make([]string, 0, len(g.tags))
	for tag := range g.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Clear removes every tag.
func (g *KnowledgeGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tags = make(map[string]map[string]struct{})
}

// Snapshot returns a copy of the index with each ID list sorted.
func (g *KnowledgeGraph) Snapshot() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string][]string, len(g.tags))
	for tag, set := range g.tags {
		out[tag] = sortedKeys(set)
	}
	return out
}

// Len returns the number of tags.
func (g *KnowledgeGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tags)
}

func sortedKeys(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
