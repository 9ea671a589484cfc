// Package memory keeps the long-term project memory: past tasks,
// conversations, configuration decisions, learned knowledge and per-agent
// history. Learnings are indexed by tag in a KnowledgeGraph and can be
// searched or ranked by relevance.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conductor/internal/metrics"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	// ErrEntryNotFound means no learning has the given ID.
	ErrEntryNotFound = errors.New("knowledge entry not found")
	// ErrInvalidEntry means a learning failed validation.
	ErrInvalidEntry = errors.New("invalid knowledge entry")
)

// Store is the MemoryStore. Sequences are append-only and unbounded; a
// long-running deployment should export and rotate them.
type Store struct {
	memory  models.ProjectMemory
	graph   *KnowledgeGraph
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
	mu      sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics reports the number of learnings to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// WithTechStack records the project's technology stack.
func WithTechStack(stack ...string) Option {
	return func(s *Store) { s.memory.TechStack = append(s.memory.TechStack, stack...) }
}

// New creates an empty Store for the named project.
func New(projectName string, opts ...Option) *Store {
	s := &Store{
		graph:  NewKnowledgeGraph(),
		logger: zap.NewNop(),
		now:    now,
	}
	created := s.now()
	s.memory = models.ProjectMemory{
		ProjectName:    projectName,
		TechStack:      []string{},
		Tasks:          []models.TaskMemory{},
		Conversations:  []models.ConversationMemory{},
		Configurations: []models.ConfigurationMemory{},
		Learnings:      []models.KnowledgeEntry{},
		Agents:         []models.AgentMemory{},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "memory"))
	return s
}

// now returns the current time in a form that survives a JSON round trip
// unchanged.
func now() time.Time {
	return time.Now().UTC().Round(0)
}

// RememberTask records a finished task and returns the new entry ID.
func (s *Store) RememberTask(entry models.TaskMemory) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.New().String()
	entry.Timestamp = s.stampLocked(entry.Timestamp)
	entry.Result = s.plainValue("result", entry.Result)
	s.memory.Tasks = append(s.memory.Tasks, entry)
	return entry.ID
}

// RememberConversation records a user/agent exchange and returns its ID.
func (s *Store) RememberConversation(entry models.ConversationMemory) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.New().String()
	entry.Timestamp = s.stampLocked(entry.Timestamp)
	s.memory.Conversations = append(s.memory.Conversations, entry)
	return entry.ID
}

// RememberConfiguration records a configuration value and returns its ID.
func (s *Store) RememberConfiguration(entry models.ConfigurationMemory) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.New().String()
	entry.Timestamp = s.stampLocked(entry.Timestamp)
	entry.Value = s.plainValue("value", entry.Value)
	s.memory.Configurations = append(s.memory.Configurations, entry)
	return entry.ID
}

// Learn stores a knowledge entry and indexes it by tag. The ID and usage
// counters are assigned here; values passed in for them are ignored.
func (s *Store) Learn(entry models.KnowledgeEntry) (string, error) {
	if err := validateEntry(entry); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry = entry.Clone()
	entry.ID = uuid.New().String()
	entry.TimesUsed = 0
	entry.LastUsed = s.touchLocked()

	s.memory.Learnings = append(s.memory.Learnings, entry)
	s.graph.Index(entry)
	s.metrics.SetKnowledgeEntries(len(s.memory.Learnings))

	s.logger.Debug("learned",
		zap.String("entry_id", entry.ID),
		zap.String("category", string(entry.Category)),
		zap.Strings("tags", entry.Tags))
	return entry.ID, nil
}

func validateEntry(entry models.KnowledgeEntry) error {
	if entry.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEntry)
	}
	if !entry.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidEntry, entry.Category)
	}
	if !validConfidence(entry.Confidence) {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidEntry, entry.Confidence)
	}
	return nil
}

func validConfidence(c float64) bool {
	return c >= 0 && c <= 1
}

// MarkUsed records that a learning was applied: TimesUsed is incremented
// and LastUsed refreshed. Retrieval does not call this on its own.
func (s *Store) MarkUsed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.memory.Learnings {
		if s.memory.Learnings[i].ID == id {
			s.memory.Learnings[i].TimesUsed++
			s.memory.Learnings[i].LastUsed = s.touchLocked()
			return nil
		}
	}
	return fmt.Errorf("mark used %s: %w", id, ErrEntryNotFound)
}

// RecordAgentOutcome folds one finished task into the agent's historical
// record, creating the record on first sight.
func (s *Store) RecordAgentOutcome(agent *models.Agent, durationMs float64, success bool) {
	if agent == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.touchLocked()
	idx := slices.IndexFunc(s.memory.Agents, func(m models.AgentMemory) bool {
		return m.AgentID == agent.ID
	})
	if idx < 0 {
		s.memory.Agents = append(s.memory.Agents, models.AgentMemory{
			AgentID: agent.ID,
			Name:    agent.Name,
			Type:    agent.Type,
		})
		idx = len(s.memory.Agents) - 1
	}

	m := &s.memory.Agents[idx]
	if success {
		m.TasksCompleted++
	} else {
		m.TasksFailed++
	}
	m.TotalDurationMs += durationMs
	m.LastActive = ts
}

// Entry returns the learning with the given ID.
func (s *Store) Entry(id string) (models.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.memory.Learnings {
		if e.ID == id {
			return e.Clone(), nil
		}
	}
	return models.KnowledgeEntry{}, fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
}

// ByTag returns the learnings indexed under tag, in learning order.
func (s *Store) ByTag(tag string) []models.KnowledgeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.graph.Lookup(tag)
	if len(ids) == 0 {
		return nil
	}
	var out []models.KnowledgeEntry
	for _, e := range s.memory.Learnings {
		if _, ok := slices.BinarySearch(ids, e.ID); ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Memory returns a copy of the whole project memory.
func (s *Store) Memory() models.ProjectMemory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory.Clone()
}

// Graph returns a copy of the tag index.
func (s *Store) Graph() map[string][]string {
	return s.graph.Snapshot()
}

// stampLocked touches the memory and returns ts in UTC without its
// monotonic reading, or the touch time when ts is zero. Caller must hold s.mu.
func (s *Store) stampLocked(ts time.Time) time.Time {
	touched := s.touchLocked()
	if ts.IsZero() {
		return touched
	}
	return ts.UTC().Round(0)
}

// plainValue returns v as it will read back from a snapshot: numbers as
// float64, structs as maps. Values JSON cannot encode are kept as their
// printed form.
func (s *Store) plainValue(field string, v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err == nil {
		var out any
		if err = json.Unmarshal(data, &out); err == nil {
			return out
		}
	}
	s.logger.Warn("storing unencodable value as text", zap.String("field", field), zap.Error(err))
	return fmt.Sprint(v)
}

// touchLocked refreshes UpdatedAt and returns the timestamp used.
// Caller must hold s.mu.
func (s *Store) touchLocked() time.Time {
	ts := s.now()
	s.memory.UpdatedAt = ts
	return ts
}
