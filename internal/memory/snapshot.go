package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conductor/internal/persistence"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// SnapshotVersion is written into every exported snapshot. Import accepts
// any version with the same major number.
const SnapshotVersion = "1.0.0"

// ErrMalformedSnapshot means an imported document could not be parsed or
// failed validation. The store is left unchanged.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// snapshot is the exported document: ProjectMemory plus exportDate and
// version at the top level.
type snapshot struct {
	ProjectName    string                       `json:"projectName"`
	TechStack      []string                     `json:"techStack"`
	Tasks          []models.TaskMemory          `json:"tasks"`
	Conversations  []models.ConversationMemory  `json:"conversations"`
	Configurations []models.ConfigurationMemory `json:"configurations"`
	Learnings      []models.KnowledgeEntry      `json:"learnings"`
	Agents         []models.AgentMemory         `json:"agents"`
	CreatedAt      time.Time                    `json:"createdAt"`
	UpdatedAt      time.Time                    `json:"updatedAt"`
	ExportDate     time.Time                    `json:"exportDate"`
	Version        string                       `json:"version"`
}

var snapshotFields = []string{
	"projectName", "techStack", "tasks", "conversations", "configurations",
	"learnings", "agents", "createdAt", "updatedAt", "exportDate", "version",
}

// Export serializes the whole project memory as JSON.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	m := s.memory.Clone()
	s.mu.RUnlock()

	doc := snapshot{
		ProjectName:    m.ProjectName,
		TechStack:      m.TechStack,
		Tasks:          m.Tasks,
		Conversations:  m.Conversations,
		Configurations: m.Configurations,
		Learnings:      m.Learnings,
		Agents:         m.Agents,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		ExportDate:     s.now(),
		Version:        SnapshotVersion,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export snapshot: %w", err)
	}
	return data, nil
}

// Import replaces the project memory with the snapshot in data and
// rebuilds the knowledge graph from its learnings. On any error the store
// is left as it was.
func (s *Store) Import(data []byte) error {
	doc, err := parseSnapshot(data)
	if err != nil {
		s.logger.Error("snapshot import failed", zap.Error(err))
		return err
	}

	m := models.ProjectMemory{
		ProjectName:    doc.ProjectName,
		TechStack:      nonNil(doc.TechStack),
		Tasks:          nonNil(doc.Tasks),
		Conversations:  nonNil(doc.Conversations),
		Configurations: nonNil(doc.Configurations),
		Learnings:      nonNil(doc.Learnings),
		Agents:         nonNil(doc.Agents),
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory = m
	s.graph.Clear()
	for _, e := range s.memory.Learnings {
		s.graph.Index(e)
	}
	s.metrics.SetKnowledgeEntries(len(s.memory.Learnings))

	s.logger.Info("snapshot imported",
		zap.String("project", m.ProjectName),
		zap.String("version", doc.Version),
		zap.Int("learnings", len(m.Learnings)),
		zap.Int("tasks", len(m.Tasks)))
	return nil
}

// parseSnapshot decodes and validates a snapshot without touching any store.
func parseSnapshot(data []byte) (*snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	for _, name := range snapshotFields {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrMalformedSnapshot, name)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc snapshot
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}

	if err := checkVersion(doc.Version); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(doc.Learnings))
	for _, e := range doc.Learnings {
		if e.ID == "" || seen[e.ID] {
			return nil, fmt.Errorf("%w: learning id %q missing or repeated", ErrMalformedSnapshot, e.ID)
		}
		seen[e.ID] = true
		if !e.Category.Valid() {
			return nil, fmt.Errorf("%w: learning %s has unknown category %q", ErrMalformedSnapshot, e.ID, e.Category)
		}
		if !validConfidence(e.Confidence) {
			return nil, fmt.Errorf("%w: learning %s has confidence %v outside [0,1]", ErrMalformedSnapshot, e.ID, e.Confidence)
		}
	}
	return &doc, nil
}

// checkVersion accepts "major.minor.patch" with a major matching
// SnapshotVersion.
func checkVersion(v string) error {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: version %q is not major.minor.patch", ErrMalformedSnapshot, v)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: version %q is not major.minor.patch", ErrMalformedSnapshot, v)
		}
		nums[i] = n
	}
	want, _ := strconv.Atoi(strings.SplitN(SnapshotVersion, ".", 2)[0])
	if nums[0] != want {
		return fmt.Errorf("%w: unsupported version %s", ErrMalformedSnapshot, v)
	}
	return nil
}

// SaveTo exports the memory and writes it to sink under key.
func (s *Store) SaveTo(ctx context.Context, sink persistence.Sink, key string) error {
	data, err := s.Export()
	if err != nil {
		return err
	}
	if err := sink.Save(ctx, key, data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	s.logger.Debug("snapshot saved", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// LoadFrom reads the snapshot stored under key and imports it. A missing
// key returns persistence.ErrNotFound and leaves the store unchanged.
func (s *Store) LoadFrom(ctx context.Context, sink persistence.Sink, key string) error {
	data, err := sink.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return s.Import(data)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
