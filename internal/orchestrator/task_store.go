package orchestrator

import (
	"fmt"
	"sync"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// TaskStore holds submitted tasks. Tasks are retained as history and never
// deleted, so the store grows without bound over a long-running process.
type TaskStore struct {
	tasks map[string]*models.Task
	// order holds task IDs in submission order.
	order []string
	mu    sync.RWMutex
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*models.Task),
	}
}

// Add stores a new task. It fails with ErrDuplicateID if the id is taken.
func (s *TaskStore) Add(task *models.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("add task: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("add task %s: %w", task.ID, ErrDuplicateID)
	}
	s.tasks[task.ID] = task.Clone()
	s.order = append(s.order, task.ID)
	return nil
}

// AddAll stores a batch of new tasks, all or nothing. It fails with
// ErrDuplicateID if any id is taken or repeated within the batch.
func (s *TaskStore) AddAll(tasks []*models.Task) error {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			return fmt.Errorf("add task: id is required")
		}
		if seen[t.ID] {
			return fmt.Errorf("add task %s: %w", t.ID, ErrDuplicateID)
		}
		seen[t.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tasks {
		if _, ok := s.tasks[t.ID]; ok {
			return fmt.Errorf("add task %s: %w", t.ID, ErrDuplicateID)
		}
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
		s.order = append(s.order, t.ID)
	}
	return nil
}

// Get returns a copy of the task, or nil if it does not exist.
func (s *TaskStore) Get(taskID string) *models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[taskID].Clone()
}

// List returns copies of all tasks in submission order.
func (s *TaskStore) List() []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// ListByStatus returns copies of the tasks in the given status, in
// submission order.
func (s *TaskStore) ListByStatus(status models.TaskStatus) []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Task
	for _, id := range s.order {
		if t := s.tasks[id]; t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Update applies fn to the stored task under the store lock. If fn changes
// the status, the change must be a legal transition or the update is
// discarded with ErrInvalidTransition.
func (s *TaskStore) Update(taskID string, fn func(*models.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("update task %s: %w", taskID, ErrTaskNotFound)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if next.ID != current.ID {
		return fmt.Errorf("update task %s: id is immutable", taskID)
	}
	if next.Status != current.Status && !current.Status.CanTransitionTo(next.Status) {
		return fmt.Errorf("update task %s from %s to %s: %w",
			taskID, current.Status, next.Status, ErrInvalidTransition)
	}

	s.tasks[taskID] = next
	return nil
}

// Count returns the number of stored tasks.
func (s *TaskStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
