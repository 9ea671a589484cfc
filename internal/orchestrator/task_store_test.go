package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conductor/pkg/models"
)

func newTask(id, taskType string) *models.Task {
	return &models.Task{
		ID:       id,
		Type:     taskType,
		Priority: models.PriorityMedium,
		Status:   models.TaskStatusPending,
	}
}

func TestTaskStore_AddAndGet(t *testing.T) {
	s := NewTaskStore()

	require.NoError(t, s.Add(newTask("t1", "backend")))
	assert.ErrorIs(t, s.Add(newTask("t1", "frontend")), ErrDuplicateID)
	assert.Error(t, s.Add(nil))
	assert.Error(t, s.Add(&models.Task{}))

	got := s.Get("t1")
	require.NotNil(t, got)
	assert.Equal(t, "backend", got.Type)
	assert.Nil(t, s.Get("missing"))
	assert.Equal(t, 1, s.Count())
}

func TestTaskStore_ListPreservesOrder(t *testing.T) {
	s := NewTaskStore()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Add(newTask(id, "backend")))
	}
	require.NoError(t, s.Update("a", func(t *models.Task) error {
		t.Status = models.TaskStatusInProgress
		return nil
	}))

	var ids []string
	for _, task := range s.List() {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	pending := s.ListByStatus(models.TaskStatusPending)
	require.Len(t, pending, 2)
	assert.Equal(t, "c", pending[0].ID)
	assert.Equal(t, "b", pending[1].ID)
}

func TestTaskStore_Update(t *testing.T) {
	tests := []struct {
		name    string
		from    models.TaskStatus
		to      models.TaskStatus
		wantErr error
	}{
		{name: "pending to in_progress", from: models.TaskStatusPending, to: models.TaskStatusInProgress},
		{name: "in_progress to completed", from: models.TaskStatusInProgress, to: models.TaskStatusCompleted},
		{name: "in_progress to failed", from: models.TaskStatusInProgress, to: models.TaskStatusFailed},
		{name: "pending to completed", from: models.TaskStatusPending, to: models.TaskStatusCompleted, wantErr: ErrInvalidTransition},
		{name: "completed to pending", from: models.TaskStatusCompleted, to: models.TaskStatusPending, wantErr: ErrInvalidTransition},
		{name: "failed to in_progress", from: models.TaskStatusFailed, to: models.TaskStatusInProgress, wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTaskStore()
			task := newTask("t1", "backend")
			task.Status = tt.from
			require.NoError(t, s.Add(task))

			err := s.Update("t1", func(t *models.Task) error {
				t.Status = tt.to
				return nil
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, s.Get("t1").Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, s.Get("t1").Status)
		})
	}
}

func TestTaskStore_UpdateDiscardsOnError(t *testing.T) {
	s := NewTaskStore()
	require.NoError(t, s.Add(newTask("t1", "backend")))

	boom := errors.New("boom")
	err := s.Update("t1", func(t *models.Task) error {
		t.Description = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Get("t1").Description)

	err = s.Update("t1", func(t *models.Task) error {
		t.ID = "t2"
		return nil
	})
	assert.Error(t, err)
	assert.NotNil(t, s.Get("t1"))

	assert.ErrorIs(t, s.Update("missing", func(*models.Task) error { return nil }), ErrTaskNotFound)
}

func TestTaskStore_AddAllIsAtomic(t *testing.T) {
	store := NewTaskStore()
	require.NoError(t, store.Add(newTask("a", "backend")))

	err := store.AddAll([]*models.Task{newTask("b", "backend"), newTask("a", "backend")})
	assert.ErrorIs(t, err, ErrDuplicateID)
	err = store.AddAll([]*models.Task{newTask("c", "backend"), newTask("c", "backend")})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, store.Count())

	require.NoError(t, store.AddAll([]*models.Task{newTask("b", "backend"), newTask("c", "frontend")}))
	ids := []string{}
	for _, task := range store.List() {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
