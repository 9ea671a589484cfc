package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	propTypes  = []string{"backend", "frontend"}
	propSkills = []string{"go", "sql", "react", "docker"}
)

func drawAgent(rt *rapid.T, i int) *models.Agent {
	a := newAgent(fmt.Sprintf("agent-%d", i), rapid.SampledFrom(propTypes).Draw(rt, fmt.Sprintf("type_%d", i)))
	a.Skills = rapid.SliceOfN(rapid.SampledFrom(propSkills), 0, 3).Draw(rt, fmt.Sprintf("skills_%d", i))
	a.Performance = models.Performance{SuccessRate: rapid.Float64Range(0, 1).Draw(rt, fmt.Sprintf("rate_%d", i))}
	return a
}

func checkAgentInvariant(rt *rapid.T, orch *Orchestrator) {
	for _, a := range orch.Agents() {
		busy := a.Status == models.AgentStatusBusy
		assert.Equal(rt, busy, a.CurrentTaskID != "", "agent %s status %s task %q", a.ID, a.Status, a.CurrentTaskID)
	}
}

// Random interleavings of submit, assign, run and availability changes keep
// Busy in step with CurrentTaskID and only ever take legal task edges.
func TestProperty_LifecycleInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var agents []*models.Agent
		for i := range rapid.IntRange(1, 4).Draw(rt, "numAgents") {
			agents = append(agents, drawAgent(rt, i))
		}
		failWork := WorkAdapterFunc(func(_ context.Context, task *models.Task, _ *models.Agent) (any, error) {
			if task.Payload["fail"] == true {
				return nil, errors.New("work failed")
			}
			return "ok", nil
		})
		orch, err := New(RequiredConfig{Tools: ToolSet{}, Work: failWork}, WithAgents(agents...))
		require.NoError(rt, err)

		seen := make(map[string]models.TaskStatus)
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for step := range steps {
			switch rapid.IntRange(0, 4).Draw(rt, fmt.Sprintf("op_%d", step)) {
			case 0:
				_, err := orch.Submit(TaskRequest{
					Type:           rapid.SampledFrom(propTypes).Draw(rt, "taskType"),
					RequiredSkills: rapid.SliceOfN(rapid.SampledFrom(propSkills), 0, 2).Draw(rt, "taskSkills"),
					Payload:        map[string]any{"fail": rapid.Bool().Draw(rt, "fail")},
				})
				require.NoError(rt, err)
			case 1:
				if pending := orch.tasks.ListByStatus(models.TaskStatusPending); len(pending) > 0 {
					_, err := orch.Assign(pending[0].ID)
					if err != nil {
						require.ErrorIs(rt, err, ErrNoAgentAvailable)
					}
				}
			case 2:
				if running := orch.tasks.ListByStatus(models.TaskStatusInProgress); len(running) > 0 {
					_, err := orch.Run(context.Background(), running[0].ID)
					require.NoError(rt, err)
				}
			case 3:
				id := rapid.SampledFrom(agents).Draw(rt, "offlineAgent").ID
				if err := orch.MarkAgentOffline(id); err != nil {
					require.ErrorIs(rt, err, ErrAgentBusy)
				}
			case 4:
				id := rapid.SampledFrom(agents).Draw(rt, "onlineAgent").ID
				require.NoError(rt, orch.MarkAgentOnline(id))
			}

			checkAgentInvariant(rt, orch)
			for _, task := range orch.Tasks() {
				prev, ok := seen[task.ID]
				if !ok {
					assert.Equal(rt, models.TaskStatusPending, task.Status)
				} else if prev != task.Status {
					assert.True(rt, prev.CanTransitionTo(task.Status), "task %s went %s -> %s", task.ID, prev, task.Status)
				}
				if task.Status == models.TaskStatusPending {
					assert.Empty(rt, task.AssignedAgentID)
				}
				seen[task.ID] = task.Status
			}
		}
	})
}

// Selecting for the same task against an unchanged registry always yields
// the same agent.
func TestProperty_AssignmentDeterminism(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewAgentRegistry()
		for i := range rapid.IntRange(1, 6).Draw(rt, "numAgents") {
			require.NoError(rt, r.Register(drawAgent(rt, i)))
		}
		s := NewScheduler(r, NewTaskStore(), nil)
		task := &models.Task{
			ID:             "t",
			Type:           rapid.SampledFrom(propTypes).Draw(rt, "taskType"),
			RequiredSkills: rapid.SliceOfN(rapid.SampledFrom(propSkills), 0, 3).Draw(rt, "taskSkills"),
		}

		first, firstScore, firstErr := s.Select(task)
		for range 3 {
			again, score, err := s.Select(task)
			if firstErr != nil {
				require.ErrorIs(rt, err, ErrNoAgentAvailable)
				continue
			}
			require.NoError(rt, err)
			assert.Equal(rt, first.ID, again.ID)
			assert.Equal(rt, firstScore, score)
		}

		if firstErr == nil {
			for _, a := range r.ListByTypeAndStatus(task.Type, models.AgentStatusIdle) {
				assert.LessOrEqual(rt, SelectionScore(a, task), firstScore)
			}
		}
	})
}
