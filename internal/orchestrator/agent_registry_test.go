package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conductor/pkg/models"
)

func newAgent(id, agentType string, skills ...string) *models.Agent {
	return &models.Agent{
		ID:          id,
		Name:        id,
		Type:        agentType,
		Skills:      skills,
		Performance: models.DefaultPerformance(),
	}
}

func TestAgentRegistry_Register(t *testing.T) {
	r := NewAgentRegistry()

	require.NoError(t, r.Register(newAgent("a1", "backend", "go")))

	got := r.Get("a1")
	require.NotNil(t, got)
	assert.Equal(t, models.AgentStatusIdle, got.Status)
	assert.Equal(t, models.DefaultPerformance(), got.Performance)
	assert.Equal(t, 1, r.Count())
}

func TestAgentRegistry_RegisterKeepsPerformance(t *testing.T) {
	r := NewAgentRegistry()

	a := newAgent("a1", "backend")
	a.Performance = models.Performance{}
	require.NoError(t, r.Register(a))
	assert.Equal(t, models.Performance{}, r.Get("a1").Performance)
	assert.Zero(t, r.Get("a1").Performance.SuccessRate)
}

func TestAgentRegistry_RegisterRejects(t *testing.T) {
	tests := []struct {
		name  string
		agent *models.Agent
		isDup bool
	}{
		{name: "nil", agent: nil},
		{name: "empty id", agent: &models.Agent{Type: "backend"}},
		{name: "duplicate", agent: newAgent("a1", "frontend"), isDup: true},
		{name: "busy", agent: &models.Agent{ID: "a2", Status: models.AgentStatusBusy, CurrentTaskID: "t1"}},
		{name: "unknown status", agent: &models.Agent{ID: "a3", Status: "sleeping"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewAgentRegistry()
			require.NoError(t, r.Register(newAgent("a1", "backend")))

			err := r.Register(tt.agent)
			require.Error(t, err)
			assert.Equal(t, tt.isDup, errors.Is(err, ErrDuplicateID))
			assert.Equal(t, 1, r.Count())
		})
	}
}

func TestAgentRegistry_GetReturnsCopy(t *testing.T) {
	r := NewAgentRegistry()
	require.NoError(t, r.Register(newAgent("a1", "backend", "go")))

	got := r.Get("a1")
	got.Skills[0] = "rust"
	got.Status = models.AgentStatusOffline

	again := r.Get("a1")
	assert.Equal(t, []string{"go"}, again.Skills)
	assert.Equal(t, models.AgentStatusIdle, again.Status)
	assert.Nil(t, r.Get("missing"))
}

func TestAgentRegistry_ListByTypeAndStatus(t *testing.T) {
	r := NewAgentRegistry()
	for _, a := range []*models.Agent{
		newAgent("b1", "backend"),
		newAgent("f1", "frontend"),
		newAgent("b2", "backend"),
		{ID: "b3", Type: "backend", Status: models.AgentStatusOffline},
	} {
		require.NoError(t, r.Register(a))
	}

	idle := r.ListByTypeAndStatus("backend", models.AgentStatusIdle)
	require.Len(t, idle, 2)
	assert.Equal(t, "b1", idle[0].ID)
	assert.Equal(t, "b2", idle[1].ID)

	offline := r.ListByTypeAndStatus("backend", models.AgentStatusOffline)
	require.Len(t, offline, 1)
	assert.Equal(t, "b3", offline[0].ID)

	assert.Empty(t, r.ListByTypeAndStatus("data", models.AgentStatusIdle))
}

func TestAgentRegistry_SetStatus(t *testing.T) {
	r := NewAgentRegistry()
	require.NoError(t, r.Register(newAgent("a1", "backend")))

	require.NoError(t, r.SetStatus("a1", models.AgentStatusBusy, "t1"))
	got := r.Get("a1")
	assert.Equal(t, models.AgentStatusBusy, got.Status)
	assert.Equal(t, "t1", got.CurrentTaskID)

	err := r.SetStatus("a1", models.AgentStatusIdle, "t1")
	assert.ErrorIs(t, err, ErrInconsistentState)

	err = r.SetStatus("a1", models.AgentStatusBusy, "")
	assert.ErrorIs(t, err, ErrInconsistentState)

	err = r.SetStatus("missing", models.AgentStatusIdle, "")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	require.NoError(t, r.SetStatus("a1", models.AgentStatusIdle, ""))
	assert.Empty(t, r.Get("a1").CurrentTaskID)
}

func TestAgentRegistry_RecordOutcome(t *testing.T) {
	r := NewAgentRegistry()
	require.NoError(t, r.Register(newAgent("a1", "backend")))

	require.NoError(t, r.RecordOutcome("a1", 1000, true))
	p := r.Get("a1").Performance
	assert.Equal(t, uint(1), p.TasksCompleted)
	assert.InDelta(t, 500.0, p.AverageDurationMs, 1e-9)
	assert.InDelta(t, 1.0, p.SuccessRate, 1e-9)

	require.NoError(t, r.RecordOutcome("a1", 2000, false))
	p = r.Get("a1").Performance
	assert.Equal(t, uint(2), p.TasksCompleted)
	assert.InDelta(t, 1250.0, p.AverageDurationMs, 1e-9)
	assert.InDelta(t, 0.95, p.SuccessRate, 1e-9)

	assert.ErrorIs(t, r.RecordOutcome("missing", 1, true), ErrAgentNotFound)
}
