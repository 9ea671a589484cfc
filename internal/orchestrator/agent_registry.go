package orchestrator

import (
	"fmt"
	"sync"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// AgentRegistry holds agent descriptors and their mutable status and
// performance. Agents are never removed; they are marked offline instead.
// Lookups return copies so callers cannot mutate registry records.
type AgentRegistry struct {
	// agents maps agent IDs to agent models.
	agents map[string]*models.Agent
	// order holds agent IDs in registration order.
	order []string
	// mu protects all fields.
	mu sync.RWMutex
}

// NewAgentRegistry creates a new AgentRegistry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]*models.Agent),
	}
}

// Register adds an agent to the registry. It fails with ErrDuplicateID if
// the id is taken. A zero status defaults to idle. The performance record
// is stored as given; use models.DefaultPerformance for a fresh agent.
func (r *AgentRegistry) Register(a *models.Agent) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("register agent: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[a.ID]; ok {
		return fmt.Errorf("register agent %s: %w", a.ID, ErrDuplicateID)
	}

	stored := a.Clone()
	if stored.Status == "" {
		stored.Status = models.AgentStatusIdle
	}
	if !stored.Status.Valid() {
		return fmt.Errorf("register agent %s: invalid status %q", a.ID, stored.Status)
	}
	if stored.Status == models.AgentStatusBusy || stored.CurrentTaskID != "" {
		return fmt.Errorf("register agent %s: cannot register a busy agent", a.ID)
	}

	r.agents[a.ID] = stored
	r.order = append(r.order, a.ID)
	return nil
}

// Get retrieves a copy of an agent by ID.
// Returns nil if the agent is not registered.
func (r *AgentRegistry) Get(agentID string) *models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[agentID].Clone()
}

// ListByTypeAndStatus returns copies of the agents matching both filters,
// in registration order.
func (r *AgentRegistry) ListByTypeAndStatus(agentType string, status models.AgentStatus) []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Agent
	for _, id := range r.order {
		a := r.agents[id]
		if a.Type == agentType && a.Status == status {
			out = append(out, a.Clone())
		}
	}
	return out
}

// SetStatus updates an agent's status and current task together so that
// busy always implies a current task and vice versa.
func (r *AgentRegistry) SetStatus(agentID string, status models.AgentStatus, taskID string) error {
	if !status.Valid() {
		return fmt.Errorf("set status of agent %s: invalid status %q", agentID, status)
	}
	if (status == models.AgentStatusBusy) != (taskID != "") {
		return fmt.Errorf("set status of agent %s to %s with task %q: %w",
			agentID, status, taskID, ErrInconsistentState)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("set status of agent %s: %w", agentID, ErrAgentNotFound)
	}
	a.Status = status
	a.CurrentTaskID = taskID
	return nil
}

// RecordOutcome folds one terminal task outcome into the agent's performance.
//
//	tasksCompleted += 1
//	averageDurationMs = (averageDurationMs + durationMs) / tasksCompleted
//	successRate = success ? (successRate + 1) / 2 : successRate * 0.95
//
// The duration average is an average of averages, not a true mean.
func (r *AgentRegistry) RecordOutcome(agentID string, durationMs float64, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("record outcome for agent %s: %w", agentID, ErrAgentNotFound)
	}

	p := &a.Performance
	p.TasksCompleted++
	p.AverageDurationMs = (p.AverageDurationMs + durationMs) / float64(p.TasksCompleted)
	if success {
		p.SuccessRate = (p.SuccessRate + 1) / 2
	} else {
		p.SuccessRate *= 0.95
	}
	return nil
}

// All returns copies of all registered agents in registration order.
func (r *AgentRegistry) All() []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*models.Agent, 0, len(r.order))
	for _, id := range r.order {
		agents = append(agents, r.agents[id].Clone())
	}
	return agents
}

// Count returns the number of registered agents.
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
