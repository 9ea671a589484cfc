package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// Selection score weights.
const (
	skillWeight        = 0.4
	performanceWeight  = 0.3
	availabilityWeight = 0.3
)

// Outcome is the result of executing a task, reported to Scheduler.Complete.
type Outcome struct {
	// DurationMs is the wall time of the whole execution.
	DurationMs float64
	// Success selects completed (true) or failed (false).
	Success bool
	// Result is stored on the task.
	Result any
	// Err describes the failing stage for unsuccessful outcomes.
	Err error
}

// Scheduler matches pending tasks to idle agents and performs the
// completion bookkeeping. Every mutation of agent or task status goes
// through the scheduler, which holds its lock across filter-then-mutate so
// two tasks can never claim the same idle agent.
type Scheduler struct {
	agents *AgentRegistry
	tasks  *TaskStore
	logger *zap.Logger
	now    func() time.Time
	// running holds the IDs of tasks claimed for execution.
	running map[string]struct{}
	// mu serializes assignment, completion and availability changes.
	mu sync.Mutex
}

// NewScheduler creates a Scheduler over the given registries.
func NewScheduler(agents *AgentRegistry, tasks *TaskStore, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		agents:  agents,
		tasks:   tasks,
		logger:  logger.With(zap.String("component", "scheduler")),
		now:     time.Now,
		running: make(map[string]struct{}),
	}
}

// SkillMatch returns the fraction of the task's required skills the agent
// has, or 1.0 when the task requires none.
func SkillMatch(agent *models.Agent, task *models.Task) float64 {
	if len(task.RequiredSkills) == 0 {
		return 1.0
	}
	matched := 0
	for _, skill := range task.RequiredSkills {
		if agent.HasSkill(skill) {
			matched++
		}
	}
	return float64(matched) / float64(len(task.RequiredSkills))
}

// availability is binary for now: idle agents are fully available.
func availability(agent *models.Agent) float64 {
	if agent.Status == models.AgentStatusIdle {
		return 1.0
	}
	return 0
}

// SelectionScore computes
//
//	0.4*skillMatch + 0.3*successRate + 0.3*availability
func SelectionScore(agent *models.Agent, task *models.Task) float64 {
	return skillWeight*SkillMatch(agent, task) +
		performanceWeight*agent.Performance.SuccessRate +
		availabilityWeight*availability(agent)
}

// Select returns the agent that Assign would pick for the task, without
// mutating anything. Candidates are idle agents of the task's type that
// support every required capability; ties go to the earliest registered.
func (s *Scheduler) Select(task *models.Task) (*models.Agent, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(task)
}

// selectLocked picks the best candidate. Caller must hold s.mu.
func (s *Scheduler) selectLocked(task *models.Task) (*models.Agent, float64, error) {
	var (
		best      *models.Agent
		bestScore float64
	)
	for _, a := range s.agents.ListByTypeAndStatus(task.Type, models.AgentStatusIdle) {
		if !a.HasCapabilities(task.RequiredCapabilities) {
			continue
		}
		score := SelectionScore(a, task)
		s.logger.Debug("candidate scored",
			zap.String("task_id", task.ID),
			zap.String("agent_id", a.ID),
			zap.Float64("score", score))
		// Strictly greater keeps the earlier registered agent on ties.
		if best == nil || score > bestScore {
			best, bestScore = a, score
		}
	}
	if best == nil {
		return nil, 0, fmt.Errorf("task %s (type %q): %w", task.ID, task.Type, ErrNoAgentAvailable)
	}
	return best, bestScore, nil
}

// Assign selects an agent for a pending task and links the two: the task
// moves to in_progress with AssignedAgentID set, and the agent becomes busy
// with CurrentTaskID set. On ErrNoAgentAvailable nothing changes.
func (s *Scheduler) Assign(taskID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.tasks.Get(taskID)
	if task == nil {
		return "", fmt.Errorf("assign task %s: %w", taskID, ErrTaskNotFound)
	}
	if task.Status != models.TaskStatusPending {
		return "", fmt.Errorf("assign task %s in status %s: %w", taskID, task.Status, ErrInvalidTransition)
	}

	agent, score, err := s.selectLocked(task)
	if err != nil {
		s.logger.Warn("no agent available",
			zap.String("task_id", task.ID),
			zap.String("task_type", task.Type),
			zap.Strings("capabilities", task.RequiredCapabilities))
		return "", err
	}

	if err := s.agents.SetStatus(agent.ID, models.AgentStatusBusy, task.ID); err != nil {
		return "", fmt.Errorf("assign task %s: %w", taskID, err)
	}
	now := s.now()
	err = s.tasks.Update(task.ID, func(t *models.Task) error {
		t.Status = models.TaskStatusInProgress
		t.AssignedAgentID = agent.ID
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		// Undo the agent half so the link stays symmetric.
		_ = s.agents.SetStatus(agent.ID, models.AgentStatusIdle, "")
		return "", fmt.Errorf("assign task %s: %w", taskID, err)
	}

	s.logger.Info("task assigned",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agent.ID),
		zap.Float64("score", score))
	return agent.ID, nil
}

// Complete finishes an in-progress task: the task becomes completed or
// failed, the agent is released back to idle, and the agent's performance
// is updated exactly once. A missing task or agent, or a broken link
// between them, is reported as ErrInconsistentState.
func (s *Scheduler) Complete(taskID string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.tasks.Get(taskID)
	if task == nil {
		return fmt.Errorf("complete task %s: %w: %w", taskID, ErrInconsistentState, ErrTaskNotFound)
	}
	if task.Status != models.TaskStatusInProgress {
		return fmt.Errorf("complete task %s in status %s: %w", taskID, task.Status, ErrInvalidTransition)
	}
	agent := s.agents.Get(task.AssignedAgentID)
	if agent == nil {
		return fmt.Errorf("complete task %s: assigned agent %q: %w: %w",
			taskID, task.AssignedAgentID, ErrInconsistentState, ErrAgentNotFound)
	}
	if agent.CurrentTaskID != task.ID {
		return fmt.Errorf("complete task %s: agent %s holds task %q: %w",
			taskID, agent.ID, agent.CurrentTaskID, ErrInconsistentState)
	}

	status := models.TaskStatusCompleted
	if !outcome.Success {
		status = models.TaskStatusFailed
	}
	now := s.now()
	err := s.tasks.Update(task.ID, func(t *models.Task) error {
		t.Status = status
		t.UpdatedAt = now
		t.Result = outcome.Result
		if outcome.Err != nil {
			t.Error = outcome.Err.Error()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	if err := s.agents.SetStatus(agent.ID, models.AgentStatusIdle, ""); err != nil {
		return fmt.Errorf("complete task %s: release agent: %w", taskID, err)
	}
	if err := s.agents.RecordOutcome(agent.ID, outcome.DurationMs, outcome.Success); err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}

	s.logger.Info("task finished",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agent.ID),
		zap.String("status", string(status)),
		zap.Float64("duration_ms", outcome.DurationMs))
	return nil
}

// Claim reserves an in-progress task for execution. It fails with
// ErrInvalidTransition when the task is not in progress or is already
// claimed. The claim is held until Release.
func (s *Scheduler) Claim(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.tasks.Get(taskID)
	if task == nil {
		return ErrTaskNotFound
	}
	if task.Status != models.TaskStatusInProgress {
		return fmt.Errorf("task in status %s: %w", task.Status, ErrInvalidTransition)
	}
	if _, ok := s.running[taskID]; ok {
		return fmt.Errorf("task already running: %w", ErrInvalidTransition)
	}
	s.running[taskID] = struct{}{}
	return nil
}

// Release drops the execution claim on a task.
func (s *Scheduler) Release(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, taskID)
}

// MarkOffline takes an idle agent out of rotation.
func (s *Scheduler) MarkOffline(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent := s.agents.Get(agentID)
	if agent == nil {
		return fmt.Errorf("mark agent %s offline: %w", agentID, ErrAgentNotFound)
	}
	if agent.Status == models.AgentStatusBusy {
		return fmt.Errorf("mark agent %s offline while on task %s: %w", agentID, agent.CurrentTaskID, ErrAgentBusy)
	}
	return s.agents.SetStatus(agentID, models.AgentStatusOffline, "")
}

// MarkOnline returns an offline agent to idle. Idle agents are left alone.
func (s *Scheduler) MarkOnline(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent := s.agents.Get(agentID)
	if agent == nil {
		return fmt.Errorf("mark agent %s online: %w", agentID, ErrAgentNotFound)
	}
	if agent.Status != models.AgentStatusOffline {
		return nil
	}
	return s.agents.SetStatus(agentID, models.AgentStatusIdle, "")
}
