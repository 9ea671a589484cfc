package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conductor/internal/metrics"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// EpisodeRecorder receives finished tasks for long-term memory.
// memory.Store implements it.
type EpisodeRecorder interface {
	RememberTask(entry models.TaskMemory) string
	RecordAgentOutcome(agent *models.Agent, durationMs float64, success bool)
}

// TaskRequest describes a task to submit. ID is generated when empty and
// Priority defaults to medium.
type TaskRequest struct {
	ID                   string          `yaml:"id" json:"id,omitempty"`
	Type                 string          `yaml:"type" json:"type"`
	Priority             models.Priority `yaml:"priority" json:"priority,omitempty"`
	Description          string          `yaml:"description" json:"description,omitempty"`
	Payload              map[string]any  `yaml:"payload" json:"payload,omitempty"`
	RequiredSkills       []string        `yaml:"required_skills" json:"requiredSkills,omitempty"`
	RequiredCapabilities []string        `yaml:"required_capabilities" json:"requiredCapabilities,omitempty"`
}

// Stats summarizes the orchestrator's current state.
type Stats struct {
	Tasks  map[models.TaskStatus]int
	Agents map[models.AgentStatus]int
}

// Orchestrator is the public facade of the core. It wires together:
// registry + task store -> scheduler -> coordinator -> scheduler.Complete,
// and emits a notification at each lifecycle step.
type Orchestrator struct {
	agents      *AgentRegistry
	tasks       *TaskStore
	scheduler   *Scheduler
	coordinator *ExecutionCoordinator

	tools   ToolAdapter
	work    WorkAdapter
	sink    NotificationSink
	memory  EpisodeRecorder
	metrics *metrics.Collector
	logger  *zap.Logger

	maxConcurrency int
	now            func() time.Time
}

// New creates an Orchestrator. It fails only if a seed agent from
// WithAgents cannot be registered.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := o.sink
	if sink == nil {
		sink = nopSink{}
	}
	if o.maxConcurrency < 1 {
		o.maxConcurrency = 1
	}

	agents := NewAgentRegistry()
	tasks := NewTaskStore()

	orch := &Orchestrator{
		agents:         agents,
		tasks:          tasks,
		scheduler:      NewScheduler(agents, tasks, logger),
		coordinator:    NewExecutionCoordinator(logger, o.tracer, o.metrics),
		tools:          req.Tools,
		work:           req.Work,
		sink:           sink,
		memory:         o.memory,
		metrics:        o.metrics,
		logger:         logger.With(zap.String("component", "orchestrator")),
		maxConcurrency: o.maxConcurrency,
		now:            time.Now,
	}

	for _, a := range o.agents {
		if err := orch.RegisterAgent(a); err != nil {
			return nil, err
		}
	}
	return orch, nil
}

// RegisterAgent adds an agent to the registry.
func (o *Orchestrator) RegisterAgent(a *models.Agent) error {
	if a != nil && a.RegisteredAt.IsZero() {
		a = a.Clone()
		a.RegisteredAt = o.now()
	}
	if err := o.agents.Register(a); err != nil {
		return err
	}
	o.refreshAgentMetrics()
	o.logger.Debug("agent registered", zap.String("agent_id", a.ID), zap.String("type", a.Type))
	return nil
}

// Validate checks req without submitting it. An empty priority is
// accepted and defaults to medium on submission.
func (r TaskRequest) Validate() error {
	if r.Type == "" {
		return errors.New("type is required")
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", r.Priority)
	}
	return nil
}

// Submit creates a pending task from req and emits EventTaskSubmitted.
func (o *Orchestrator) Submit(req TaskRequest) (*models.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}
	task := o.newTask(req)
	if err := o.tasks.Add(task); err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}
	o.submitted(task)
	return o.tasks.Get(task.ID), nil
}

// SubmitAll submits a batch of requests atomically: every request is
// validated and every id checked before any task is stored, so a rejected
// batch leaves nothing behind. Errors name the 1-based request index.
func (o *Orchestrator) SubmitAll(reqs []TaskRequest) ([]*models.Task, error) {
	batch := make([]*models.Task, 0, len(reqs))
	for i, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("task %d: submit task: %w", i+1, err)
		}
		batch = append(batch, o.newTask(req))
	}
	if err := o.tasks.AddAll(batch); err != nil {
		return nil, fmt.Errorf("submit batch: %w", err)
	}

	out := make([]*models.Task, 0, len(batch))
	for _, task := range batch {
		o.submitted(task)
		out = append(out, o.tasks.Get(task.ID))
	}
	return out, nil
}

// newTask builds a pending task from a validated request.
func (o *Orchestrator) newTask(req TaskRequest) *models.Task {
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := o.now()
	return &models.Task{
		ID:                   id,
		Type:                 req.Type,
		Priority:             priority,
		Description:          req.Description,
		Payload:              req.Payload,
		RequiredSkills:       req.RequiredSkills,
		RequiredCapabilities: req.RequiredCapabilities,
		Status:               models.TaskStatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func (o *Orchestrator) submitted(task *models.Task) {
	o.metrics.RecordSubmitted(task.Type, string(task.Priority))
	o.logger.Debug("task submitted", zap.String("task_id", task.ID), zap.String("type", task.Type))
	o.emit(Event{
		Kind:      EventTaskSubmitted,
		TaskID:    task.ID,
		TaskType:  task.Type,
		Status:    task.Status,
		Timestamp: task.CreatedAt,
	})
}

// Assign matches a pending task to an agent and emits EventTaskAssigned.
// With ErrNoAgentAvailable the task stays pending and nothing is emitted.
func (o *Orchestrator) Assign(taskID string) (string, error) {
	agentID, err := o.scheduler.Assign(taskID)
	if err != nil {
		if errors.Is(err, ErrNoAgentAvailable) {
			if t := o.tasks.Get(taskID); t != nil {
				o.metrics.RecordAssignment(t.Type, "no_agent")
			}
		}
		return "", err
	}

	task := o.tasks.Get(taskID)
	o.metrics.RecordAssignment(task.Type, "assigned")
	o.refreshAgentMetrics()
	o.emit(Event{
		Kind:      EventTaskAssigned,
		TaskID:    task.ID,
		TaskType:  task.Type,
		AgentID:   agentID,
		Status:    task.Status,
		Timestamp: o.now(),
	})
	return agentID, nil
}

// Run executes an assigned task and completes it. A task whose work fails
// ends in failed status with a nil error; the returned error is reserved
// for broken core state. Only one Run of a task may execute at a time; a
// concurrent second call fails with ErrInvalidTransition.
func (o *Orchestrator) Run(ctx context.Context, taskID string) (*models.Task, error) {
	if err := o.scheduler.Claim(taskID); err != nil {
		return nil, fmt.Errorf("run task %s: %w", taskID, err)
	}
	defer o.scheduler.Release(taskID)

	task := o.tasks.Get(taskID)
	agent := o.agents.Get(task.AssignedAgentID)
	if agent == nil {
		return nil, fmt.Errorf("run task %s: assigned agent %q: %w", taskID, task.AssignedAgentID, ErrInconsistentState)
	}

	res := o.coordinator.Execute(ctx, task, agent, o.tools, o.work)

	if err := o.scheduler.Complete(taskID, res.Outcome()); err != nil {
		o.logger.Error("completion failed", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}

	done := o.tasks.Get(taskID)
	duration := time.Duration(res.DurationMs * float64(time.Millisecond))
	o.metrics.RecordCompletion(done.Type, string(done.Status), duration)
	o.refreshAgentMetrics()
	o.recordEpisode(done, res)
	o.emit(Event{
		Kind:       EventTaskCompleted,
		TaskID:     done.ID,
		TaskType:   done.Type,
		AgentID:    agent.ID,
		Status:     done.Status,
		Duration:   duration,
		Operations: res.Operations,
		Error:      res.Err,
		Timestamp:  o.now(),
	})
	return done, nil
}

// Process submits, assigns and runs a task in one call. When no agent is
// available it returns the pending task together with ErrNoAgentAvailable.
func (o *Orchestrator) Process(ctx context.Context, req TaskRequest) (*models.Task, error) {
	task, err := o.Submit(req)
	if err != nil {
		return nil, err
	}
	if _, err := o.Assign(task.ID); err != nil {
		return o.tasks.Get(task.ID), err
	}
	return o.Run(ctx, task.ID)
}

// ProcessPending retries assignment of every pending task in submission
// order and runs the assigned ones concurrently, at most maxConcurrency at
// a time. It returns how many tasks were run. Tasks for which no agent is
// available stay pending.
func (o *Orchestrator) ProcessPending(ctx context.Context) (int, error) {
	var g errgroup.Group
	g.SetLimit(o.maxConcurrency)

	started := 0
	for _, task := range o.tasks.ListByStatus(models.TaskStatusPending) {
		if err := ctx.Err(); err != nil {
			break
		}
		if _, err := o.Assign(task.ID); err != nil {
			if errors.Is(err, ErrNoAgentAvailable) {
				continue
			}
			_ = g.Wait()
			return started, err
		}
		started++
		taskID := task.ID
		g.Go(func() error {
			_, err := o.Run(ctx, taskID)
			return err
		})
	}
	return started, g.Wait()
}

// MarkAgentOffline takes an idle agent out of rotation.
func (o *Orchestrator) MarkAgentOffline(agentID string) error {
	if err := o.scheduler.MarkOffline(agentID); err != nil {
		return err
	}
	o.refreshAgentMetrics()
	return nil
}

// MarkAgentOnline returns an offline agent to idle.
func (o *Orchestrator) MarkAgentOnline(agentID string) error {
	if err := o.scheduler.MarkOnline(agentID); err != nil {
		return err
	}
	o.refreshAgentMetrics()
	return nil
}

// Task returns a copy of the task, or nil.
func (o *Orchestrator) Task(taskID string) *models.Task {
	return o.tasks.Get(taskID)
}

// Tasks returns copies of all tasks in submission order.
func (o *Orchestrator) Tasks() []*models.Task {
	return o.tasks.List()
}

// Agent returns a copy of the agent, or nil.
func (o *Orchestrator) Agent(agentID string) *models.Agent {
	return o.agents.Get(agentID)
}

// Agents returns copies of all agents in registration order.
func (o *Orchestrator) Agents() []*models.Agent {
	return o.agents.All()
}

// Stats counts tasks and agents by status.
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		Tasks:  make(map[models.TaskStatus]int),
		Agents: make(map[models.AgentStatus]int),
	}
	for _, t := range o.tasks.List() {
		s.Tasks[t.Status]++
	}
	for _, a := range o.agents.All() {
		s.Agents[a.Status]++
	}
	return s
}

func (o *Orchestrator) recordEpisode(task *models.Task, res ExecutionResult) {
	if o.memory == nil {
		return
	}
	o.memory.RememberTask(models.TaskMemory{
		TaskID:      task.ID,
		Type:        task.Type,
		Description: task.Description,
		AgentID:     task.AssignedAgentID,
		Status:      task.Status,
		DurationMs:  res.DurationMs,
		Result:      task.Result,
		Error:       task.Error,
	})
	if agent := o.agents.Get(task.AssignedAgentID); agent != nil {
		o.memory.RecordAgentOutcome(agent, res.DurationMs, res.Success)
	}
}

// emit hands the event to the sink. Sinks are expected not to block.
func (o *Orchestrator) emit(e Event) {
	o.sink.OnEvent(e)
	if d, ok := o.sink.(interface{ DroppedCount() uint64 }); ok {
		o.metrics.SetDroppedEvents(d.DroppedCount())
	}
}

func (o *Orchestrator) refreshAgentMetrics() {
	if o.metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, a := range o.agents.All() {
		counts[string(a.Status)]++
	}
	o.metrics.SetAgentCounts(counts)
}
