package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conductor/internal/metrics"
	"github.com/ShayCichocki/conductor/pkg/models"
)

const tracerName = "github.com/ShayCichocki/conductor/internal/orchestrator"

// OperationInvoke is the operation name recorded for capability calls.
const OperationInvoke = "invoke"

// ToolAdapter performs one external integration call for a capability.
type ToolAdapter interface {
	Invoke(ctx context.Context, capability string, params map[string]any) (any, error)
}

// ToolAdapterFunc adapts a function to ToolAdapter.
type ToolAdapterFunc func(ctx context.Context, capability string, params map[string]any) (any, error)

// Invoke calls f.
func (f ToolAdapterFunc) Invoke(ctx context.Context, capability string, params map[string]any) (any, error) {
	return f(ctx, capability, params)
}

// WorkAdapter performs the primary unit of work an agent does for a task.
type WorkAdapter interface {
	Perform(ctx context.Context, task *models.Task, agent *models.Agent) (any, error)
}

// WorkAdapterFunc adapts a function to WorkAdapter.
type WorkAdapterFunc func(ctx context.Context, task *models.Task, agent *models.Agent) (any, error)

// Perform calls f.
func (f WorkAdapterFunc) Perform(ctx context.Context, task *models.Task, agent *models.Agent) (any, error) {
	return f(ctx, task, agent)
}

// ExecutionResult is what the coordinator reports for one task.
type ExecutionResult struct {
	DurationMs float64
	Success    bool
	Result     any
	// Operations holds one record per required capability, in order.
	Operations []models.Operation
	// Err is a *StageError when the work stage failed.
	Err error
}

// Outcome converts the result to the form Scheduler.Complete expects.
func (r ExecutionResult) Outcome() Outcome {
	return Outcome{
		DurationMs: r.DurationMs,
		Success:    r.Success,
		Result:     r.Result,
		Err:        r.Err,
	}
}

// FailedOperations returns the operations whose tool call failed.
func (r ExecutionResult) FailedOperations() []models.Operation {
	var failed []models.Operation
	for _, op := range r.Operations {
		if op.Status == models.OperationStatusFailed {
			failed = append(failed, op)
		}
	}
	return failed
}

// ExecutionCoordinator runs a task's tool fan-out and primary work.
//
// Tool calls are best effort: each capability is invoked in order and a
// failure is logged, recorded on its Operation, and otherwise ignored. The
// work adapter is strict: its failure is the only thing that fails a task.
type ExecutionCoordinator struct {
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *metrics.Collector
	now     func() time.Time
	newID   func() string
}

// NewExecutionCoordinator creates a coordinator. A nil tracer uses the
// global OpenTelemetry tracer provider.
func NewExecutionCoordinator(logger *zap.Logger, tracer trace.Tracer, collector *metrics.Collector) *ExecutionCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &ExecutionCoordinator{
		logger:  logger.With(zap.String("component", "coordinator")),
		tracer:  tracer,
		metrics: collector,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// Execute invokes tools for every required capability and then the work
// adapter. DurationMs covers the whole call.
func (c *ExecutionCoordinator) Execute(ctx context.Context, task *models.Task, agent *models.Agent, tools ToolAdapter, work WorkAdapter) ExecutionResult {
	start := c.now()

	ctx, span := c.tracer.Start(ctx, "execute_task", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", task.Type),
		attribute.String("agent.id", agent.ID),
	))
	defer span.End()

	ops := make([]models.Operation, 0, len(task.RequiredCapabilities))
	for _, capability := range task.RequiredCapabilities {
		ops = append(ops, c.invokeTool(ctx, task, capability, tools))
	}

	result, err := c.performWork(ctx, task, agent, work)
	res := ExecutionResult{
		DurationMs: toMillis(c.now().Sub(start)),
		Success:    err == nil,
		Result:     result,
		Operations: ops,
	}
	if err != nil {
		res.Err = &StageError{Stage: StageWork, Err: fmt.Errorf("%w: %w", ErrWorkExecution, err)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "work failed")
		c.logger.Error("work failed",
			zap.String("task_id", task.ID),
			zap.String("agent_id", agent.ID),
			zap.Error(err))
	}
	span.SetAttributes(attribute.Int("tools.failed", len(res.FailedOperations())))
	return res
}

// invokeTool runs one capability call and records it as an Operation.
// Errors and panics are absorbed here.
func (c *ExecutionCoordinator) invokeTool(ctx context.Context, task *models.Task, capability string, tools ToolAdapter) models.Operation {
	op := models.Operation{
		ID:         c.newID(),
		Capability: capability,
		Name:       OperationInvoke,
		Parameters: maps.Clone(task.Payload),
		Status:     models.OperationStatusExecuting,
		StartTime:  c.now(),
	}

	ctx, span := c.tracer.Start(ctx, "invoke_tool", trace.WithAttributes(
		attribute.String("tool.capability", capability),
		attribute.String("operation.id", op.ID),
	))
	defer span.End()

	result, err := safeInvoke(ctx, tools, capability, op.Parameters)
	op.EndTime = c.now()
	if err != nil {
		err = &StageError{Stage: StageTool, Capability: capability, Err: fmt.Errorf("%w: %w", ErrToolInvocation, err)}
		op.Status = models.OperationStatusFailed
		op.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		c.logger.Warn("tool invocation failed",
			zap.String("task_id", task.ID),
			zap.String("capability", capability),
			zap.String("operation_id", op.ID),
			zap.Error(err))
	} else {
		op.Status = models.OperationStatusCompleted
		op.Result = result
	}
	c.metrics.RecordToolInvocation(capability, err == nil, op.Duration())
	return op
}

func (c *ExecutionCoordinator) performWork(ctx context.Context, task *models.Task, agent *models.Agent, work WorkAdapter) (result any, err error) {
	if work == nil {
		return nil, errors.New("no work adapter configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return work.Perform(ctx, task.Clone(), agent.Clone())
}

func safeInvoke(ctx context.Context, tools ToolAdapter, capability string, params map[string]any) (result any, err error) {
	if tools == nil {
		return nil, errors.New("no tool adapter configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tools.Invoke(ctx, capability, params)
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
