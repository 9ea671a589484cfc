package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAgentAvailable means no idle agent matches the task. The task
	// stays pending and may be retried.
	ErrNoAgentAvailable = errors.New("no agent available")
	// ErrDuplicateID means a record with the same id is already registered.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInconsistentState means the task/agent linkage is broken. It signals
	// a programming error and is not recovered.
	ErrInconsistentState = errors.New("inconsistent state")
	// ErrToolInvocation wraps a failed capability call. It is logged and
	// absorbed, never propagated out of the coordinator.
	ErrToolInvocation = errors.New("tool invocation failed")
	// ErrWorkExecution wraps a failed work adapter call and fails the task.
	ErrWorkExecution = errors.New("work execution failed")

	ErrTaskNotFound      = errors.New("task not found")
	ErrAgentNotFound     = errors.New("agent not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAgentBusy         = errors.New("agent is busy")
)

// Stages reported in StageError.
const (
	StageTool = "tool"
	StageWork = "work"
)

// StageError records which execution stage produced an error.
type StageError struct {
	Stage string
	// Capability is set for tool-stage errors.
	Capability string
	Err        error
}

func (e *StageError) Error() string {
	if e.Capability != "" {
		return fmt.Sprintf("%s stage (%s): %v", e.Stage, e.Capability, e.Err)
	}
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
