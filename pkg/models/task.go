package models

import (
	"maps"
	"slices"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been assigned.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed and failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
// The only edges are pending -> in_progress -> {completed, failed}.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusInProgress
	case TaskStatusInProgress:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Rank orders priorities from 0 (low) to 3 (critical). Unknown values rank -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return -1
	}
}

// Task represents a unit of requested work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Type is the category tag matched against Agent.Type.
	Type string `json:"type"`
	// Priority is the urgency of the task.
	Priority Priority `json:"priority"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Payload is opaque input handed to tools and the work adapter.
	Payload map[string]any `json:"payload,omitempty"`
	// RequiredSkills are matched against Agent.Skills for scoring.
	RequiredSkills []string `json:"requiredSkills,omitempty"`
	// RequiredCapabilities must all be supported by the assigned agent,
	// and are invoked in this order during execution.
	RequiredCapabilities []string `json:"requiredCapabilities,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// AssignedAgentID is the agent working on (or that worked on) this task.
	AssignedAgentID string `json:"assignedAgentId,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is refreshed on every transition.
	UpdatedAt time.Time `json:"updatedAt"`
	// Result is the work adapter's output, if any.
	Result any `json:"result,omitempty"`
	// Error describes the failing stage when Status is failed.
	Error string `json:"error,omitempty"`
}

// Clone returns a copy of the task. Payload is copied one level deep;
// Result is shared.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Payload = maps.Clone(t.Payload)
	c.RequiredSkills = slices.Clone(t.RequiredSkills)
	c.RequiredCapabilities = slices.Clone(t.RequiredCapabilities)
	return &c
}
