package models

import (
	"slices"
	"time"
)

// AgentStatus represents the current availability of an agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent can accept a task.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusBusy indicates the agent is working on a task.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusOffline indicates the agent has been taken out of rotation.
	AgentStatusOffline AgentStatus = "offline"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusBusy, AgentStatusOffline:
		return true
	default:
		return false
	}
}

// Performance tracks how an agent has done on the tasks it finished.
type Performance struct {
	// TasksCompleted counts terminal transitions (completed or failed).
	TasksCompleted uint `json:"tasksCompleted"`
	// AverageDurationMs is the running average-of-averages task duration.
	AverageDurationMs float64 `json:"averageDurationMs"`
	// SuccessRate is in [0,1]. New agents start at 1.0.
	SuccessRate float64 `json:"successRate"`
}

// DefaultPerformance returns the performance record of a freshly registered agent.
func DefaultPerformance() Performance {
	return Performance{SuccessRate: 1.0}
}

// Agent represents a registered worker that can be assigned tasks.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Name is a human-readable label.
	Name string `json:"name"`
	// Type is the category tag matched against Task.Type.
	Type string `json:"type"`
	// Skills are free-form skill tags used for scoring.
	Skills []string `json:"skills,omitempty"`
	// Capabilities are the tool names this agent can use.
	Capabilities []string `json:"capabilities,omitempty"`
	// Status is the current availability of the agent.
	Status AgentStatus `json:"status"`
	// CurrentTaskID is set while the agent is busy.
	CurrentTaskID string `json:"currentTaskId,omitempty"`
	// Performance holds the agent's outcome statistics.
	Performance Performance `json:"performance"`
	// RegisteredAt is when the agent joined the registry.
	RegisteredAt time.Time `json:"registeredAt"`
}

// HasSkill reports whether the agent declares the given skill.
func (a *Agent) HasSkill(skill string) bool {
	return slices.Contains(a.Skills, skill)
}

// HasCapability reports whether the agent can use the named tool.
func (a *Agent) HasCapability(capability string) bool {
	return slices.Contains(a.Capabilities, capability)
}

// HasCapabilities reports whether every required capability is supported.
// An empty requirement is always satisfied.
func (a *Agent) HasCapabilities(required []string) bool {
	for _, c := range required {
		if !a.HasCapability(c) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	c.Skills = slices.Clone(a.Skills)
	c.Capabilities = slices.Clone(a.Capabilities)
	return &c
}
