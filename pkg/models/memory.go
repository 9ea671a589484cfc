package models

import (
	"slices"
	"time"
)

// TaskMemory is the historical record of one finished task.
type TaskMemory struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"taskId"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	AgentID     string     `json:"agentId,omitempty"`
	Status      TaskStatus `json:"status"`
	DurationMs  float64    `json:"durationMs"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// ConversationMemory records one exchange between a user and an agent.
type ConversationMemory struct {
	ID            string    `json:"id"`
	AgentID       string    `json:"agentId,omitempty"`
	UserInput     string    `json:"userInput"`
	AgentResponse string    `json:"agentResponse"`
	Context       string    `json:"context,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ConfigurationMemory records a configuration decision or value.
type ConfigurationMemory struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AgentMemory holds cumulative historical statistics for an agent. It is
// separate from the live registry record and is never pruned.
type AgentMemory struct {
	AgentID         string    `json:"agentId"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	TasksCompleted  uint      `json:"tasksCompleted"`
	TasksFailed     uint      `json:"tasksFailed"`
	TotalDurationMs float64   `json:"totalDurationMs"`
	LastActive      time.Time `json:"lastActive"`
}

// ProjectMemory is the aggregate of everything remembered for one deployment.
type ProjectMemory struct {
	ProjectName    string                `json:"projectName"`
	TechStack      []string              `json:"techStack"`
	Tasks          []TaskMemory          `json:"tasks"`
	Conversations  []ConversationMemory  `json:"conversations"`
	Configurations []ConfigurationMemory `json:"configurations"`
	Learnings      []KnowledgeEntry      `json:"learnings"`
	Agents         []AgentMemory         `json:"agents"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// Clone returns a copy of the memory whose slices do not alias the original.
func (m ProjectMemory) Clone() ProjectMemory {
	m.TechStack = slices.Clone(m.TechStack)
	m.Tasks = slices.Clone(m.Tasks)
	m.Conversations = slices.Clone(m.Conversations)
	m.Configurations = slices.Clone(m.Configurations)
	if m.Learnings != nil {
		learnings := make([]KnowledgeEntry, len(m.Learnings))
		for i, e := range m.Learnings {
			learnings[i] = e.Clone()
		}
		m.Learnings = learnings
	}
	m.Agents = slices.Clone(m.Agents)
	return m
}
