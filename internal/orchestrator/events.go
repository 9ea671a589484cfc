package orchestrator

import (
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// EventKind represents the type of lifecycle notification.
type EventKind string

const (
	// EventTaskSubmitted indicates a task was accepted and is pending.
	EventTaskSubmitted EventKind = "task_submitted"
	// EventTaskAssigned indicates a task was matched to an agent.
	EventTaskAssigned EventKind = "task_assigned"
	// EventTaskCompleted indicates a task reached a terminal status.
	// Status distinguishes completed from failed.
	EventTaskCompleted EventKind = "task_completed"
)

// Event is a lifecycle notification emitted by the orchestrator.
type Event struct {
	// Kind is the kind of event.
	Kind EventKind
	// TaskID is the ID of the related task.
	TaskID string
	// TaskType is the category of the related task.
	TaskType string
	// AgentID is the ID of the related agent, if any.
	AgentID string
	// Status is the task status after the event.
	Status models.TaskStatus
	// Duration is the execution time for completion events.
	Duration time.Duration
	// Operations are the tool invocations made for completion events.
	Operations []models.Operation
	// Error contains failure details for failed completions.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// NotificationSink receives lifecycle notifications. OnEvent is called
// synchronously from the orchestrator and must not block; sinks that do
// real work should hand the event off, as ChannelSink does.
type NotificationSink interface {
	OnEvent(Event)
}

// SinkFunc adapts a function to NotificationSink.
type SinkFunc func(Event)

// OnEvent calls f(e).
func (f SinkFunc) OnEvent(e Event) { f(e) }

// MultiSink fans each event out to every sink in order.
type MultiSink []NotificationSink

// OnEvent forwards e to each sink.
func (m MultiSink) OnEvent(e Event) {
	for _, s := range m {
		if s != nil {
			s.OnEvent(e)
		}
	}
}

type nopSink struct{}

func (nopSink) OnEvent(Event) {}
