package models

import "time"

// OperationStatus represents the state of a single tool invocation.
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusExecuting OperationStatus = "executing"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// Operation records one tool invocation made while executing a task.
// Operations live only as long as the execution that produced them unless
// they are copied into project memory.
type Operation struct {
	ID         string          `json:"id"`
	Capability string          `json:"capability"`
	Name       string          `json:"name"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Status     OperationStatus `json:"status"`
	Result     any             `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartTime  time.Time       `json:"startTime"`
	EndTime    time.Time       `json:"endTime"`
}

// Duration returns the elapsed time of a finished operation.
func (o Operation) Duration() time.Duration {
	if o.EndTime.IsZero() {
		return 0
	}
	return o.EndTime.Sub(o.StartTime)
}
