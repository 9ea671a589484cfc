// Package orchestrator matches tasks to agents and drives them through
// their lifecycle.
//
// The package is built leaf-first:
//   - AgentRegistry: agent descriptors with mutable status and performance
//   - TaskStore: submitted tasks, retained as history
//   - Scheduler: scoring-based assignment and completion bookkeeping
//   - ExecutionCoordinator: best-effort tool fan-out followed by strict work
//   - Orchestrator: the facade that wires the above and emits events
//
// A task moves Pending -> InProgress -> Completed or Failed and never takes
// any other edge. An agent is Busy exactly when it holds a current task.
//
// Example usage:
//
//	orch, err := orchestrator.New(orchestrator.RequiredConfig{
//		Tools: tools,
//		Work:  work,
//	}, orchestrator.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	task, err := orch.Process(ctx, orchestrator.TaskRequest{Type: "backend"})
package orchestrator
