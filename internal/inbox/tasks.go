// Package inbox feeds tasks into the orchestrator from YAML files dropped
// into a directory.
package inbox

import (
	"errors"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/conductor/internal/orchestrator"
)

// ErrNoTasks means a task file parsed but held no tasks.
var ErrNoTasks = errors.New("task file contains no tasks")

// taskFile is the mapping form of a task file:
//
//	tasks:
//	  - type: deploy
//	    priority: high
type taskFile struct {
	Tasks []orchestrator.TaskRequest `yaml:"tasks"`
}

// ParseTasks decodes a task file. Both a top-level list of tasks and a
// mapping with a "tasks" key are accepted.
func ParseTasks(data []byte) ([]orchestrator.TaskRequest, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, ErrNoTasks
	}

	var tasks []orchestrator.TaskRequest
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&tasks); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
	case yaml.MappingNode:
		var f taskFile
		if err := doc.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
		tasks = f.Tasks
	default:
		return nil, fmt.Errorf("parse task file: expected a list or a mapping, got %s", doc.Tag)
	}

	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}
	return tasks, nil
}

// LoadTasks reads and parses the task file at path.
func LoadTasks(path string) ([]orchestrator.TaskRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	tasks, err := ParseTasks(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}
