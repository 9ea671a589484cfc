package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// simulatedTools builds a ToolSet with one handler per capability any
// agent declares. Handlers wait for the configured latency and fail for
// capabilities listed in tools.failing. Calls are rate limited per
// capability when tools.rate_limit is set.
func simulatedTools(tc config.ToolsConfig, agents []config.AgentConfig) orchestrator.ToolAdapter {
	set := orchestrator.ToolSet{}
	for _, a := range agents {
		for _, capability := range a.Capabilities {
			if _, ok := set[capability]; ok {
				continue
			}
			failing := slices.Contains(tc.Failing, capability)
			set[capability] = func(ctx context.Context, capability string, params map[string]any) (any, error) {
				if err := sleep(ctx, tc.Latency); err != nil {
					return nil, err
				}
				if failing {
					return nil, fmt.Errorf("%s: simulated outage", capability)
				}
				return map[string]any{"capability": capability, "params": len(params)}, nil
			}
		}
	}

	if tc.RateLimit > 0 {
		return orchestrator.NewRateLimitedTools(set, tc.RateLimit, tc.Burst)
	}
	return set
}

// simulatedWork completes every task after the configured latency. A task
// whose payload sets "fail" to true fails in the work stage.
func simulatedWork(tc config.ToolsConfig) orchestrator.WorkAdapter {
	return orchestrator.WorkAdapterFunc(func(ctx context.Context, task *models.Task, agent *models.Agent) (any, error) {
		if err := sleep(ctx, tc.Latency); err != nil {
			return nil, err
		}
		if fail, _ := task.Payload["fail"].(bool); fail {
			return nil, fmt.Errorf("task %s requested failure", task.ID)
		}
		return fmt.Sprintf("%s handled %s", agent.Name, task.Type), nil
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
