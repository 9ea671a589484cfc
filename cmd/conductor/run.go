package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conductor/internal/inbox"
	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	runFile string
	runJSON bool
)

var runCmd = &cobra.Command{
	Use:   "run -f <tasks.yaml>",
	Short: "Run a batch of tasks",
	Long: `Run every task in a YAML file against the configured agents.

Tasks are submitted in file order, then assigned and executed until no
pending task can be matched to an agent. Tool calls and work go through
the simulated adapters configured under tools:, and every finished task
is recorded in project memory.

A task file is either a list of tasks or a mapping with a tasks key:

  - type: deploy
    priority: high
    required_skills: [kubernetes]
    required_capabilities: [github]
  - type: report
    payload:
      fail: true   # simulated work failure`,
	Args: cobra.NoArgs,
	RunE: runBatchCmd,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Task file to run (required)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print final task records as JSON")
	_ = runCmd.MarkFlagRequired("file")
}

func runBatchCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reqs, err := inbox.LoadTasks(runFile)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, stats, err := runBatch(ctx, a, reqs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tasks); err != nil {
			return err
		}
	} else {
		printOutcomes(out, tasks, stats)
	}

	if err := a.save(ctx); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// runBatch submits reqs as one batch and sweeps pending tasks until a sweep
// starts nothing. Tasks no agent can take are left pending.
func runBatch(ctx context.Context, a *app, reqs []orchestrator.TaskRequest) ([]*models.Task, orchestrator.Stats, error) {
	orch, err := a.newOrchestrator(orchestrator.NewLogSink(a.logger))
	if err != nil {
		return nil, orchestrator.Stats{}, err
	}

	if _, err := orch.SubmitAll(reqs); err != nil {
		return nil, orchestrator.Stats{}, err
	}

	for sweep := 1; ; sweep++ {
		n, err := orch.ProcessPending(ctx)
		if err != nil {
			return nil, orchestrator.Stats{}, err
		}
		a.logger.Debug("sweep finished", zap.Int("sweep", sweep), zap.Int("ran", n))
		if n == 0 {
			break
		}
	}
	return orch.Tasks(), orch.Stats(), nil
}

func printOutcomes(w io.Writer, tasks []*models.Task, stats orchestrator.Stats) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusCompleted:
			green.Fprint(w, "✓ ")
			fmt.Fprintf(w, "%-36s %-12s %s: %v\n", t.ID, t.Type, t.AssignedAgentID, t.Result)
		case models.TaskStatusFailed:
			red.Fprint(w, "✗ ")
			fmt.Fprintf(w, "%-36s %-12s %s: %s\n", t.ID, t.Type, t.AssignedAgentID, t.Error)
		default:
			yellow.Fprint(w, "… ")
			fmt.Fprintf(w, "%-36s %-12s %s (no agent available)\n", t.ID, t.Type, t.Status)
		}
	}

	fmt.Fprintf(w, "\n%d tasks: %d completed, %d failed, %d pending\n",
		len(tasks),
		stats.Tasks[models.TaskStatusCompleted],
		stats.Tasks[models.TaskStatusFailed],
		stats.Tasks[models.TaskStatusPending])
}
