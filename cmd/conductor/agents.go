package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List configured agents and their history",
	Long: `List the agents configured under agents:, together with the task
history remembered for each of them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			return printAgents(cmd.OutOrStdout(), cfg.Agents, a.memory.Memory().Agents)
		})
	},
}

func printAgents(w io.Writer, agents []config.AgentConfig, history []models.AgentMemory) error {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents configured. Add them under agents: in .conductor.yaml.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSKILLS\tCAPABILITIES\tDONE\tFAILED\tAVG MS")
	for _, ac := range agents {
		var done, failed uint
		avg := "-"
		if i := slices.IndexFunc(history, func(m models.AgentMemory) bool { return m.AgentID == ac.ID }); i >= 0 {
			h := history[i]
			done, failed = h.TasksCompleted, h.TasksFailed
			if n := h.TasksCompleted + h.TasksFailed; n > 0 {
				avg = fmt.Sprintf("%.0f", h.TotalDurationMs/float64(n))
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			ac.ID, ac.Type, joinOrDash(ac.Skills), joinOrDash(ac.Capabilities), done, failed, avg)
	}
	return tw.Flush()
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ",")
}
