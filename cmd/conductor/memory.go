package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/persistence"
)

var memoryExportOut string

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and move project memory",
	Long: `Inspect, export and import the project memory snapshot.

The snapshot is stored by the configured persistence backend under
persistence.key. Export and import use the same JSON document, so a
snapshot exported from one deployment can be imported into another.`,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize what is remembered",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			printMemoryStats(cmd.OutOrStdout(), a)
			return nil
		})
	},
}

var memoryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the memory snapshot as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			data, err := a.memory.Export()
			if err != nil {
				return err
			}
			if memoryExportOut == "" || memoryExportOut == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(memoryExportOut, data, 0644); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported to %s\n", color.GreenString("✓"), memoryExportOut)
			return nil
		})
	},
}

var memoryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the memory with a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		return withApp(cmd, true, func(ctx context.Context, a *app) error {
			if err := a.memory.Import(data); err != nil {
				return err
			}
			m := a.memory.Memory()
			fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %q: %d learnings, %d tasks\n",
				color.GreenString("✓"), m.ProjectName, len(m.Learnings), len(m.Tasks))
			return nil
		})
	},
}

var memoryHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored snapshot revisions",
	Long: `List earlier snapshot revisions. Only the sqlite and redis backends
keep history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			h, ok := a.sink.(persistence.Historian)
			if !ok {
				return fmt.Errorf("the %s backend keeps no history", cfg.Persistence.Backend)
			}
			revs, err := h.History(ctx, cfg.Persistence.Key)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), revs)
			return nil
		})
	},
}

func init() {
	memoryExportCmd.Flags().StringVarP(&memoryExportOut, "output", "o", "", "Output file (default: stdout)")
	memoryCmd.AddCommand(memoryStatsCmd, memoryExportCmd, memoryImportCmd, memoryHistoryCmd)
}

func printMemoryStats(w io.Writer, a *app) {
	m := a.memory.Memory()
	fmt.Fprintf(w, "project:        %s\n", m.ProjectName)
	if len(m.TechStack) > 0 {
		fmt.Fprintf(w, "tech stack:     %v\n", m.TechStack)
	}
	fmt.Fprintf(w, "tasks:          %d\n", len(m.Tasks))
	fmt.Fprintf(w, "conversations:  %d\n", len(m.Conversations))
	fmt.Fprintf(w, "configurations: %d\n", len(m.Configurations))
	fmt.Fprintf(w, "learnings:      %d\n", len(m.Learnings))
	fmt.Fprintf(w, "tags:           %d\n", len(a.memory.Graph()))
	fmt.Fprintf(w, "agents:         %d\n", len(m.Agents))
	fmt.Fprintf(w, "updated:        %s\n", m.UpdatedAt.Format(time.RFC3339))
}

func printHistory(w io.Writer, revs []persistence.Revision) {
	if len(revs) == 0 {
		fmt.Fprintln(w, "No snapshots saved yet.")
		return
	}
	for i, r := range revs {
		fmt.Fprintf(w, "%3d  %s  %8d bytes\n", i+1, r.SavedAt.Format(time.RFC3339), r.Size)
	}
}
