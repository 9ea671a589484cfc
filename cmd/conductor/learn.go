package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	learnCategory    string
	learnFilter      string
	learnTitle       string
	learnDescription string
	learnContext     string
	learnSolution    string
	learnTags        []string
	learnConfidence  float64
	learnLimit       int
)

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Manage learned knowledge",
	Long: `Manage knowledge entries in project memory.

Usage:
  conductor learn                                # List recent learnings
  conductor learn add --title T --category C    # Add a learning
  conductor learn search "query" [--category C] # Search learnings
  conductor learn relevant "some context"       # Rank by relevance to a context
  conductor learn use <id>                      # Record that a learning was applied
  conductor learn show <id>                     # Show learning details
  conductor learn tag <tag>                     # List learnings with a tag

Categories: pattern, solution, best_practice, pitfall, lesson_learned.
Only learnings marked used with 'learn use' rank as relevant.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			listRecentLearnings(cmd.OutOrStdout(), a.memory.Memory().Learnings, learnLimit)
			return nil
		})
	},
}

var learnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a learning",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(ctx context.Context, a *app) error {
			id, err := a.memory.Learn(models.KnowledgeEntry{
				Category:    models.KnowledgeCategory(learnCategory),
				Title:       learnTitle,
				Description: learnDescription,
				Context:     learnContext,
				Solution:    learnSolution,
				Tags:        learnTags,
				Confidence:  learnConfidence,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Learning added: %s\n", color.GreenString("✓"), id)
			return nil
		})
	},
}

var learnSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search learnings by keyword",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			results := a.memory.Search(query, models.KnowledgeCategory(learnFilter))
			printLearningList(cmd.OutOrStdout(), results, "No learnings found matching query.")
			return nil
		})
	},
}

var learnRelevantCmd = &cobra.Command{
	Use:   "relevant <context>",
	Short: "Rank learnings against a context",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			results := a.memory.RelevantTo(strings.Join(args, " "))
			printLearningList(cmd.OutOrStdout(), results, "No relevant learnings. Mark applied ones with 'conductor learn use <id>'.")
			return nil
		})
	},
}

var learnUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Record that a learning was applied",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(ctx context.Context, a *app) error {
			if err := a.memory.MarkUsed(args[0]); err != nil {
				return err
			}
			e, err := a.memory.Entry(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s used %d time(s)\n", e.ID, e.TimesUsed)
			return nil
		})
	},
}

var learnShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show learning details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			e, err := a.memory.Entry(args[0])
			if err != nil {
				return err
			}
			printLearningDetailed(cmd.OutOrStdout(), e)
			return nil
		})
	},
}

var learnTagCmd = &cobra.Command{
	Use:   "tag <tag>",
	Short: "List learnings carrying a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(ctx context.Context, a *app) error {
			results := a.memory.ByTag(args[0])
			printLearningList(cmd.OutOrStdout(), results, fmt.Sprintf("No learnings tagged %q.", args[0]))
			return nil
		})
	},
}

func init() {
	learnCmd.Flags().IntVarP(&learnLimit, "limit", "n", 10, "How many recent learnings to list")

	learnAddCmd.Flags().StringVarP(&learnCategory, "category", "c", string(models.KnowledgeCategoryLessonLearned), "Knowledge category")
	learnAddCmd.Flags().StringVarP(&learnTitle, "title", "t", "", "Short title (required)")
	learnAddCmd.Flags().StringVar(&learnDescription, "description", "", "What was learned")
	learnAddCmd.Flags().StringVar(&learnContext, "context", "", "Where it applies")
	learnAddCmd.Flags().StringVar(&learnSolution, "solution", "", "What to do")
	learnAddCmd.Flags().StringSliceVar(&learnTags, "tag", nil, "Tag (repeatable or comma-separated)")
	learnAddCmd.Flags().Float64Var(&learnConfidence, "confidence", 0.5, "Confidence in [0,1]")
	_ = learnAddCmd.MarkFlagRequired("title")

	learnSearchCmd.Flags().StringVarP(&learnFilter, "category", "c", "", "Only this category")

	learnCmd.AddCommand(learnAddCmd, learnSearchCmd, learnRelevantCmd, learnUseCmd, learnShowCmd, learnTagCmd)
}

// withApp opens the app, runs fn and saves memory afterwards when save is
// set and fn succeeded.
func withApp(cmd *cobra.Command, save bool, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		return err
	}
	if save {
		if err := a.save(ctx); err != nil {
			return fmt.Errorf("save memory: %w", err)
		}
	}
	return nil
}

// listRecentLearnings prints the last n learnings, newest first.
func listRecentLearnings(w io.Writer, all []models.KnowledgeEntry, n int) {
	if len(all) == 0 {
		fmt.Fprintln(w, "No learnings stored yet.")
		fmt.Fprintln(w, "\nAdd a learning with:")
		fmt.Fprintln(w, "  conductor learn add --title \"...\" --category pattern --tag go")
		return
	}
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	recent := make([]models.KnowledgeEntry, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		recent = append(recent, all[i])
	}
	fmt.Fprintf(w, "Recent learnings (%d of %d):\n\n", n, len(all))
	for _, e := range recent {
		printLearningCompact(w, e)
	}
}

func printLearningList(w io.Writer, entries []models.KnowledgeEntry, empty string) {
	if len(entries) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	fmt.Fprintf(w, "Found %d learning(s):\n\n", len(entries))
	for _, e := range entries {
		printLearningCompact(w, e)
	}
}

// printLearningCompact prints a compact learning summary
func printLearningCompact(w io.Writer, e models.KnowledgeEntry) {
	fmt.Fprintf(w, "[%s] %s %s\n", e.ID, color.CyanString(string(e.Category)), truncate(e.Title, 60))
	if e.Solution != "" {
		fmt.Fprintf(w, "         %s\n", truncate(e.Solution, 70))
	}
	fmt.Fprintf(w, "         confidence %.2f, used %d\n\n", e.Confidence, e.TimesUsed)
}

// printLearningDetailed prints full details about a learning
func printLearningDetailed(w io.Writer, e models.KnowledgeEntry) {
	fmt.Fprintf(w, "ID:          %s\n", e.ID)
	fmt.Fprintf(w, "Category:    %s\n", e.Category)
	fmt.Fprintf(w, "Title:       %s\n", e.Title)
	fmt.Fprintf(w, "Confidence:  %.2f\n", e.Confidence)
	fmt.Fprintf(w, "Times used:  %d\n", e.TimesUsed)
	fmt.Fprintf(w, "Last used:   %s\n", e.LastUsed.Format(time.RFC3339))
	if len(e.Tags) > 0 {
		fmt.Fprintf(w, "Tags:        %s\n", strings.Join(e.Tags, ", "))
	}
	if e.Description != "" {
		fmt.Fprintf(w, "\n%s\n", e.Description)
	}
	if e.Context != "" {
		fmt.Fprintf(w, "\nContext:  %s\n", e.Context)
	}
	if e.Solution != "" {
		fmt.Fprintf(w, "Solution: %s\n", e.Solution)
	}
}

// truncate shortens a string to max runes, adding an ellipsis if needed
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
