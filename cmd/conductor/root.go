package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/logging"
)

var (
	cfgFile     string
	logLevelArg string

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Multi-agent task orchestrator",
	Long: `Conductor matches tasks to the best-fit agent, runs each task through
its tool integrations and records the outcome.

Agents are scored on skill match, success rate and availability. Every
finished task is remembered, and learned knowledge can be searched or
ranked against a new context.

Configuration is read from ~/.config/conductor/config.yaml, then
.conductor.yaml in the project, then CONDUCTOR_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return initRuntime()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: user and project config)")
	rootCmd.PersistentFlags().StringVar(&logLevelArg, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// initRuntime loads configuration and builds the logger.
func initRuntime() error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFromPath(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevelArg != "" {
		cfg.Log.Level = logLevelArg
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	l, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = l
	logger.Debug("config loaded",
		zap.String("project", cfg.Project.Name),
		zap.String("persistence", cfg.Persistence.Backend),
		zap.Int("agents", len(cfg.Agents)))
	return nil
}
