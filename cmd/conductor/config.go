package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/config"
)

var (
	configInitUser  bool
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after defaults, user config, project config
and environment overrides have been applied.

Configuration is stored at ~/.config/conductor/config.yaml
Project-specific overrides can be placed in .conductor.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		displayAllConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ProjectConfigName
		if configInitUser {
			path = config.GetUserConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(config.Default(), path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		abs, _ := filepath.Abs(path)
		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", color.GreenString("✓"), abs)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitUser, "user", false, "Write the user config instead of .conductor.yaml")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	redisPassword := "(not set)"
	if cfg.Persistence.Redis.Password != "" {
		redisPassword = "****"
	}

	fmt.Fprintf(w, "project.name: %s\n", cfg.Project.Name)
	fmt.Fprintf(w, "project.tech_stack: %v\n", cfg.Project.TechStack)
	fmt.Fprintf(w, "log.level: %s\n", cfg.Log.Level)
	fmt.Fprintf(w, "log.format: %s\n", cfg.Log.Format)
	fmt.Fprintf(w, "log.output_paths: %v\n", cfg.Log.OutputPaths)
	fmt.Fprintf(w, "orchestrator.max_concurrency: %d\n", cfg.Orchestrator.MaxConcurrency)
	fmt.Fprintf(w, "orchestrator.event_buffer: %d\n", cfg.Orchestrator.EventBuffer)
	fmt.Fprintf(w, "tools.rate_limit: %g\n", cfg.Tools.RateLimit)
	fmt.Fprintf(w, "tools.burst: %d\n", cfg.Tools.Burst)
	fmt.Fprintf(w, "tools.failing: %v\n", cfg.Tools.Failing)
	fmt.Fprintf(w, "tools.latency: %s\n", cfg.Tools.Latency)
	fmt.Fprintf(w, "persistence.backend: %s\n", cfg.Persistence.Backend)
	fmt.Fprintf(w, "persistence.path: %s\n", cfg.Persistence.Path)
	fmt.Fprintf(w, "persistence.key: %s\n", cfg.Persistence.Key)
	if cfg.Persistence.Backend == config.BackendRedis {
		fmt.Fprintf(w, "persistence.redis.addr: %s\n", cfg.Persistence.Redis.Addr)
		fmt.Fprintf(w, "persistence.redis.password: %s\n", redisPassword)
		fmt.Fprintf(w, "persistence.redis.db: %d\n", cfg.Persistence.Redis.DB)
		fmt.Fprintf(w, "persistence.redis.key_prefix: %s\n", cfg.Persistence.Redis.KeyPrefix)
		fmt.Fprintf(w, "persistence.redis.history: %d\n", cfg.Persistence.Redis.History)
	}
	fmt.Fprintf(w, "metrics.enabled: %t\n", cfg.Metrics.Enabled)
	fmt.Fprintf(w, "metrics.namespace: %s\n", cfg.Metrics.Namespace)
	fmt.Fprintf(w, "metrics.addr: %s\n", cfg.Metrics.Addr)
	fmt.Fprintf(w, "inbox.dir: %s\n", cfg.Inbox.Dir)
	fmt.Fprintf(w, "inbox.poll_interval: %s\n", cfg.Inbox.PollInterval)
	fmt.Fprintf(w, "agents: %d configured\n", len(cfg.Agents))
}
