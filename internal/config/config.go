// Package config handles configuration loading and management for conductor.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// ProjectConfigName is the project-level config file looked up from the
// working directory upwards.
const ProjectConfigName = ".conductor.yaml"

// EnvPrefix prefixes every environment override, e.g. CONDUCTOR_LOG_LEVEL.
const EnvPrefix = "CONDUCTOR"

// Persistence backends.
const (
	BackendNone   = "none"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all configuration for conductor.
type Config struct {
	Project      ProjectConfig      `mapstructure:"project"`
	Log          LogConfig          `mapstructure:"log"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Tools        ToolsConfig        `mapstructure:"tools"`
	Persistence  PersistenceConfig  `mapstructure:"persistence"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Inbox        InboxConfig        `mapstructure:"inbox"`
	Agents       []AgentConfig      `mapstructure:"agents"`
}

// ProjectConfig names the project whose memory is kept.
type ProjectConfig struct {
	Name      string   `mapstructure:"name"`
	TechStack []string `mapstructure:"tech_stack"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is json or console.
	Format string `mapstructure:"format"`
	// OutputPaths are zap sinks such as stderr or a file path.
	OutputPaths []string `mapstructure:"output_paths"`
}

// OrchestratorConfig holds orchestration settings.
type OrchestratorConfig struct {
	// MaxConcurrency bounds how many tasks run at once in a sweep.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// EventBuffer is the notification channel size.
	EventBuffer int `mapstructure:"event_buffer"`
}

// ToolsConfig configures the built-in simulated tool adapter.
type ToolsConfig struct {
	// RateLimit is invocations per second per capability; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
	// Failing lists capabilities whose simulated calls always fail.
	Failing []string `mapstructure:"failing"`
	// Latency is added to every simulated call.
	Latency time.Duration `mapstructure:"latency"`
}

// PersistenceConfig selects where memory snapshots are stored.
type PersistenceConfig struct {
	// Backend is none, file, sqlite or redis.
	Backend string `mapstructure:"backend"`
	// Path is the directory (file) or database file (sqlite).
	Path string `mapstructure:"path"`
	// Key names the snapshot within the backend.
	Key   string      `mapstructure:"key"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	// History is how many previous snapshots are kept per key.
	History int `mapstructure:"history"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	// Addr is the listen address of the serve command's /metrics endpoint.
	Addr string `mapstructure:"addr"`
}

// InboxConfig holds settings for the task inbox watcher.
type InboxConfig struct {
	Dir string `mapstructure:"dir"`
	// PollInterval is how often the orchestrator sweeps pending tasks.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// AgentConfig describes a seed agent.
type AgentConfig struct {
	ID           string   `mapstructure:"id"`
	Name         string   `mapstructure:"name"`
	Type         string   `mapstructure:"type"`
	Skills       []string `mapstructure:"skills"`
	Capabilities []string `mapstructure:"capabilities"`
}

// Agent converts the descriptor to a model ready for registration.
func (a AgentConfig) Agent() *models.Agent {
	name := a.Name
	if name == "" {
		name = a.ID
	}
	return &models.Agent{
		ID:           a.ID,
		Name:         name,
		Type:         a.Type,
		Skills:       append([]string(nil), a.Skills...),
		Capabilities: append([]string(nil), a.Capabilities...),
		Status:       models.AgentStatusIdle,
		Performance:  models.DefaultPerformance(),
	}
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CONDUCTOR_LOG_LEVEL, CONDUCTOR_PERSISTENCE_BACKEND, ...)
// 2. Project config (.conductor.yaml in current directory or parent)
// 3. User config (~/.config/conductor/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file, still applying
// defaults and environment overrides.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Persistence.Redis.Password = os.ExpandEnv(cfg.Persistence.Redis.Password)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("project.name", cfg.Project.Name)
	v.Set("project.tech_stack", cfg.Project.TechStack)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("log.output_paths", cfg.Log.OutputPaths)
	v.Set("orchestrator.max_concurrency", cfg.Orchestrator.MaxConcurrency)
	v.Set("orchestrator.event_buffer", cfg.Orchestrator.EventBuffer)
	v.Set("tools.rate_limit", cfg.Tools.RateLimit)
	v.Set("tools.burst", cfg.Tools.Burst)
	v.Set("tools.failing", cfg.Tools.Failing)
	v.Set("tools.latency", cfg.Tools.Latency.String())
	v.Set("persistence.backend", cfg.Persistence.Backend)
	v.Set("persistence.path", cfg.Persistence.Path)
	v.Set("persistence.key", cfg.Persistence.Key)
	v.Set("persistence.redis.addr", cfg.Persistence.Redis.Addr)
	v.Set("persistence.redis.db", cfg.Persistence.Redis.DB)
	v.Set("persistence.redis.key_prefix", cfg.Persistence.Redis.KeyPrefix)
	v.Set("persistence.redis.history", cfg.Persistence.Redis.History)
	v.Set("metrics.enabled", cfg.Metrics.Enabled)
	v.Set("metrics.namespace", cfg.Metrics.Namespace)
	v.Set("metrics.addr", cfg.Metrics.Addr)
	v.Set("inbox.dir", cfg.Inbox.Dir)
	v.Set("inbox.poll_interval", cfg.Inbox.PollInterval.String())

	agents := make([]map[string]any, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, map[string]any{
			"id":           a.ID,
			"name":         a.Name,
			"type":         a.Type,
			"skills":       a.Skills,
			"capabilities": a.Capabilities,
		})
	}
	v.Set("agents", agents)

	return v.WriteConfig()
}

// Validate checks that settings are usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	if c.Orchestrator.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("orchestrator.max_concurrency must be at least 1, got %d", c.Orchestrator.MaxConcurrency))
	}
	if c.Orchestrator.EventBuffer < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.event_buffer must not be negative, got %d", c.Orchestrator.EventBuffer))
	}
	if c.Inbox.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("inbox.poll_interval must be positive, got %s", c.Inbox.PollInterval))
	}
	if c.Tools.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("tools.rate_limit must not be negative, got %v", c.Tools.RateLimit))
	}

	switch c.Persistence.Backend {
	case BackendNone:
	case BackendFile, BackendSQLite:
		if c.Persistence.Path == "" {
			errs = append(errs, fmt.Errorf("persistence.path is required for the %s backend", c.Persistence.Backend))
		}
	case BackendRedis:
		if c.Persistence.Redis.Addr == "" {
			errs = append(errs, errors.New("persistence.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("persistence.backend %q must be none, file, sqlite or redis", c.Persistence.Backend))
	}
	if c.Persistence.Backend != BackendNone && c.Persistence.Key == "" {
		errs = append(errs, errors.New("persistence.key is required"))
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" || a.Type == "" {
			errs = append(errs, fmt.Errorf("agents[%d] needs both id and type", i))
			continue
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID))
		}
		seen[a.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("project.name", "default")
	v.SetDefault("project.tech_stack", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_paths", []string{"stderr"})

	v.SetDefault("orchestrator.max_concurrency", 4)
	v.SetDefault("orchestrator.event_buffer", 256)

	v.SetDefault("tools.rate_limit", 0)
	v.SetDefault("tools.burst", 1)
	v.SetDefault("tools.failing", []string{})
	v.SetDefault("tools.latency", "0s")

	v.SetDefault("persistence.backend", BackendFile)
	v.SetDefault("persistence.path", ".conductor")
	v.SetDefault("persistence.key", "memory")
	v.SetDefault("persistence.redis.addr", "localhost:6379")
	v.SetDefault("persistence.redis.password", "")
	v.SetDefault("persistence.redis.db", 0)
	v.SetDefault("persistence.redis.key_prefix", "conductor:")
	v.SetDefault("persistence.redis.history", 10)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "conductor")
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("inbox.dir", filepath.Join(".conductor", "inbox"))
	v.SetDefault("inbox.poll_interval", "2s")
}

// getUserConfigDir returns the XDG config directory for conductor.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conductor")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conductor")
	}
	return filepath.Join(home, ".config", "conductor")
}

// findProjectConfig searches for .conductor.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Name:      "default",
			TechStack: []string{},
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrency: 4,
			EventBuffer:    256,
		},
		Tools: ToolsConfig{
			Burst:   1,
			Failing: []string{},
		},
		Persistence: PersistenceConfig{
			Backend: BackendFile,
			Path:    ".conductor",
			Key:     "memory",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "conductor:",
				History:   10,
			},
		},
		Metrics: MetricsConfig{
			Namespace: "conductor",
			Addr:      ":9090",
		},
		Inbox: InboxConfig{
			Dir:          filepath.Join(".conductor", "inbox"),
			PollInterval: 2 * time.Second,
		},
	}
}
