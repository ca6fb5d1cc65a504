// Package config provides configuration loading for fixd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for fixd.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Store     StoreConfig     `koanf:"store"`
	Backup    BackupConfig    `koanf:"backup"`
	Safety    SafetyConfig    `koanf:"safety"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Server    ServerConfig    `koanf:"server"`
	GitHub    GitHubConfig    `koanf:"github"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// StoreConfig controls the pattern store and execution history backend.
type StoreConfig struct {
	// Path is the Badger database directory.
	Path string `koanf:"path"`

	// InMemory switches to a non-persistent store. Used by tests and by
	// degraded mode when the database directory is unavailable.
	InMemory bool `koanf:"in_memory"`
}

// BackupConfig controls the backup/rollback manager.
type BackupConfig struct {
	// Dir is the directory holding backup objects and ledgers.
	Dir string `koanf:"dir"`

	// Retention is how long backups are kept before the sweep removes them.
	Retention Duration `koanf:"retention"`
}

// SafetyConfig controls the safety validator.
type SafetyConfig struct {
	// AutoApplyThreshold is the minimum confidence for automatic application.
	AutoApplyThreshold float64 `koanf:"auto_apply_threshold"`

	// MaxSizeDelta is the maximum allowed byte delta a single fix may cause.
	MaxSizeDelta int `koanf:"max_size_delta"`
}

// SchedulerConfig controls background workflow scheduling.
type SchedulerConfig struct {
	// DefaultInterval is the initial interval for background jobs.
	DefaultInterval Duration `koanf:"default_interval"`

	// MinInterval bounds how short activity signals may shrink the interval.
	MinInterval Duration `koanf:"min_interval"`

	// MaxInterval bounds how long activity signals may stretch the interval.
	MaxInterval Duration `koanf:"max_interval"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// GitHubConfig controls the pull request publisher.
type GitHubConfig struct {
	Token     Secret   `koanf:"token"`
	Owner     string   `koanf:"owner"`
	Repo      string   `koanf:"repo"`
	BaseRef   string   `koanf:"base_ref"`
	Reviewers []string `koanf:"reviewers"`
}

// WorkflowConfig holds workflow templates and per-step policies.
type WorkflowConfig struct {
	// Repository identifies the repository being processed; it namespaces
	// pattern store keys.
	Repository string `koanf:"repository"`

	// WorkDir is the checkout the fixer mutates.
	WorkDir string `koanf:"work_dir"`

	// Templates maps template name to an ordered list of step identifiers.
	Templates map[string][]string `koanf:"templates"`

	// CriticalSteps lists step identifiers whose failure aborts the
	// execution instead of degrading it to partial.
	CriticalSteps []string `koanf:"critical_steps"`

	// AnalyzerCommand is the argv of the external analyzer. It runs in
	// WorkDir and prints a JSON array of issues on stdout.
	AnalyzerCommand []string `koanf:"analyzer_command"`

	// SuggesterCommand is the argv of the external suggester. It gets one
	// issue as JSON on stdin and prints a suggestion, or nothing when it
	// has none to offer.
	SuggesterCommand []string `koanf:"suggester_command"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Path: "~/.local/share/fixd/store",
		},
		Backup: BackupConfig{
			Dir:       "~/.local/share/fixd/backups",
			Retention: Duration(7 * 24 * time.Hour),
		},
		Safety: SafetyConfig{
			AutoApplyThreshold: 0.95,
			MaxSizeDelta:       4096,
		},
		Scheduler: SchedulerConfig{
			DefaultInterval: Duration(15 * time.Minute),
			MinInterval:     Duration(time.Minute),
			MaxInterval:     Duration(4 * time.Hour),
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 9480,
		},
		GitHub: GitHubConfig{
			BaseRef: "main",
		},
		Workflow: WorkflowConfig{
			Templates: map[string][]string{
				"full":    {"predict", "analyze", "fix", "integrate", "learn"},
				"analyze": {"analyze", "learn"},
			},
			CriticalSteps: []string{"analyze", "fix"},
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Safety.AutoApplyThreshold < 0 || c.Safety.AutoApplyThreshold > 1 {
		return fmt.Errorf("safety.auto_apply_threshold must be in [0,1], got %v", c.Safety.AutoApplyThreshold)
	}
	if c.Safety.MaxSizeDelta <= 0 {
		return fmt.Errorf("safety.max_size_delta must be positive, got %d", c.Safety.MaxSizeDelta)
	}

	if c.Scheduler.MinInterval.Duration() <= 0 {
		return fmt.Errorf("scheduler.min_interval must be positive")
	}
	if c.Scheduler.MaxInterval.Duration() < c.Scheduler.MinInterval.Duration() {
		return fmt.Errorf("scheduler.max_interval must be >= min_interval")
	}
	if d := c.Scheduler.DefaultInterval.Duration(); d < c.Scheduler.MinInterval.Duration() || d > c.Scheduler.MaxInterval.Duration() {
		return fmt.Errorf("scheduler.default_interval must be within [min_interval, max_interval]")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}

	for name, steps := range c.Workflow.Templates {
		if name == "" {
			return fmt.Errorf("workflow.templates contains an unnamed template")
		}
		if len(steps) == 0 {
			return fmt.Errorf("workflow template %q has no steps", name)
		}
	}

	return nil
}
