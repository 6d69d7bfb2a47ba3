// Package config loads workspace configuration from YAML with environment
// overrides. The Gemini API key is only ever read here and handed to the
// intel client; nothing else sees it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all multiview configuration.
type Config struct {
	// Workspace grid and layout
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Network interception and filtering
	Blocking BlockingConfig `yaml:"blocking"`

	// Video intelligence (transcripts + LLM)
	Intel IntelConfig `yaml:"intel"`

	// Browser engine
	Browser BrowserConfig `yaml:"browser"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// WorkspaceConfig configures the agent grid.
type WorkspaceConfig struct {
	Slots            int    `yaml:"slots"`
	WindowWidth      int    `yaml:"window_width"`
	WindowHeight     int    `yaml:"window_height"`
	ReconcileDelayMs int    `yaml:"reconcile_delay_ms"`
	StartURL         string `yaml:"start_url"`
}

// BlockingConfig configures the interception pipeline.
type BlockingConfig struct {
	Mode             string   `yaml:"mode"` // off, balanced, strict, allowlist
	Allowlist        []string `yaml:"allowlist"`
	FilterLists      []string `yaml:"filter_lists"` // file paths, hot-reloaded
	UseBuiltinList   bool     `yaml:"use_builtin_list"`
	GenericStripping bool     `yaml:"generic_stripping"`
	AuditCapacity    int      `yaml:"audit_capacity"`
	AdURLPattern     string   `yaml:"ad_url_pattern"`
}

// IntelConfig configures the LLM-backed transcript features.
type IntelConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	MaxSessions int    `yaml:"max_sessions"`
	SessionTTL  string `yaml:"session_ttl"`
	LLMTimeout  string `yaml:"llm_timeout"`
}

// BrowserConfig configures the Chrome connection.
type BrowserConfig struct {
	DebuggerURL         string `yaml:"debugger_url"`
	Headless            bool   `yaml:"headless"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Debug bool   `yaml:"debug"` // development encoder
	File  string `yaml:"file"`  // empty logs to stderr
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Slots:            4,
			WindowWidth:      1920,
			WindowHeight:     1080,
			ReconcileDelayMs: 100,
		},
		Blocking: BlockingConfig{
			Mode:           "balanced",
			UseBuiltinList: true,
			AuditCapacity:  1000,
		},
		Intel: IntelConfig{
			Model:       "gemini-2.0-flash",
			MaxSessions: 10,
			SessionTTL:  "30m",
			LLMTimeout:  "45s",
		},
		Browser: BrowserConfig{
			Headless:            false,
			NavigationTimeoutMs: 30000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Intel.APIKey = key
	}
	if model := os.Getenv("MULTIVIEW_MODEL"); model != "" {
		c.Intel.Model = model
	}
	if mode := os.Getenv("MULTIVIEW_BLOCK_MODE"); mode != "" {
		c.Blocking.Mode = mode
	}
	if url := os.Getenv("MULTIVIEW_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if os.Getenv("MULTIVIEW_HEADLESS") == "1" {
		c.Browser.Headless = true
	}
}

// SessionTTL returns the session idle timeout as a duration.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Intel.SessionTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// LLMTimeout returns the per-round-trip LLM deadline.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.Intel.LLMTimeout)
	if err != nil || d <= 0 {
		return 45 * time.Second
	}
	return d
}

// ReconcileDelay returns the layout debounce duration.
func (c *Config) ReconcileDelay() time.Duration {
	if c.Workspace.ReconcileDelayMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.Workspace.ReconcileDelayMs) * time.Millisecond
}
