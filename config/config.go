// Package config loads runctl settings from a YAML file with environment
// overrides. A missing file yields the defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/index"
	"github.com/dmora/runctl/prompt"
)

// Environment variables that override file values.
const (
	EnvCodexBin     = "RUNCTL_CODEX_BIN"
	EnvClaudeBin    = "RUNCTL_CLAUDE_BIN"
	EnvOpenCodeBin  = "RUNCTL_OPENCODE_BIN"
	EnvIndexBackend = "RUNCTL_INDEX_BACKEND"
	EnvLogLevel     = "RUNCTL_LOG_LEVEL"
	EnvSkillsDirs   = "RUNCTL_SKILLS_DIRS"
	EnvPolicy       = "RUNCTL_POLICY"
)

// Config is the runctl configuration.
type Config struct {
	Binaries BinariesConfig `yaml:"binaries"`

	// SkillsDirs is the fragment search path. Relative entries resolve
	// against the workspace root.
	SkillsDirs []string `yaml:"skills_dirs"`

	Index IndexConfig `yaml:"index"`

	// Detail is the default report detail level for launches.
	Detail string `yaml:"detail"`

	// GracePeriod is the time between SIGTERM and SIGKILL on cancellation.
	GracePeriod string `yaml:"grace_period"`

	// ScannerBuffer is the longest stdout line in bytes that is parsed.
	ScannerBuffer int `yaml:"scanner_buffer"`

	Log LogConfig `yaml:"log"`

	// Policy is the path of a Rego file selecting default skills.
	Policy string `yaml:"policy"`

	// DefaultSkills are applied to launches without explicit skills when
	// no Policy is set.
	DefaultSkills []string `yaml:"default_skills"`

	Serve ServeConfig `yaml:"serve"`
	Batch BatchConfig `yaml:"batch"`
}

// BinariesConfig names the executor binaries. Bare names resolve via PATH.
type BinariesConfig struct {
	Codex    string `yaml:"codex"`
	Claude   string `yaml:"claude"`
	OpenCode string `yaml:"opencode"`
}

// IndexConfig selects the run index store.
type IndexConfig struct {
	Backend string `yaml:"backend"` // jsonl, sqlite
}

// LogConfig configures the diagnostic logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// ServeConfig configures the read-only HTTP API.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// BatchConfig configures batch launches.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Binaries: BinariesConfig{
			Codex:    "codex",
			Claude:   "claude",
			OpenCode: "opencode",
		},
		SkillsDirs:    []string{filepath.Join(".runctl", "skills")},
		Index:         IndexConfig{Backend: index.BackendJSONL},
		Detail:        string(prompt.DetailStandard),
		GracePeriod:   "5s",
		ScannerBuffer: 1 << 20,
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		Serve: ServeConfig{Addr: "127.0.0.1:7420"},
		Batch: BatchConfig{Concurrency: 4},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides applies RUNCTL_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvCodexBin); v != "" {
		c.Binaries.Codex = v
	}
	if v := os.Getenv(EnvClaudeBin); v != "" {
		c.Binaries.Claude = v
	}
	if v := os.Getenv(EnvOpenCodeBin); v != "" {
		c.Binaries.OpenCode = v
	}
	if v := os.Getenv(EnvIndexBackend); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvSkillsDirs); v != "" {
		c.SkillsDirs = filepath.SplitList(v)
	}
	if v := os.Getenv(EnvPolicy); v != "" {
		c.Policy = v
	}
}

// Validate reports the first invalid setting, wrapped in runctl.ErrUsage.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case "", index.BackendJSONL, index.BackendSQLite:
	default:
		return fmt.Errorf("%w: index.backend %q: want %s or %s",
			runctl.ErrUsage, c.Index.Backend, index.BackendJSONL, index.BackendSQLite)
	}
	if _, err := prompt.ParseDetail(c.Detail); err != nil {
		return err
	}
	if _, err := c.GetGracePeriod(); err != nil {
		return err
	}
	if c.ScannerBuffer < 0 {
		return fmt.Errorf("%w: scanner_buffer must not be negative", runctl.ErrUsage)
	}
	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("%w: batch.concurrency must not be negative", runctl.ErrUsage)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q: want console or json", runctl.ErrUsage, c.Log.Format)
	}
	return nil
}

// GetGracePeriod parses GracePeriod. Empty means zero, which leaves the
// engine default in place. A bare integer is read as seconds.
func (c *Config) GetGracePeriod() (time.Duration, error) {
	if c.GracePeriod == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(c.GracePeriod); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(c.GracePeriod)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: grace_period %q", runctl.ErrUsage, c.GracePeriod)
	}
	return d, nil
}

// SkillsPaths returns SkillsDirs with relative entries joined to root.
func (c *Config) SkillsPaths(root string) []string {
	out := make([]string, 0, len(c.SkillsDirs))
	for _, d := range c.SkillsDirs {
		if d == "" {
			continue
		}
		if !filepath.IsAbs(d) {
			d = filepath.Join(root, d)
		}
		out = append(out, d)
	}
	return out
}

// PolicyPath returns Policy resolved against root, or "" when unset.
func (c *Config) PolicyPath(root string) string {
	if c.Policy == "" || filepath.IsAbs(c.Policy) {
		return c.Policy
	}
	return filepath.Join(root, c.Policy)
}
