// Package config loads and validates the autoview YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for runner configuration.
const (
	DefaultDelay         = 4 * time.Second
	DefaultMaxOutput     = 1 << 20 // 1 MB
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultServerAddr    = ":8000"
	DefaultStepTimeout   = 5 * time.Minute
	DefaultHistorySize   = 20
	DefaultOutputDirName = "Desktop"
)

// DefaultStepNames are the analysis scripts run when no steps are configured.
var DefaultStepNames = []string{"contents", "comments"}

// Config holds the parsed autoview configuration.
// Zero values represent defaults; use the accessor methods.
type Config struct {
	// WorkingDirectory is the virtual environment directory, either the
	// environment root or its Scripts/bin directory.
	WorkingDirectory string        `yaml:"working_directory"`
	Python           string        `yaml:"python"` // explicit interpreter, overrides the venv's
	Steps            []Step        `yaml:"steps"`
	RawDelay         string        `yaml:"delay"`      // e.g. "4s", or bare seconds
	RawTimeout       string        `yaml:"timeout"`    // per step; empty or 0 means unbounded
	RawMaxOutput     int           `yaml:"max_output"` // bytes
	Pause            *bool         `yaml:"pause"`
	FailOnStepError  bool          `yaml:"fail_on_step_error"`
	Output           OutputConfig  `yaml:"output"`
	Archive          ArchiveConfig `yaml:"archive"`
	Server           ServerConfig  `yaml:"server"`
	History          HistoryConfig `yaml:"history"`

	DataDir string `yaml:"-"` // set by caller, not from config file
}

// Step is one external script in the pipeline.
type Step struct {
	Name   string   `yaml:"name"`
	Script string   `yaml:"script"` // relative paths resolve against the config file directory
	Args   []string `yaml:"args"`
}

// OutputConfig describes where the external scripts write their results.
// autoview never creates these folders; it only reports and archives them.
type OutputConfig struct {
	Root    string   `yaml:"root"`    // default: ~/Desktop
	Folders []string `yaml:"folders"` // default: step names
}

// ArchiveConfig controls zip archiving of output folders.
type ArchiveConfig struct {
	Dir          string `yaml:"dir"`       // default: <data-dir>/archives
	AfterRun     bool   `yaml:"after_run"` // archive each successful step's folder
	RawRetention string `yaml:"retention"` // e.g. "168h"
}

// ServerConfig controls the remote-control HTTP server.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	RawStepTimeout string `yaml:"step_timeout"`
}

// HistoryConfig controls how many run reports are kept in memory.
type HistoryConfig struct {
	Size int `yaml:"size"`
}

// Delay returns the inter-step delay or the default.
func (c *Config) Delay() time.Duration {
	if d, err := parseDuration(c.RawDelay); err == nil && c.RawDelay != "" && d >= 0 {
		return d
	}
	return DefaultDelay
}

// Timeout returns the per-step timeout. Zero means no bound.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout == "" {
		return 0
	}
	d, err := parseDuration(c.RawTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// PauseEnabled reports whether the run should wait for Enter before exiting.
func (c *Config) PauseEnabled() bool {
	return c.Pause == nil || *c.Pause
}

// StepNames returns the configured step names in order.
func (c *Config) StepNames() []string {
	names := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		names[i] = s.Name
	}
	return names
}

// FindStep returns the step with the given name.
func (c *Config) FindStep(name string) (Step, bool) {
	for _, s := range c.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// OutputRoot returns the directory holding the scripts' output folders.
func (c *Config) OutputRoot() string {
	if c.Output.Root != "" {
		return c.Output.Root
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, DefaultOutputDirName)
}

// OutputFolders returns the output folder names, falling back to the step names.
func (c *Config) OutputFolders() []string {
	if len(c.Output.Folders) > 0 {
		return c.Output.Folders
	}
	return c.StepNames()
}

// ArchiveDir returns the archive directory, falling back to <data-dir>/archives.
func (c *Config) ArchiveDir() string {
	if c.Archive.Dir != "" {
		return c.Archive.Dir
	}
	return filepath.Join(c.DataDir, "archives")
}

// ArchiveRetention returns how long archives are kept by cleanup.
func (c *Config) ArchiveRetention() time.Duration {
	if d, err := parseDuration(c.Archive.RawRetention); err == nil && d > 0 {
		return d
	}
	return DefaultRetention
}

// ServerAddr returns the remote-control listen address.
func (c *Config) ServerAddr() string {
	if c.Server.Addr != "" {
		return c.Server.Addr
	}
	return DefaultServerAddr
}

// ServerStepTimeout returns the per-step bound for remotely triggered runs.
func (c *Config) ServerStepTimeout() time.Duration {
	if d, err := parseDuration(c.Server.RawStepTimeout); err == nil && d > 0 {
		return d
	}
	return DefaultStepTimeout
}

// HistorySize returns the in-memory run history size.
func (c *Config) HistorySize() int {
	if c.History.Size > 0 {
		return c.History.Size
	}
	return DefaultHistorySize
}

// RunsDir returns the directory run reports are persisted to.
func (c *Config) RunsDir() string {
	return filepath.Join(c.DataDir, "runs")
}

// DefaultConfig returns a Config with the default steps. Script paths are
// relative and resolved by Load.
func DefaultConfig() Config {
	steps := make([]Step, len(DefaultStepNames))
	for i, name := range DefaultStepNames {
		steps[i] = Step{Name: name, Script: name + ".py"}
	}
	return Config{Steps: steps}
}

// Load reads configuration from configPath and sets the data directory.
// A missing file yields the defaults. Relative script paths are resolved
// against the directory holding the config file.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			// Drop defaults so a configured step list replaces them.
			cfg.Steps = nil
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
			if len(cfg.Steps) == 0 {
				cfg.Steps = DefaultConfig().Steps
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.DataDir = dataDir
	cfg.resolvePaths(filepath.Dir(configPath))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolvePaths makes script paths absolute and expands a leading ~ in
// directory settings.
func (c *Config) resolvePaths(baseDir string) {
	if baseDir == "" {
		baseDir = "."
	}
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}

	c.WorkingDirectory = expandHome(c.WorkingDirectory)
	c.Python = expandHome(c.Python)
	c.Output.Root = expandHome(c.Output.Root)
	c.Archive.Dir = expandHome(c.Archive.Dir)

	for i, s := range c.Steps {
		script := expandHome(s.Script)
		if script != "" && !filepath.IsAbs(script) {
			script = filepath.Join(baseDir, script)
		}
		c.Steps[i].Script = script
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// parseDuration accepts Go duration strings and bare integers (seconds).
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
