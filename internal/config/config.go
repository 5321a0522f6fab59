// Package config loads sentinel's YAML configuration and maps it onto
// per-monitor options.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fixharbor/sentinel/internal/monitor"
)

// DefaultPath is where sentinel looks for configuration when no path is given.
const DefaultPath = ".sentinel.yaml"

// MonitorConfig is the per-monitor section of the config file.
type MonitorConfig struct {
	// Enabled controls whether the monitor is registered at all.
	// Monitors default to enabled; set to false to opt out.
	Enabled *bool `yaml:"enabled"`

	// Timeout is the ceiling for one detection pass ("30s", "2m").
	Timeout string `yaml:"timeout"`

	// Watch keeps the tool resident, streaming issues as they appear.
	Watch bool `yaml:"watch"`

	// Command overrides the monitor's default tool invocation.
	Command []string `yaml:"command"`

	// BuildCommand is a second compilation pass (compilation monitor only).
	BuildCommand []string `yaml:"build_command"`

	// Patterns are remediation-pattern descriptors passed through to the
	// fix engine.
	Patterns []string `yaml:"patterns"`
}

// File represents the structure of .sentinel.yaml.
type File struct {
	// WorkingDir is where tool commands execute.
	WorkingDir string `yaml:"working_dir"`

	// HistoryCap bounds the bus's per-event retained history.
	HistoryCap int `yaml:"history_cap"`

	// MetricsInterval is how often a metrics snapshot is published ("30s").
	MetricsInterval string `yaml:"metrics_interval"`

	// MetricsAddr, when set, serves Prometheus metrics over HTTP.
	MetricsAddr string `yaml:"metrics_addr"`

	// Monitors holds per-monitor settings keyed by monitor name:
	// compilation, dependency, lint, test, performance.
	Monitors map[string]MonitorConfig `yaml:"monitors"`
}

// Config is the resolved runtime configuration.
type Config struct {
	WorkingDir      string
	HistoryCap      int
	MetricsInterval time.Duration
	MetricsAddr     string
	Monitors        map[string]MonitorSettings
}

// MonitorSettings is one monitor's resolved configuration.
type MonitorSettings struct {
	Enabled bool
	Options monitor.Options
}

// MonitorNames lists the built-in monitors in their registration order.
var MonitorNames = []string{"compilation", "dependency", "lint", "test", "performance"}

// Default returns the configuration used when no file is present: all five
// monitors enabled with their built-in tool invocations.
func Default() *Config {
	cfg := &Config{
		WorkingDir:      ".",
		HistoryCap:      100,
		MetricsInterval: 30 * time.Second,
		Monitors:        make(map[string]MonitorSettings, len(MonitorNames)),
	}
	for _, name := range MonitorNames {
		cfg.Monitors[name] = MonitorSettings{Enabled: true}
	}
	return cfg
}

// Load reads configuration from path. A missing file is not an error; the
// defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return file.ToConfig()
}

// ToConfig resolves a parsed file against the defaults.
func (f *File) ToConfig() (*Config, error) {
	cfg := Default()

	if f.WorkingDir != "" {
		cfg.WorkingDir = f.WorkingDir
	}
	if f.HistoryCap > 0 {
		cfg.HistoryCap = f.HistoryCap
	}
	if f.MetricsInterval != "" {
		interval, err := time.ParseDuration(f.MetricsInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid metrics_interval: %w", err)
		}
		cfg.MetricsInterval = interval
	}
	cfg.MetricsAddr = f.MetricsAddr

	for name, mc := range f.Monitors {
		settings, known := cfg.Monitors[name]
		if !known {
			return nil, fmt.Errorf("unknown monitor %q in config", name)
		}
		if mc.Enabled != nil {
			settings.Enabled = *mc.Enabled
		}
		if mc.Timeout != "" {
			timeout, err := time.ParseDuration(mc.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid timeout for monitor %s: %w", name, err)
			}
			settings.Options.Timeout = timeout
		}
		settings.Options.WatchMode = mc.Watch
		settings.Options.Command = mc.Command
		settings.Options.BuildCommand = mc.BuildCommand
		settings.Options.Patterns = mc.Patterns
		cfg.Monitors[name] = settings
	}

	// Every monitor inherits the shared working directory.
	for name, settings := range cfg.Monitors {
		settings.Options.WorkingDir = cfg.WorkingDir
		cfg.Monitors[name] = settings
	}
	return cfg, nil
}

// Options returns the resolved options for one monitor, defaulting when the
// monitor has no config section.
func (c *Config) Options(name string) monitor.Options {
	return c.Monitors[name].Options
}

// EnabledMonitors returns the enabled monitor names in registration order.
func (c *Config) EnabledMonitors() []string {
	var names []string
	for _, name := range MonitorNames {
		if c.Monitors[name].Enabled {
			names = append(names, name)
		}
	}
	return names
}

// Example returns a commented sample configuration file.
func Example() string {
	return `# sentinel configuration

# Directory where monitor tool commands run.
working_dir: .

# Per-event-name history retained by the bus.
history_cap: 100

# How often to publish a metrics snapshot.
metrics_interval: 30s

# Serve Prometheus metrics over HTTP (watch mode only). Empty disables.
metrics_addr: ""

monitors:
  compilation:
    timeout: 60s
    # command: [npx, tsc, --noEmit, --pretty, "false"]
    # build_command: [npm, run, build]
  dependency:
    timeout: 120s
  lint:
    timeout: 60s
  test:
    timeout: 300s
  performance:
    enabled: false
`
}
