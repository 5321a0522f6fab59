// Command sentinel runs the issue-detection monitors against a project:
// one-shot sweeps with `sentinel detect`, resident watching with
// `sentinel watch`.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/config"
	"github.com/fixharbor/sentinel/internal/monitor"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Autonomous issue detection for your project",
	Long: `Sentinel watches a project for compilation errors, dependency problems,
lint violations, test failures, and performance regressions. Each monitor
drives an external tool, normalizes its output into a common issue schema,
and publishes everything over an event bus.`,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file (default .sentinel.yaml)")
	rootCmd.PersistentFlags().StringP("dir", "C", "", "Project directory to monitor (overrides config)")
}

// loadConfig resolves the effective configuration from flags and file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.WorkingDir = dir
		for name, settings := range cfg.Monitors {
			settings.Options.WorkingDir = dir
			cfg.Monitors[name] = settings
		}
	}
	return cfg, nil
}

// buildRegistry constructs the shared bus and a registry holding every
// enabled monitor.
func buildRegistry(cfg *config.Config, watch bool) (*bus.Bus, *monitor.Registry, error) {
	b := bus.New(&bus.Config{HistoryCap: cfg.HistoryCap})
	reg := monitor.NewRegistry(b)

	for _, name := range cfg.EnabledMonitors() {
		opts := cfg.Options(name)
		opts.WatchMode = opts.WatchMode || watch
		// The watch loop's periodic sweeps report through the bus, so the
		// non-resident monitors must publish their findings.
		opts.Publish = opts.Publish || watch

		var m monitor.Monitor
		switch name {
		case "compilation":
			m = monitor.NewCompilation(b, opts)
		case "dependency":
			m = monitor.NewDependency(b, opts)
		case "lint":
			m = monitor.NewLint(b, opts)
		case "test":
			m = monitor.NewTest(b, opts)
		case "performance":
			m = monitor.NewPerformance(b, opts)
		default:
			return nil, nil, fmt.Errorf("unknown monitor %q", name)
		}
		if err := reg.Register(m); err != nil {
			return nil, nil, err
		}
	}
	return b, reg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
