package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.WorkingDir)
	assert.Equal(t, 100, cfg.HistoryCap)
	assert.Equal(t, 30*time.Second, cfg.MetricsInterval)
	assert.Equal(t, MonitorNames, cfg.EnabledMonitors())
}

func TestLoadResolvesMonitorSettings(t *testing.T) {
	path := writeConfig(t, `
working_dir: /srv/app
history_cap: 50
metrics_interval: 10s
metrics_addr: ":9090"
monitors:
  compilation:
    timeout: 90s
    watch: true
    command: [npx, tsc, --noEmit]
    build_command: [npm, run, build]
  test:
    timeout: 5m
    patterns: [retry-flaky]
  performance:
    enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/app", cfg.WorkingDir)
	assert.Equal(t, 50, cfg.HistoryCap)
	assert.Equal(t, 10*time.Second, cfg.MetricsInterval)
	assert.Equal(t, ":9090", cfg.MetricsAddr)

	comp := cfg.Options("compilation")
	assert.Equal(t, 90*time.Second, comp.Timeout)
	assert.True(t, comp.WatchMode)
	assert.Equal(t, []string{"npx", "tsc", "--noEmit"}, comp.Command)
	assert.Equal(t, []string{"npm", "run", "build"}, comp.BuildCommand)
	assert.Equal(t, "/srv/app", comp.WorkingDir)

	test := cfg.Options("test")
	assert.Equal(t, 5*time.Minute, test.Timeout)
	assert.Equal(t, []string{"retry-flaky"}, test.Patterns)

	assert.Equal(t, []string{"compilation", "dependency", "lint", "test"}, cfg.EnabledMonitors())
}

func TestLoadRejectsUnknownMonitor(t *testing.T) {
	path := writeConfig(t, `
monitors:
  typecheck:
    timeout: 30s
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "typecheck")
}

func TestLoadRejectsBadDurations(t *testing.T) {
	for _, content := range []string{
		"metrics_interval: soon\n",
		"monitors:\n  lint:\n    timeout: forever\n",
	} {
		_, err := Load(writeConfig(t, content))
		assert.Error(t, err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "monitors: [not: a: map\n"))
	require.Error(t, err)
}

func TestExampleParses(t *testing.T) {
	path := writeConfig(t, Example())
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 300*time.Second, cfg.Options("test").Timeout)
	assert.NotContains(t, cfg.EnabledMonitors(), "performance")
}
