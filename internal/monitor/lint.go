package monitor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

// LintMonitor invokes the configured static-analysis tool and parses its
// per-line diagnostics. Each issue is flagged mechanically-fixable or not:
// formatting and punctuation rules can be fixed without judgment, everything
// else needs a human or an AI.
type LintMonitor struct {
	base
}

// Diagnostic line shape: file:line:col: level message (rule)
var lintDiagRe = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s+(error|warning)\s+(.+?)\s+\(([^()\s]+)\)$`)

// fixableRules is the allow-list of rules a formatter can resolve
// mechanically. Rules outside this list require judgment.
var fixableRules = map[string]bool{
	"semi":                    true,
	"quotes":                  true,
	"indent":                  true,
	"comma-dangle":            true,
	"comma-spacing":           true,
	"no-trailing-spaces":      true,
	"eol-last":                true,
	"space-before-blocks":     true,
	"keyword-spacing":         true,
	"object-curly-spacing":    true,
	"arrow-spacing":           true,
	"space-infix-ops":         true,
	"no-multiple-empty-lines": true,
	"padded-blocks":           true,
}

// NewLint creates the lint monitor.
func NewLint(b *bus.Bus, opts Options) *LintMonitor {
	return &LintMonitor{
		base: newBase("lint", issue.TypeLint, b, opts),
	}
}

func (m *LintMonitor) command() []string {
	if len(m.opts.Command) > 0 {
		return m.opts.Command
	}
	return []string{"npx", "eslint", ".", "--format", "unix"}
}

// Detect implements Monitor.
func (m *LintMonitor) Detect(ctx context.Context) []*issue.Issue {
	return m.guard(ctx, m.detect)
}

func (m *LintMonitor) detect(ctx context.Context) []*issue.Issue {
	result, err := runTool(ctx, m.opts.WorkingDir, m.opts.Timeout, m.command())
	if err != nil {
		m.bus.EmitMonitorError(m.name, bus.FaultToolFailure, err.Error())
		return nil
	}
	if result.TimedOut {
		m.bus.EmitMonitorError(m.name, bus.FaultTimeout,
			fmt.Sprintf("lint pass exceeded %v; returning partial results", m.opts.Timeout))
	}

	var found []*issue.Issue
	for _, line := range result.Lines() {
		if iss := m.parseDiagnostic(line); iss != nil {
			found = append(found, iss)
		}
	}
	m.publish(found)
	return found
}

// parseDiagnostic turns one lint line into an issue, or nil when the line
// matches no known shape.
func (m *LintMonitor) parseDiagnostic(line string) *issue.Issue {
	match := lintDiagRe.FindStringSubmatch(line)
	if match == nil {
		return nil
	}

	lineNo, _ := strconv.Atoi(match[2])
	colNo, _ := strconv.Atoi(match[3])
	level := match[4]
	message := match[5]
	rule := match[6]

	// Lint findings never block a build: errors map to medium, warnings to low.
	severity := issue.SeverityLow
	if level == "error" {
		severity = issue.SeverityMedium
	}

	fixable := fixableRules[rule]
	tags := []string{"style"}
	if fixable {
		tags = append(tags, "auto-fixable")
	}

	return &issue.Issue{
		ID:          issue.NewID(m.name),
		Type:        issue.TypeLint,
		Severity:    severity,
		Title:       fmt.Sprintf("%s: %s", rule, truncate(message, 80)),
		Description: message,
		Location: issue.Location{
			File:   match[1],
			Line:   lineNo,
			Column: colNo,
		},
		Context: map[string]interface{}{
			"rule":    rule,
			"level":   level,
			"fixable": fixable,
			"raw":     line,
		},
		Detected:   time.Now(),
		Confidence: 0.9,
		Tags:       tags,
	}
}
