package monitor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

// CompilationMonitor invokes the project's type checker in check-only mode
// (and optionally the build command) and parses its diagnostics. In watch
// mode the checker stays resident and diagnostics stream incrementally.
type CompilationMonitor struct {
	base

	watchMu sync.Mutex // serializes stdout/stderr lines into the parser
}

// Diagnostic line shape: file(line,col): error CODE: message
var compileDiagRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): error ([A-Z]+\d+): (.+)$`)

// Generic build-tool failure lines: Error: message
var buildErrorRe = regexp.MustCompile(`^[Ee]rror:\s+(.+)$`)

// diagSeverity maps known diagnostic codes to severity. Unresolved-symbol
// codes are critical (nothing downstream of them typechecks), type-mismatch
// codes are high; any other matched diagnostic defaults to medium.
var diagSeverity = map[string]issue.Severity{
	// Unresolved symbols and modules
	"TS2304": issue.SeverityCritical, // cannot find name
	"TS2307": issue.SeverityCritical, // cannot find module
	"TS2552": issue.SeverityCritical, // cannot find name (did you mean)
	"TS2503": issue.SeverityCritical, // cannot find namespace

	// Type mismatches
	"TS2322": issue.SeverityHigh, // type not assignable
	"TS2345": issue.SeverityHigh, // argument type not assignable
	"TS2339": issue.SeverityHigh, // property does not exist
	"TS2353": issue.SeverityHigh, // unknown object literal property
	"TS2740": issue.SeverityHigh, // type missing properties
}

// NewCompilation creates the compilation monitor.
func NewCompilation(b *bus.Bus, opts Options) *CompilationMonitor {
	return &CompilationMonitor{
		base: newBase("compilation", issue.TypeCompilation, b, opts),
	}
}

func (m *CompilationMonitor) checkCommand() []string {
	if len(m.opts.Command) > 0 {
		return m.opts.Command
	}
	return []string{"npx", "tsc", "--noEmit", "--pretty", "false"}
}

func (m *CompilationMonitor) watchCommand() []string {
	return append(m.checkCommand(), "--watch")
}

// Start implements Monitor. In watch mode the checker stays resident and each
// diagnostic line becomes an issue.detected emission as it arrives.
func (m *CompilationMonitor) Start(ctx context.Context) error {
	return m.startWatching(ctx, m.watchCommand(), func(line string) {
		m.watchMu.Lock()
		defer m.watchMu.Unlock()
		if iss := m.parseDiagnostic(line); iss != nil {
			m.emitIssue(iss)
		}
	})
}

// Detect implements Monitor: one check-only pass, plus the configured build
// command if any, each bounded by the pass timeout.
func (m *CompilationMonitor) Detect(ctx context.Context) []*issue.Issue {
	return m.guard(ctx, m.detect)
}

func (m *CompilationMonitor) detect(ctx context.Context) []*issue.Issue {
	found := m.runPass(ctx, m.checkCommand())
	if len(m.opts.BuildCommand) > 0 {
		found = append(found, m.runPass(ctx, m.opts.BuildCommand)...)
	}
	m.publish(found)
	return found
}

func (m *CompilationMonitor) runPass(ctx context.Context, cmdline []string) []*issue.Issue {
	result, err := runTool(ctx, m.opts.WorkingDir, m.opts.Timeout, cmdline)
	if err != nil {
		m.bus.EmitMonitorError(m.name, bus.FaultToolFailure, err.Error())
		if result == nil {
			return nil
		}
	}
	if result.TimedOut {
		m.bus.EmitMonitorError(m.name, bus.FaultTimeout,
			fmt.Sprintf("%s exceeded %v; returning partial results", cmdline[0], m.opts.Timeout))
	}

	var found []*issue.Issue
	for _, line := range result.Lines() {
		if iss := m.parseDiagnostic(line); iss != nil {
			found = append(found, iss)
		}
	}
	return found
}

// parseDiagnostic turns one output line into an issue, or nil when the line
// matches no known shape. Format drift degrades to nil, never to a fault.
func (m *CompilationMonitor) parseDiagnostic(line string) *issue.Issue {
	if match := compileDiagRe.FindStringSubmatch(line); match != nil {
		lineNo, _ := strconv.Atoi(match[2])
		colNo, _ := strconv.Atoi(match[3])
		code := match[4]
		message := match[5]

		severity, known := diagSeverity[code]
		if !known {
			severity = issue.SeverityMedium
		}

		return &issue.Issue{
			ID:          issue.NewID(m.name),
			Type:        issue.TypeCompilation,
			Severity:    severity,
			Title:       fmt.Sprintf("%s: %s", code, truncate(message, 80)),
			Description: message,
			Location: issue.Location{
				File:   match[1],
				Line:   lineNo,
				Column: colNo,
			},
			Context: map[string]interface{}{
				"code": code,
				"raw":  line,
			},
			Detected:   time.Now(),
			Confidence: 0.95,
			Tags:       []string{"type-check"},
		}
	}

	if match := buildErrorRe.FindStringSubmatch(line); match != nil {
		message := match[1]
		return &issue.Issue{
			ID:          issue.NewID(m.name),
			Type:        issue.TypeCompilation,
			Severity:    issue.SeverityHigh,
			Title:       truncate(message, 100),
			Description: message,
			Context: map[string]interface{}{
				"raw": line,
			},
			Detected:   time.Now(),
			Confidence: 0.6,
			Tags:       []string{"build"},
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
