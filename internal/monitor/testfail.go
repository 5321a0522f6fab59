package monitor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

// TestMonitor runs the test runner once per Detect pass, or keeps it resident
// in watch mode for incremental failures. Failure blocks are parsed into one
// issue per failed test.
type TestMonitor struct {
	base

	watchMu sync.Mutex
}

// NewTest creates the test-failure monitor.
func NewTest(b *bus.Bus, opts Options) *TestMonitor {
	return &TestMonitor{
		base: newBase("test", issue.TypeTest, b, opts),
	}
}

func (m *TestMonitor) command() []string {
	if len(m.opts.Command) > 0 {
		return m.opts.Command
	}
	return []string{"npx", "jest", "--colors=false"}
}

func (m *TestMonitor) watchCommand() []string {
	return append(m.command(), "--watchAll")
}

// Start implements Monitor. In watch mode each completed failure block becomes
// an issue.detected emission as the runner reports it.
func (m *TestMonitor) Start(ctx context.Context) error {
	// The parser belongs to the stream, not the monitor: a redundant Start
	// must not reset a failure block the running watch is mid-way through.
	parser := newFailureParser(m.name)
	return m.startWatching(ctx, m.watchCommand(), func(line string) {
		m.watchMu.Lock()
		defer m.watchMu.Unlock()
		for _, iss := range parser.feed(line) {
			m.emitIssue(iss)
		}
	})
}

// Detect implements Monitor: a one-shot test run, parsing the complete output
// at exit (or whatever arrived before the timeout).
func (m *TestMonitor) Detect(ctx context.Context) []*issue.Issue {
	return m.guard(ctx, m.detect)
}

func (m *TestMonitor) detect(ctx context.Context) []*issue.Issue {
	result, err := runTool(ctx, m.opts.WorkingDir, m.opts.Timeout, m.command())
	if err != nil {
		m.bus.EmitMonitorError(m.name, bus.FaultToolFailure, err.Error())
		return nil
	}
	if result.TimedOut {
		m.bus.EmitMonitorError(m.name, bus.FaultTimeout,
			fmt.Sprintf("test pass exceeded %v; returning partial results", m.opts.Timeout))
	}

	parser := newFailureParser(m.name)
	var found []*issue.Issue
	for _, line := range result.Lines() {
		found = append(found, parser.feed(line)...)
	}
	// A block cut off by timeout or truncation still yields its issue.
	found = append(found, parser.flush()...)

	m.publish(found)
	return found
}

// failureParser is the state machine over the runner's failure blocks:
// a file-header line opens a file scope, a failed-test marker opens one
// record, free-form assertion-detail lines accumulate, and an
// assertion-expression marker closes the record.
type failureParser struct {
	source      string
	currentFile string
	currentTest string
	inBlock     bool
	details     []string
}

var (
	// File header: FAIL src/thing.test.ts
	testFileRe = regexp.MustCompile(`^FAIL\s+(\S+)`)
	// Failed-test marker: "  ✕ handles empty input (12 ms)"
	testFailRe = regexp.MustCompile(`^\s*[✕✗×]\s+(.+?)(?:\s+\(\d+\s*m?s\))?\s*$`)
	// Assertion expression closes the record.
	assertionRe = regexp.MustCompile(`expect\s*\(`)
)

func newFailureParser(source string) *failureParser {
	return &failureParser{source: source}
}

// feed consumes one output line and returns any issues completed by it.
func (p *failureParser) feed(line string) []*issue.Issue {
	if match := testFileRe.FindStringSubmatch(line); match != nil {
		// New file scope; a dangling block belongs to the previous file.
		closed := p.flush()
		p.currentFile = match[1]
		return closed
	}

	if match := testFailRe.FindStringSubmatch(line); match != nil {
		closed := p.flush()
		p.currentTest = strings.TrimSpace(match[1])
		p.inBlock = true
		p.details = nil
		return closed
	}

	if !p.inBlock {
		return nil
	}

	p.details = append(p.details, strings.TrimSpace(line))
	if assertionRe.MatchString(line) {
		return p.flush()
	}
	return nil
}

// flush closes any open record and returns its issue.
func (p *failureParser) flush() []*issue.Issue {
	if !p.inBlock || p.currentTest == "" {
		p.inBlock = false
		return nil
	}

	message := strings.TrimSpace(strings.Join(p.details, "\n"))
	iss := &issue.Issue{
		ID:          issue.NewID(p.source),
		Type:        issue.TypeTest,
		Severity:    issue.SeverityHigh,
		Title:       fmt.Sprintf("failing test: %s", p.currentTest),
		Description: message,
		Location:    issue.Location{File: p.currentFile},
		Context: map[string]interface{}{
			"test_name": p.currentTest,
			"message":   message,
		},
		Detected:   time.Now(),
		Confidence: 0.9,
		Tags:       []string{"test-failure"},
	}

	p.inBlock = false
	p.currentTest = ""
	p.details = nil
	return []*issue.Issue{iss}
}
