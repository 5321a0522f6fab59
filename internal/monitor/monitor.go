// Package monitor implements the issue detectors: five monitors sharing one
// lifecycle contract, each owning the parser for its external tool's output.
// Monitors are fault-isolating by construction: a tool failure, unparseable
// output, or timeout reduces to "fewer issues this pass" plus an advisory bus
// event, never an error to the caller.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

// Monitor is the common contract across all five detector variants.
type Monitor interface {
	// Name returns the unique identifier for this monitor.
	Name() string

	// Type returns the issue category this monitor produces.
	Type() issue.Type

	// Start begins the monitor's lifecycle. Idempotent. Watch-capable
	// monitors spawn their resident tool and stream parsed issues onto the
	// bus; others only mark themselves running. Emits monitor.started.
	Start(ctx context.Context) error

	// Stop terminates any owned subprocess and emits monitor.stopped.
	// Idempotent, and safe even if Start was never called or the
	// subprocess already exited.
	Stop() error

	// Detect runs one on-demand detection pass and returns the issues
	// found, possibly none. It never fails: internal faults are absorbed
	// and surfaced only as advisory monitor.error events.
	Detect(ctx context.Context) []*issue.Issue
}

// Options configures a monitor. Set once at construction; immutable after.
type Options struct {
	// Patterns are opaque remediation-pattern descriptors, carried for the
	// fix engine; monitors never interpret them.
	Patterns []string

	// Timeout is the ceiling for one detection pass. If the tool exceeds
	// it, the process is killed and issues parsed from output received up
	// to that point are returned. Default: 60s.
	Timeout time.Duration

	// WatchMode keeps the tool resident on Start, streaming issues to the
	// bus as they appear. Only compilation and test monitors honor it.
	WatchMode bool

	// Command overrides the monitor's default tool invocation.
	Command []string

	// BuildCommand is an optional second pass for the compilation monitor.
	BuildCommand []string

	// WorkingDir is where tool commands execute. Default: ".".
	WorkingDir string

	// Publish also emits issue.detected for each issue found by an
	// on-demand Detect pass. Watch mode always publishes.
	Publish bool
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.WorkingDir == "" {
		o.WorkingDir = "."
	}
	return o
}

// base carries the lifecycle state shared by all monitor variants.
type base struct {
	name string
	typ  issue.Type
	opts Options
	bus  *bus.Bus

	mu      sync.Mutex
	started bool
	watch   *watchProc
}

func newBase(name string, typ issue.Type, b *bus.Bus, opts Options) base {
	return base{
		name: name,
		typ:  typ,
		opts: opts.withDefaults(),
		bus:  b,
	}
}

// Name implements Monitor.
func (b *base) Name() string { return b.name }

// Type implements Monitor.
func (b *base) Type() issue.Type { return b.typ }

// Start implements Monitor for variants without a resident tool.
func (b *base) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	b.started = true
	b.bus.Emit(bus.EventMonitorStarted, bus.MonitorLifecyclePayload{Monitor: b.name})
	return nil
}

// startWatching is the Start path for watch-capable variants. cmdline is the
// resident invocation; onLine receives every output line for incremental
// parsing. Spawn failures are absorbed by the watch loop's retry, so this
// never fails.
func (b *base) startWatching(ctx context.Context, cmdline []string, onLine func(string)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if b.opts.WatchMode {
		b.watch = startWatch(ctx, b.opts.WorkingDir, cmdline, onLine)
	}
	b.started = true
	b.bus.Emit(bus.EventMonitorStarted, bus.MonitorLifecyclePayload{
		Monitor:   b.name,
		WatchMode: b.opts.WatchMode,
	})
	return nil
}

// Stop implements Monitor.
func (b *base) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	if b.watch != nil {
		b.watch.stop()
		b.watch = nil
	}
	b.started = false
	b.bus.Emit(bus.EventMonitorStopped, bus.MonitorLifecyclePayload{Monitor: b.name})
	return nil
}

// guard runs one detection pass under the no-throw contract: a panic anywhere
// inside reduces to no issues plus an advisory event.
func (b *base) guard(ctx context.Context, pass func(context.Context) []*issue.Issue) (found []*issue.Issue) {
	defer func() {
		if r := recover(); r != nil {
			b.bus.EmitMonitorError(b.name, bus.FaultToolFailure, fmt.Sprintf("detection pass panicked: %v", r))
			found = nil
		}
	}()
	return pass(ctx)
}

// publish reports a batch of issues from an on-demand pass, honoring the
// Publish option.
func (b *base) publish(found []*issue.Issue) {
	if !b.opts.Publish {
		return
	}
	for _, iss := range found {
		b.bus.EmitIssueDetected(b.name, iss)
	}
}

// emitIssue reports one issue from a watch-mode stream. Watch mode always
// publishes; returning issues to a caller makes no sense there.
func (b *base) emitIssue(iss *issue.Issue) {
	b.bus.EmitIssueDetected(b.name, iss)
}
