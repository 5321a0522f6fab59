package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

// Registry owns a set of monitors and orchestrates sweeps across them.
// Detect passes across monitors are fully independent, so a sweep runs them
// concurrently; one monitor's malfunction never blocks the others.
type Registry struct {
	mu       sync.RWMutex
	monitors map[string]Monitor
	order    []string
	bus      *bus.Bus
}

// NewRegistry creates an empty monitor registry.
func NewRegistry(b *bus.Bus) *Registry {
	return &Registry{
		monitors: make(map[string]Monitor),
		bus:      b,
	}
}

// Register adds a monitor. Names are unique.
func (r *Registry) Register(m Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, exists := r.monitors[name]; exists {
		return fmt.Errorf("monitor %q already registered", name)
	}
	r.monitors[name] = m
	r.order = append(r.order, name)
	return nil
}

// Get returns a monitor by name.
func (r *Registry) Get(name string) (Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.monitors[name]
	return m, ok
}

// Names returns the registered monitor names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// StartAll starts every monitor in registration order. Start is idempotent
// and non-failing for the built-in monitors, but any error is still reported.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, m := range r.snapshot() {
		if err := m.Start(ctx); err != nil {
			return fmt.Errorf("starting monitor %s: %w", m.Name(), err)
		}
	}
	return nil
}

// StopAll stops every monitor. All monitors are stopped even if one reports
// an error; the first error is returned.
func (r *Registry) StopAll() error {
	var firstErr error
	for _, m := range r.snapshot() {
		if err := m.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stopping monitor %s: %w", m.Name(), err)
		}
	}
	return firstErr
}

// DetectAll runs one detection pass on every monitor concurrently and returns
// the combined issues, ordered by severity (highest first) then by location.
func (r *Registry) DetectAll(ctx context.Context) []*issue.Issue {
	monitors := r.snapshot()

	var mu sync.Mutex
	var combined []*issue.Issue

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range monitors {
		m := m
		g.Go(func() error {
			found := m.Detect(ctx)
			mu.Lock()
			combined = append(combined, found...)
			mu.Unlock()
			return nil
		})
	}
	// Monitors never fail, so the only wait outcome is completion.
	_ = g.Wait()

	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Severity.Rank() != combined[j].Severity.Rank() {
			return combined[i].Severity.Rank() > combined[j].Severity.Rank()
		}
		return combined[i].Location.File < combined[j].Location.File
	})
	return combined
}

func (r *Registry) snapshot() []Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	monitors := make([]Monitor, 0, len(r.order))
	for _, name := range r.order {
		monitors = append(monitors, r.monitors[name])
	}
	return monitors
}
