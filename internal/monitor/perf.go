package monitor

import (
	"context"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

// PerformanceMonitor is deliberately minimal: it conforms to the same
// lifecycle contract as the other four monitors and serves as the extension
// point for future benchmark-telemetry integration. Detect currently reports
// nothing.
type PerformanceMonitor struct {
	base
}

// NewPerformance creates the performance monitor.
func NewPerformance(b *bus.Bus, opts Options) *PerformanceMonitor {
	return &PerformanceMonitor{
		base: newBase("performance", issue.TypePerformance, b, opts),
	}
}

// Detect implements Monitor.
func (m *PerformanceMonitor) Detect(ctx context.Context) []*issue.Issue {
	return m.guard(ctx, func(context.Context) []*issue.Issue {
		return nil
	})
}
