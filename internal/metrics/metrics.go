// Package metrics aggregates bus traffic into Prometheus counters and a
// periodically published snapshot. It is a pure consumer: it subscribes to
// the shared bus and never influences detection.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fixharbor/sentinel/internal/bus"
)

const subscriberID = "metrics"

// Collector tallies issue and fault traffic from the event bus.
type Collector struct {
	bus      *bus.Bus
	registry *prometheus.Registry

	issuesDetected *prometheus.CounterVec
	monitorErrors  *prometheus.CounterVec
	fixesCompleted *prometheus.CounterVec
	systemErrors   prometheus.Counter

	mu               sync.Mutex
	issuesByType     map[string]int
	issuesBySeverity map[string]int
	eventsObserved   int
	monitorErrCount  int
	subscriberFaults int
}

// NewCollector builds a collector wired to the given bus. It owns its own
// Prometheus registry so tests can run many collectors side by side.
func NewCollector(b *bus.Bus) *Collector {
	c := &Collector{
		bus:      b,
		registry: prometheus.NewRegistry(),
		issuesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_issues_detected_total",
			Help: "Issues detected, by issue type and severity.",
		}, []string{"type", "severity"}),
		monitorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_monitor_errors_total",
			Help: "Advisory monitor faults, by monitor and fault kind.",
		}, []string{"monitor", "kind"}),
		fixesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_fixes_completed_total",
			Help: "Completed fix attempts, by outcome.",
		}, []string{"outcome"}),
		systemErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_system_errors_total",
			Help: "Non-fatal system errors observed on the bus.",
		}),
		issuesByType:     make(map[string]int),
		issuesBySeverity: make(map[string]int),
	}
	c.registry.MustRegister(c.issuesDetected, c.monitorErrors, c.fixesCompleted, c.systemErrors)

	b.Subscribe(subscriberID, bus.EventIssueDetected, c.onIssueDetected)
	b.Subscribe(subscriberID, bus.EventMonitorError, c.onMonitorError)
	b.Subscribe(subscriberID, bus.EventFixCompleted, c.onFixCompleted)
	b.Subscribe(subscriberID, bus.EventSystemError, c.onSystemError)
	return c
}

func (c *Collector) onIssueDetected(e bus.Event) {
	payload, ok := e.Payload.(bus.IssueDetectedPayload)
	if !ok || payload.Issue == nil {
		return
	}
	typ := string(payload.Issue.Type)
	sev := string(payload.Issue.Severity)
	c.issuesDetected.WithLabelValues(typ, sev).Inc()

	c.mu.Lock()
	c.issuesByType[typ]++
	c.issuesBySeverity[sev]++
	c.eventsObserved++
	c.mu.Unlock()
}

func (c *Collector) onMonitorError(e bus.Event) {
	payload, ok := e.Payload.(bus.MonitorErrorPayload)
	if !ok {
		return
	}
	c.monitorErrors.WithLabelValues(payload.Monitor, payload.Kind).Inc()

	c.mu.Lock()
	c.monitorErrCount++
	c.eventsObserved++
	c.mu.Unlock()
}

func (c *Collector) onFixCompleted(e bus.Event) {
	payload, ok := e.Payload.(bus.FixCompletedPayload)
	if !ok {
		return
	}
	outcome := "failure"
	if payload.Success {
		outcome = "success"
	}
	c.fixesCompleted.WithLabelValues(outcome).Inc()

	c.mu.Lock()
	c.eventsObserved++
	c.mu.Unlock()
}

func (c *Collector) onSystemError(e bus.Event) {
	c.systemErrors.Inc()

	c.mu.Lock()
	c.subscriberFaults++
	c.eventsObserved++
	c.mu.Unlock()
}

// Snapshot returns the current aggregate counts.
func (c *Collector) Snapshot() bus.MetricsPayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	byType := make(map[string]int, len(c.issuesByType))
	for k, v := range c.issuesByType {
		byType[k] = v
	}
	bySev := make(map[string]int, len(c.issuesBySeverity))
	for k, v := range c.issuesBySeverity {
		bySev[k] = v
	}
	return bus.MetricsPayload{
		IssuesByType:     byType,
		IssuesBySeverity: bySev,
		EventsObserved:   c.eventsObserved,
		MonitorErrors:    c.monitorErrCount,
		SubscriberFaults: c.subscriberFaults,
	}
}

// Run publishes a metrics.collected snapshot every interval until the context
// is canceled.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.bus.EmitMetricsCollected(c.Snapshot())
		}
	}
}

// Handler serves this collector's registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Close detaches the collector from the bus.
func (c *Collector) Close() {
	c.bus.UnsubscribeAll(subscriberID)
}
