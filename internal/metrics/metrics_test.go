package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

func detectedIssue(typ issue.Type, sev issue.Severity) *issue.Issue {
	return &issue.Issue{
		ID:       issue.NewID(string(typ)),
		Type:     typ,
		Severity: sev,
		Title:    "sample",
	}
}

func TestCollectorCountsIssuesByTypeAndSeverity(t *testing.T) {
	b := bus.New(nil)
	c := NewCollector(b)
	defer c.Close()

	b.EmitIssueDetected("compilation", detectedIssue(issue.TypeCompilation, issue.SeverityHigh))
	b.EmitIssueDetected("compilation", detectedIssue(issue.TypeCompilation, issue.SeverityMedium))
	b.EmitIssueDetected("lint", detectedIssue(issue.TypeLint, issue.SeverityLow))

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.IssuesByType["compilation"])
	assert.Equal(t, 1, snap.IssuesByType["lint"])
	assert.Equal(t, 1, snap.IssuesBySeverity["high"])
	assert.Equal(t, 1, snap.IssuesBySeverity["medium"])
	assert.Equal(t, 1, snap.IssuesBySeverity["low"])
	assert.Equal(t, 3, snap.EventsObserved)
}

func TestCollectorCountsMonitorAndSystemErrors(t *testing.T) {
	b := bus.New(nil)
	c := NewCollector(b)
	defer c.Close()

	b.EmitMonitorError("dependency", bus.FaultParseMismatch, "bad json")
	b.EmitMonitorError("test", bus.FaultTimeout, "suite exceeded 60s")
	b.EmitSystemError("bus", "subscriber panic")

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.MonitorErrors)
	assert.Equal(t, 1, snap.SubscriberFaults)
}

func TestCollectorSnapshotIsACopy(t *testing.T) {
	b := bus.New(nil)
	c := NewCollector(b)
	defer c.Close()

	b.EmitIssueDetected("lint", detectedIssue(issue.TypeLint, issue.SeverityLow))

	snap := c.Snapshot()
	snap.IssuesByType["lint"] = 99

	assert.Equal(t, 1, c.Snapshot().IssuesByType["lint"])
}

func TestCollectorIgnoresMalformedPayloads(t *testing.T) {
	b := bus.New(nil)
	c := NewCollector(b)
	defer c.Close()

	b.Emit(bus.EventIssueDetected, "not a payload struct")
	b.Emit(bus.EventMonitorError, 42)

	snap := c.Snapshot()
	assert.Empty(t, snap.IssuesByType)
	assert.Equal(t, 0, snap.MonitorErrors)
}

func TestRunEmitsPeriodicSnapshots(t *testing.T) {
	b := bus.New(nil)
	c := NewCollector(b)
	defer c.Close()

	collected := make(chan bus.MetricsPayload, 1)
	b.Subscribe("test", bus.EventMetricsCollected, func(e bus.Event) {
		select {
		case collected <- e.Payload.(bus.MetricsPayload):
		default:
		}
	})

	b.EmitIssueDetected("test", detectedIssue(issue.TypeTest, issue.SeverityHigh))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, 10*time.Millisecond)

	select {
	case snap := <-collected:
		assert.Equal(t, 1, snap.IssuesByType["test"])
	case <-time.After(2 * time.Second):
		t.Fatal("no metrics.collected event")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	b := bus.New(nil)
	c := NewCollector(b)
	defer c.Close()

	b.EmitIssueDetected("lint", detectedIssue(issue.TypeLint, issue.SeverityMedium))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sentinel_issues_detected_total")
}

func TestCloseDetachesFromBus(t *testing.T) {
	b := bus.New(nil)
	c := NewCollector(b)
	c.Close()

	b.EmitIssueDetected("lint", detectedIssue(issue.TypeLint, issue.SeverityLow))
	assert.Empty(t, c.Snapshot().IssuesByType)
}
