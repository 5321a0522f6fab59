package bus

import (
	"github.com/fixharbor/sentinel/internal/issue"
)

// Well-known event names. Consumers subscribe to these without depending on
// which monitor produced a given issue.
const (
	// EventIssueDetected carries an IssueDetectedPayload.
	EventIssueDetected = "issue.detected"
	// EventFixStarted carries a FixStartedPayload.
	EventFixStarted = "fix.started"
	// EventFixCompleted carries a FixCompletedPayload.
	EventFixCompleted = "fix.completed"
	// EventPredictionGenerated carries a PredictionPayload.
	EventPredictionGenerated = "prediction.generated"
	// EventSystemError carries a SystemErrorPayload.
	EventSystemError = "system.error"
	// EventMetricsCollected carries a MetricsPayload.
	EventMetricsCollected = "metrics.collected"

	// EventMonitorStarted and EventMonitorStopped carry a MonitorLifecyclePayload.
	EventMonitorStarted = "monitor.started"
	EventMonitorStopped = "monitor.stopped"
	// EventMonitorError carries a MonitorErrorPayload. Advisory only: a
	// monitor fault reduces detection coverage, it never aborts anything.
	EventMonitorError = "monitor.error"
)

// IssueDetectedPayload is the fixed shape for issue.detected events.
type IssueDetectedPayload struct {
	Issue  *issue.Issue `json:"issue"`
	Source string       `json:"source"`
}

// FixStartedPayload is the fixed shape for fix.started events.
type FixStartedPayload struct {
	IssueID  string `json:"issue_id"`
	Strategy string `json:"strategy,omitempty"`
}

// FixCompletedPayload is the fixed shape for fix.completed events.
type FixCompletedPayload struct {
	IssueID    string `json:"issue_id"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"duration_ms"`
	Summary    string `json:"summary,omitempty"`
}

// PredictionPayload is the fixed shape for prediction.generated events.
type PredictionPayload struct {
	Kind       string                 `json:"kind"`
	Confidence float64                `json:"confidence"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// SystemErrorPayload is the fixed shape for system.error events.
type SystemErrorPayload struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// MetricsPayload is the fixed shape for metrics.collected events.
type MetricsPayload struct {
	IssuesByType     map[string]int `json:"issues_by_type"`
	IssuesBySeverity map[string]int `json:"issues_by_severity"`
	EventsObserved   int            `json:"events_observed"`
	MonitorErrors    int            `json:"monitor_errors"`
	SubscriberFaults int            `json:"subscriber_faults"`
}

// MonitorLifecyclePayload is the fixed shape for monitor.started/stopped events.
type MonitorLifecyclePayload struct {
	Monitor   string `json:"monitor"`
	WatchMode bool   `json:"watch_mode"`
}

// MonitorErrorPayload is the fixed shape for monitor.error events.
type MonitorErrorPayload struct {
	Monitor string `json:"monitor"`
	// Kind classifies the fault: "tool_failure", "parse_mismatch", "timeout".
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Fault kinds carried by MonitorErrorPayload.
const (
	FaultToolFailure   = "tool_failure"
	FaultParseMismatch = "parse_mismatch"
	FaultTimeout       = "timeout"
)

// EmitIssueDetected publishes a detected issue.
func (b *Bus) EmitIssueDetected(source string, iss *issue.Issue) {
	b.Emit(EventIssueDetected, IssueDetectedPayload{Issue: iss, Source: source})
}

// EmitFixStarted publishes the start of a fix attempt for an issue.
func (b *Bus) EmitFixStarted(issueID, strategy string) {
	b.Emit(EventFixStarted, FixStartedPayload{IssueID: issueID, Strategy: strategy})
}

// EmitFixCompleted publishes the outcome of a fix attempt.
func (b *Bus) EmitFixCompleted(issueID string, success bool, durationMs int64, summary string) {
	b.Emit(EventFixCompleted, FixCompletedPayload{
		IssueID:    issueID,
		Success:    success,
		DurationMs: durationMs,
		Summary:    summary,
	})
}

// EmitPredictionGenerated publishes a generated prediction.
func (b *Bus) EmitPredictionGenerated(kind string, confidence float64, data map[string]interface{}) {
	b.Emit(EventPredictionGenerated, PredictionPayload{
		Kind:       kind,
		Confidence: confidence,
		Data:       data,
	})
}

// EmitSystemError publishes a non-fatal system error for observability.
func (b *Bus) EmitSystemError(source, message string) {
	b.Emit(EventSystemError, SystemErrorPayload{Source: source, Message: message})
}

// EmitMetricsCollected publishes a metrics snapshot.
func (b *Bus) EmitMetricsCollected(m MetricsPayload) {
	b.Emit(EventMetricsCollected, m)
}

// EmitMonitorError publishes an advisory monitor fault.
func (b *Bus) EmitMonitorError(monitor, kind, message string) {
	b.Emit(EventMonitorError, MonitorErrorPayload{Monitor: monitor, Kind: kind, Message: message})
}
