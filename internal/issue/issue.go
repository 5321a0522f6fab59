// Package issue defines the canonical issue schema shared by all monitors.
// Every detector normalizes its tool's raw output into an Issue; downstream
// consumers (fix engines, dashboards) depend only on this shape, never on the
// tool that produced it.
package issue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies the category of a detected issue.
type Type string

const (
	TypeCompilation Type = "compilation"
	TypeDependency  Type = "dependency"
	TypeLint        Type = "lint"
	TypePerformance Type = "performance"
	TypeTest        Type = "test"
)

// IsValid reports whether t is a known issue type.
func (t Type) IsValid() bool {
	switch t {
	case TypeCompilation, TypeDependency, TypeLint, TypePerformance, TypeTest:
		return true
	}
	return false
}

// Severity is the coarse priority ranking of an issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is a known severity tier.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank returns an ordering value for sorting (critical highest).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Location identifies where in the project an issue was found.
// Line and Column are 1-based; zero means the tool did not report one.
// Module is set for dependency issues instead of File.
type Location struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Module string `json:"module,omitempty"`
}

// Issue is a normalized record describing one detected problem.
// Issues are immutable after creation and are passed to subscribers by
// pointer; nothing in this package or the monitors mutates one after its
// parser returns it.
type Issue struct {
	// ID is globally unique and stable for the process lifetime, so fix
	// operations can reference an issue without collision.
	ID string `json:"id"`
	// Type is the issue category (matches the monitor that produced it).
	Type Type `json:"type"`
	// Severity is the coarse priority tier.
	Severity Severity `json:"severity"`
	// Title is a short human-readable summary.
	Title string `json:"title"`
	// Description carries the full detail from the tool.
	Description string `json:"description"`
	// Location is where the issue was found (fields optional).
	Location Location `json:"location"`
	// Context holds tool-specific data: diagnostic code, raw line,
	// fix-availability flag, version range, and so on.
	Context map[string]interface{} `json:"context,omitempty"`
	// Detected is when the parser created this issue.
	Detected time.Time `json:"detected"`
	// Confidence is the parser's self-reported certainty, in [0,1].
	Confidence float64 `json:"confidence"`
	// Tags is a set of free-form labels.
	Tags []string `json:"tags,omitempty"`
}

// NewID generates a unique issue ID derived from the source monitor, the
// current time, and a random fragment. The source prefix keeps IDs readable
// in event streams; the time+random suffix makes collisions implausible.
func NewID(source string) string {
	frag := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return fmt.Sprintf("%s-%d-%s", source, time.Now().UnixMilli(), frag)
}

// Validate checks the domain invariants: known type and severity, confidence
// within [0,1], and a non-empty ID and title.
func (i *Issue) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("issue has empty ID")
	}
	if i.Title == "" {
		return fmt.Errorf("issue %s has empty title", i.ID)
	}
	if !i.Type.IsValid() {
		return fmt.Errorf("issue %s has unknown type %q", i.ID, i.Type)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("issue %s has unknown severity %q", i.ID, i.Severity)
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("issue %s has confidence %v outside [0,1]", i.ID, i.Confidence)
	}
	return nil
}

// String renders a one-line summary for logs.
func (i *Issue) String() string {
	loc := i.Location.File
	if loc == "" {
		loc = i.Location.Module
	}
	if i.Location.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, i.Location.Line)
	}
	if loc == "" {
		return fmt.Sprintf("[%s/%s] %s", i.Type, i.Severity, i.Title)
	}
	return fmt.Sprintf("[%s/%s] %s (%s)", i.Type, i.Severity, i.Title, loc)
}

// HasTag reports whether the issue carries the given tag.
func (i *Issue) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
