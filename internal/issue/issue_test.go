package issue

import (
	"strings"
	"testing"
	"time"
)

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID("lint")
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewIDCarriesSource(t *testing.T) {
	id := NewID("compilation")
	if !strings.HasPrefix(id, "compilation-") {
		t.Errorf("expected source prefix, got %s", id)
	}
	if len(strings.Split(id, "-")) < 3 {
		t.Errorf("expected source-time-random shape, got %s", id)
	}
}

func TestValidate(t *testing.T) {
	valid := &Issue{
		ID:         NewID("test"),
		Type:       TypeTest,
		Severity:   SeverityHigh,
		Title:      "failing test",
		Detected:   time.Now(),
		Confidence: 0.9,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid issue, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Issue)
	}{
		{"empty ID", func(i *Issue) { i.ID = "" }},
		{"empty title", func(i *Issue) { i.Title = "" }},
		{"unknown type", func(i *Issue) { i.Type = "style" }},
		{"unknown severity", func(i *Issue) { i.Severity = "blocker" }},
		{"confidence below range", func(i *Issue) { i.Confidence = -0.1 }},
		{"confidence above range", func(i *Issue) { i.Confidence = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := *valid
			tc.mutate(&bad)
			if err := bad.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestSeverityRankOrdering(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %s to rank above %s", order[i], order[i-1])
		}
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity should rank 0")
	}
}

func TestStringIncludesLocation(t *testing.T) {
	i := &Issue{
		ID:       "x",
		Type:     TypeLint,
		Severity: SeverityLow,
		Title:    "missing semicolon",
		Location: Location{File: "src/app.ts", Line: 12},
	}
	s := i.String()
	if !strings.Contains(s, "src/app.ts:12") {
		t.Errorf("expected file:line in %q", s)
	}

	dep := &Issue{
		ID:       "y",
		Type:     TypeDependency,
		Severity: SeverityHigh,
		Title:    "vulnerable package",
		Location: Location{Module: "lodash"},
	}
	if !strings.Contains(dep.String(), "lodash") {
		t.Errorf("expected module in %q", dep.String())
	}
}

func TestHasTag(t *testing.T) {
	i := &Issue{Tags: []string{"auto-fixable", "formatting"}}
	if !i.HasTag("auto-fixable") {
		t.Error("expected tag to be present")
	}
	if i.HasTag("security") {
		t.Error("unexpected tag reported present")
	}
}
