package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

func TestParseLintDiagnostic(t *testing.T) {
	m := NewLint(bus.New(nil), Options{})

	iss := m.parseDiagnostic("src/utils.ts:88:3: warning Unexpected console statement (no-console)")
	require.NotNil(t, iss)
	assert.Equal(t, "src/utils.ts", iss.Location.File)
	assert.Equal(t, 88, iss.Location.Line)
	assert.Equal(t, 3, iss.Location.Column)
	assert.Equal(t, issue.SeverityLow, iss.Severity)
	assert.Equal(t, "no-console", iss.Context["rule"])
	assert.Equal(t, "Unexpected console statement", iss.Description)
	assert.NoError(t, iss.Validate())
}

func TestLintLevelSeverityMapping(t *testing.T) {
	m := NewLint(bus.New(nil), Options{})

	err := m.parseDiagnostic("a.ts:1:1: error Missing semicolon (semi)")
	require.NotNil(t, err)
	assert.Equal(t, issue.SeverityMedium, err.Severity)

	warn := m.parseDiagnostic("a.ts:1:1: warning Missing semicolon (semi)")
	require.NotNil(t, warn)
	assert.Equal(t, issue.SeverityLow, warn.Severity)
}

func TestLintFixableAllowList(t *testing.T) {
	m := NewLint(bus.New(nil), Options{})

	fixable := m.parseDiagnostic("a.ts:1:1: error Missing semicolon (semi)")
	require.NotNil(t, fixable)
	assert.True(t, fixable.Context["fixable"].(bool))
	assert.True(t, fixable.HasTag("auto-fixable"))

	judgment := m.parseDiagnostic("a.ts:1:1: error Unexpected any (no-explicit-any)")
	require.NotNil(t, judgment)
	assert.False(t, judgment.Context["fixable"].(bool))
	assert.False(t, judgment.HasTag("auto-fixable"))
}

func TestParseLintIgnoresOtherLines(t *testing.T) {
	m := NewLint(bus.New(nil), Options{})

	for _, line := range []string{
		"",
		"12 problems (3 errors, 9 warnings)",
		"src/utils.ts:88:3: note something informational (no-console)",
		"src/utils.ts:88: warning missing column (no-console)",
	} {
		assert.Nil(t, m.parseDiagnostic(line), "line %q should not match", line)
	}
}

func TestLintDetectWithFakeTool(t *testing.T) {
	script := writeScript(t, `
echo "src/a.ts:1:1: error Missing semicolon (semi)"
echo "src/a.ts:5:10: warning Unexpected console statement (no-console)"
exit 1
`)

	b := bus.New(nil)
	m := NewLint(b, Options{
		Command: []string{script},
		Timeout: 5 * time.Second,
		Publish: true,
	})

	found := m.Detect(context.Background())
	require.Len(t, found, 2)
	assert.Len(t, b.History(bus.EventIssueDetected), 2)
	assert.Empty(t, b.History(bus.EventMonitorError))
}
