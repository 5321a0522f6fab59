package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

func feedAll(p *failureParser, output string) []*issue.Issue {
	var found []*issue.Issue
	for _, line := range strings.Split(output, "\n") {
		found = append(found, p.feed(line)...)
	}
	return append(found, p.flush()...)
}

func TestFailureParserSingleBlock(t *testing.T) {
	output := `
FAIL src/auth.test.ts
  login
    ✕ rejects expired tokens (14 ms)
      Token accepted past expiry
      Expected rejection but got a session
      expect(session).toBeUndefined()
`
	found := feedAll(newFailureParser("test"), output)
	require.Len(t, found, 1)

	iss := found[0]
	assert.Equal(t, issue.TypeTest, iss.Type)
	assert.Equal(t, issue.SeverityHigh, iss.Severity)
	assert.Equal(t, "src/auth.test.ts", iss.Location.File)
	assert.Equal(t, "rejects expired tokens", iss.Context["test_name"])
	assert.Contains(t, iss.Description, "Expected rejection")
	assert.Contains(t, iss.Description, "expect(session)")
	assert.NoError(t, iss.Validate())
}

func TestFailureParserMultipleBlocks(t *testing.T) {
	output := `
FAIL src/auth.test.ts
  ✕ rejects expired tokens
    boom
    expect(a).toBe(b)
  ✕ refreshes sessions (3 ms)
    other detail
    expect(c).toEqual(d)
FAIL src/cart.test.ts
  ✕ totals line items
    off by one
    expect(total).toBe(42)
`
	found := feedAll(newFailureParser("test"), output)
	require.Len(t, found, 3)

	assert.Equal(t, "rejects expired tokens", found[0].Context["test_name"])
	assert.Equal(t, "src/auth.test.ts", found[0].Location.File)
	assert.Equal(t, "refreshes sessions", found[1].Context["test_name"])
	assert.Equal(t, "totals line items", found[2].Context["test_name"])
	assert.Equal(t, "src/cart.test.ts", found[2].Location.File)
}

func TestFailureParserFlushesUnterminatedBlock(t *testing.T) {
	// Output cut off before the assertion marker (timeout, truncation):
	// the open record still yields its issue.
	output := `FAIL src/auth.test.ts
  ✕ rejects expired tokens
    partial detail line`

	found := feedAll(newFailureParser("test"), output)
	require.Len(t, found, 1)
	assert.Contains(t, found[0].Description, "partial detail line")
}

func TestFailureParserIgnoresPassingOutput(t *testing.T) {
	output := `
PASS src/auth.test.ts
  ✓ accepts valid tokens (2 ms)
Tests: 12 passed, 12 total
`
	assert.Empty(t, feedAll(newFailureParser("test"), output))
}

func TestFailureParserDetailLinesOutsideBlockIgnored(t *testing.T) {
	p := newFailureParser("test")
	assert.Empty(t, p.feed("random chatter with expect(x) inside"))
	assert.Empty(t, p.flush())
}

func TestTestMonitorStartIdempotentWhileStreaming(t *testing.T) {
	script := writeScript(t, `
while true; do
  echo "FAIL src/slow.test.ts"
  echo "  ✕ keeps failing"
  echo "    detail"
  echo "    expect(x).toBe(y)"
  sleep 0.05
done
`)

	b := bus.New(nil)
	m := NewTest(b, Options{
		Command:   []string{script},
		WatchMode: true,
	})

	detected := make(chan struct{}, 1)
	b.Subscribe("test", bus.EventIssueDetected, func(bus.Event) {
		select {
		case detected <- struct{}{}:
		default:
		}
	})

	require.NoError(t, m.Start(context.Background()))
	defer func() { require.NoError(t, m.Stop()) }()

	// Redundant Starts while the watch streams must not disturb it.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Start(context.Background()))
		}()
	}
	wg.Wait()

	select {
	case <-detected:
	case <-time.After(5 * time.Second):
		t.Fatal("no issue streamed from watch mode")
	}
	assert.Len(t, b.History(bus.EventMonitorStarted), 1)
}

func TestTestMonitorDetect(t *testing.T) {
	script := writeScript(t, `
echo "FAIL src/math.test.ts"
echo "  ... multiply"
echo "  X broken marker that should not match"
echo "  ✕ multiplies negatives (5 ms)"
echo "    Expected: -6"
echo "    Received: 6"
echo "    expect(result).toBe(-6)"
exit 1
`)

	b := bus.New(nil)
	m := NewTest(b, Options{
		Command: []string{script},
		Timeout: 5 * time.Second,
		Publish: true,
	})

	found := m.Detect(context.Background())
	require.Len(t, found, 1)
	assert.Equal(t, "multiplies negatives", found[0].Context["test_name"])
	assert.Contains(t, found[0].Description, "Received: 6")
	assert.Len(t, b.History(bus.EventIssueDetected), 1)
}
