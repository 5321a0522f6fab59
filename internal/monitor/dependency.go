package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

// DependencyMonitor runs three independent checks: a vulnerability scan, an
// outdated-package scan, and a peer-dependency consistency pass. Each check
// fails in isolation without suppressing the others.
type DependencyMonitor struct {
	base
}

// NewDependency creates the dependency monitor.
func NewDependency(b *bus.Bus, opts Options) *DependencyMonitor {
	return &DependencyMonitor{
		base: newBase("dependency", issue.TypeDependency, b, opts),
	}
}

// Detect implements Monitor.
func (m *DependencyMonitor) Detect(ctx context.Context) []*issue.Issue {
	return m.guard(ctx, m.detect)
}

func (m *DependencyMonitor) detect(ctx context.Context) []*issue.Issue {
	var found []*issue.Issue
	found = append(found, m.checkVulnerabilities(ctx)...)
	found = append(found, m.checkOutdated(ctx)...)
	found = append(found, m.checkPeerDependencies()...)
	m.publish(found)
	return found
}

// --- vulnerability scan ---

// auditReport is the scanner's JSON shape: package name -> advisory.
type auditReport struct {
	Vulnerabilities map[string]auditAdvisory `json:"vulnerabilities"`
}

type auditAdvisory struct {
	Severity     string            `json:"severity"`
	Range        string            `json:"range"`
	FixAvailable json.RawMessage   `json:"fixAvailable"`
	Via          []json.RawMessage `json:"via"`
}

// scannerSeverity maps the scanner's 5-level vocabulary onto the canonical
// 4-tier scale.
var scannerSeverity = map[string]issue.Severity{
	"info":     issue.SeverityLow,
	"low":      issue.SeverityLow,
	"moderate": issue.SeverityMedium,
	"high":     issue.SeverityHigh,
	"critical": issue.SeverityCritical,
}

func (m *DependencyMonitor) auditCommand() []string {
	if len(m.opts.Command) > 0 {
		return m.opts.Command
	}
	return []string{"npm", "audit", "--json"}
}

func (m *DependencyMonitor) checkVulnerabilities(ctx context.Context) []*issue.Issue {
	result, err := runTool(ctx, m.opts.WorkingDir, m.opts.Timeout, m.auditCommand())
	if err != nil {
		m.bus.EmitMonitorError(m.name, bus.FaultToolFailure, fmt.Sprintf("vulnerability scan: %v", err))
		return nil
	}
	if result.TimedOut {
		// A truncated JSON document never parses; no partial results to salvage.
		m.bus.EmitMonitorError(m.name, bus.FaultTimeout, "vulnerability scan exceeded timeout")
		return nil
	}

	return m.parseAuditOutput(strings.Join(result.Stdout, "\n"))
}

// parseAuditOutput translates the scanner's JSON report into issues.
func (m *DependencyMonitor) parseAuditOutput(raw string) []*issue.Issue {
	var report auditReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		m.bus.EmitMonitorError(m.name, bus.FaultParseMismatch, fmt.Sprintf("vulnerability report: %v", err))
		return nil
	}

	var found []*issue.Issue
	for pkg, adv := range report.Vulnerabilities {
		severity, known := scannerSeverity[strings.ToLower(adv.Severity)]
		if !known {
			severity = issue.SeverityMedium
		}

		title := advisoryTitle(adv)
		if title == "" {
			title = fmt.Sprintf("vulnerability in %s", pkg)
		}

		found = append(found, &issue.Issue{
			ID:          issue.NewID(m.name),
			Type:        issue.TypeDependency,
			Severity:    severity,
			Title:       fmt.Sprintf("%s: %s", pkg, truncate(title, 80)),
			Description: fmt.Sprintf("Vulnerable versions: %s", adv.Range),
			Location:    issue.Location{Module: pkg},
			Context: map[string]interface{}{
				"scanner_severity": adv.Severity,
				"range":            adv.Range,
				"fix_available":    fixAvailable(adv.FixAvailable),
			},
			Detected:   time.Now(),
			Confidence: 0.9,
			Tags:       []string{"security", "vulnerability"},
		})
	}
	return found
}

// advisoryTitle extracts a human title from the advisory's "via" chain, whose
// elements are either bare package names or advisory objects.
func advisoryTitle(adv auditAdvisory) string {
	for _, raw := range adv.Via {
		var detail struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Title != "" {
			return detail.Title
		}
	}
	return ""
}

// fixAvailable normalizes the scanner's fixAvailable field, which is either a
// boolean or an object describing the fixing version.
func fixAvailable(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	// An object means a fix exists.
	return strings.HasPrefix(strings.TrimSpace(string(raw)), "{")
}

// --- outdated-package scan ---

// outdatedEntry is the report shape: current/wanted/latest per package.
type outdatedEntry struct {
	Current  string `json:"current"`
	Wanted   string `json:"wanted"`
	Latest   string `json:"latest"`
	Location string `json:"location"`
}

func (m *DependencyMonitor) checkOutdated(ctx context.Context) []*issue.Issue {
	result, err := runTool(ctx, m.opts.WorkingDir, m.opts.Timeout, []string{"npm", "outdated", "--json"})
	if err != nil {
		m.bus.EmitMonitorError(m.name, bus.FaultToolFailure, fmt.Sprintf("outdated scan: %v", err))
		return nil
	}
	if result.TimedOut {
		// Same as the vulnerability scan: truncated JSON is unparseable.
		m.bus.EmitMonitorError(m.name, bus.FaultTimeout, "outdated scan exceeded timeout")
		return nil
	}

	return m.parseOutdatedOutput(strings.Join(result.Stdout, "\n"))
}

// parseOutdatedOutput translates the current/wanted/latest report into
// issues, flagging only major-version drift.
func (m *DependencyMonitor) parseOutdatedOutput(raw string) []*issue.Issue {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return nil
	}

	var report map[string]outdatedEntry
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		m.bus.EmitMonitorError(m.name, bus.FaultParseMismatch, fmt.Sprintf("outdated report: %v", err))
		return nil
	}

	var found []*issue.Issue
	for pkg, entry := range report {
		// Minor and patch drift is deliberate noise filtering: only a
		// major-version boundary produces an issue.
		if !isMajorBehind(entry.Current, entry.Latest) {
			continue
		}
		found = append(found, &issue.Issue{
			ID:       issue.NewID(m.name),
			Type:     issue.TypeDependency,
			Severity: issue.SeverityMedium,
			Title:    fmt.Sprintf("%s is a major version behind (%s -> %s)", pkg, entry.Current, entry.Latest),
			Description: fmt.Sprintf("Installed %s, wanted %s, latest %s",
				entry.Current, entry.Wanted, entry.Latest),
			Location: issue.Location{Module: pkg},
			Context: map[string]interface{}{
				"current":  entry.Current,
				"wanted":   entry.Wanted,
				"latest":   entry.Latest,
				"location": entry.Location,
			},
			Detected:   time.Now(),
			Confidence: 0.85,
			Tags:       []string{"outdated"},
		})
	}
	return found
}

// isMajorBehind reports whether latest crosses a major-version boundary past
// current. Unparseable versions are skipped rather than guessed at.
func isMajorBehind(current, latest string) bool {
	cur := "v" + strings.TrimPrefix(current, "v")
	lat := "v" + strings.TrimPrefix(latest, "v")
	if !semver.IsValid(cur) || !semver.IsValid(lat) {
		return false
	}
	return semver.Major(cur) != semver.Major(lat) && semver.Compare(cur, lat) < 0
}

// --- peer-dependency consistency ---

// packageManifest is the subset of package.json this check reads.
type packageManifest struct {
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// checkPeerDependencies verifies that each direct dependency's declared peers
// are actually installed. Best effort: any read or parse failure skips the
// package rather than failing the pass.
func (m *DependencyMonitor) checkPeerDependencies() []*issue.Issue {
	root, err := readManifest(filepath.Join(m.opts.WorkingDir, "package.json"))
	if err != nil {
		return nil
	}

	installed := make(map[string]bool)
	for dep := range root.Dependencies {
		installed[dep] = true
	}
	for dep := range root.DevDependencies {
		installed[dep] = true
	}

	var found []*issue.Issue
	for dep := range root.Dependencies {
		manifest, err := readManifest(filepath.Join(m.opts.WorkingDir, "node_modules", dep, "package.json"))
		if err != nil {
			continue
		}
		for peer, rng := range manifest.PeerDependencies {
			if installed[peer] {
				continue
			}
			found = append(found, &issue.Issue{
				ID:       issue.NewID(m.name),
				Type:     issue.TypeDependency,
				Severity: issue.SeverityLow,
				Title:    fmt.Sprintf("%s requires peer %s (%s), not installed", dep, peer, rng),
				Description: fmt.Sprintf("Package %s declares a peer dependency on %s %s which is not present in the project's dependencies.",
					dep, peer, rng),
				Location: issue.Location{Module: dep},
				Context: map[string]interface{}{
					"peer":  peer,
					"range": rng,
				},
				Detected:   time.Now(),
				Confidence: 0.7,
				Tags:       []string{"peer-dependency"},
			})
		}
	}
	return found
}

func readManifest(path string) (*packageManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}
