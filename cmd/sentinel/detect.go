package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/issue"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run one detection sweep and report the issues found",
	Long: `Run every enabled monitor once, in parallel, and print the combined
issues ordered by severity. Monitor faults (a missing tool, unparseable
output, a timeout) reduce coverage but never abort the sweep; they are
reported at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		b, reg, err := buildRegistry(cfg, false)
		if err != nil {
			return err
		}

		// Monitors run concurrently during the sweep and deliver events on
		// their own goroutines.
		var faultsMu sync.Mutex
		var faults []bus.MonitorErrorPayload
		b.Subscribe("cli", bus.EventMonitorError, func(e bus.Event) {
			if p, ok := e.Payload.(bus.MonitorErrorPayload); ok {
				faultsMu.Lock()
				faults = append(faults, p)
				faultsMu.Unlock()
			}
		})

		found := reg.DetectAll(context.Background())

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(found); err != nil {
				return err
			}
		} else {
			printReport(found, faults)
		}

		failOn, _ := cmd.Flags().GetString("fail-on")
		if shouldFail(found, failOn) {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().Bool("json", false, "Emit issues as JSON instead of a report")
	detectCmd.Flags().String("fail-on", "", "Exit non-zero if any issue at or above this severity is found (low/medium/high/critical)")
	rootCmd.AddCommand(detectCmd)
}

// printReport renders the sweep results grouped by severity, worst first.
func printReport(found []*issue.Issue, faults []bus.MonitorErrorPayload) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("=== Sentinel Detection Report ==="))

	if len(found) == 0 {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s No issues detected\n", green("✓"))
	}

	for _, iss := range found {
		sevColor := severityColor(iss.Severity)
		loc := ""
		if iss.Location.File != "" {
			loc = iss.Location.File
			if iss.Location.Line > 0 {
				loc = fmt.Sprintf("%s:%d", loc, iss.Location.Line)
			}
			loc = " " + color.New(color.FgHiBlack).Sprint(loc)
		}
		fmt.Printf("%s [%s]%s %s\n",
			sevColor(strings.ToUpper(string(iss.Severity))),
			iss.Type,
			loc,
			iss.Title,
		)
	}

	if len(found) > 0 {
		fmt.Printf("\n%d issue(s) found\n", len(found))
	}

	if len(faults) > 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s %d monitor fault(s); coverage was reduced:\n", yellow("⚠"), len(faults))
		for _, f := range faults {
			fmt.Printf("  %s (%s): %s\n", f.Monitor, f.Kind, f.Message)
		}
	}
	fmt.Println()
}

func severityColor(sev issue.Severity) func(a ...interface{}) string {
	switch sev {
	case issue.SeverityCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case issue.SeverityHigh:
		return color.New(color.FgRed).SprintFunc()
	case issue.SeverityMedium:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

// shouldFail reports whether the sweep found anything at or above the
// threshold severity. An empty threshold never fails.
func shouldFail(found []*issue.Issue, threshold string) bool {
	if threshold == "" {
		return false
	}
	min := issue.Severity(threshold)
	if !min.IsValid() {
		return false
	}
	for _, iss := range found {
		if iss.Severity.Rank() >= min.Rank() {
			return true
		}
	}
	return false
}
