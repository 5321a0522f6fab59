package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fixharbor/sentinel/internal/bus"
	"github.com/fixharbor/sentinel/internal/metrics"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run monitors continuously and stream issues as they appear",
	Long: `Start every enabled monitor and keep them resident. Watch-capable
monitors (compilation, test) hold their tool open and stream issues the
moment the tool reports them; the rest are swept on a fixed interval.
Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			cfg.MetricsAddr = addr
		}
		interval, _ := cmd.Flags().GetDuration("interval")

		b, reg, err := buildRegistry(cfg, true)
		if err != nil {
			return err
		}

		b.Subscribe("cli", bus.EventIssueDetected, displayIssue)
		b.Subscribe("cli", bus.EventMonitorError, displayFault)
		b.Subscribe("cli", bus.EventMonitorStarted, displayLifecycle)
		b.Subscribe("cli", bus.EventMonitorStopped, displayLifecycle)

		collector := metrics.NewCollector(b)
		defer collector.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("metrics endpoint: %v", err)
				}
			}()
			defer srv.Close()
			log.Printf("serving metrics on %s/metrics", cfg.MetricsAddr)
		}
		go collector.Run(ctx, cfg.MetricsInterval)

		if err := reg.StartAll(ctx); err != nil {
			return err
		}
		defer func() {
			if err := reg.StopAll(); err != nil {
				log.Printf("stopping monitors: %v", err)
			}
		}()

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Watching (Ctrl+C to stop)...\n\n", cyan("👁"))

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-sigChan:
				fmt.Println("\nStopped watching")
				return nil
			case <-ticker.C:
				// Periodic sweep across all monitors. Resident streams
				// publish continuously; the sweep covers the checks that
				// have no resident tool.
				reg.DetectAll(ctx)
			}
		}
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 60*time.Second, "Sweep interval for monitors without a resident tool")
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")
	rootCmd.AddCommand(watchCmd)
}

// displayIssue prints one streamed issue with severity coloring.
func displayIssue(e bus.Event) {
	p, ok := e.Payload.(bus.IssueDetectedPayload)
	if !ok || p.Issue == nil {
		return
	}
	iss := p.Issue
	sevColor := severityColor(iss.Severity)
	loc := ""
	if iss.Location.File != "" {
		loc = " " + color.New(color.FgHiBlack).Sprintf("%s:%d", iss.Location.File, iss.Location.Line)
	}
	fmt.Printf("[%s] %s %s%s %s\n",
		e.Timestamp.Format("15:04:05"),
		sevColor("●"),
		color.New(color.FgMagenta).Sprint(p.Source),
		loc,
		iss.Title,
	)
}

// displayFault prints an advisory monitor fault.
func displayFault(e bus.Event) {
	p, ok := e.Payload.(bus.MonitorErrorPayload)
	if !ok {
		return
	}
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("[%s] %s %s (%s): %s\n",
		e.Timestamp.Format("15:04:05"),
		yellow("⚠"),
		p.Monitor,
		p.Kind,
		p.Message,
	)
}

// displayLifecycle prints monitor start/stop transitions.
func displayLifecycle(e bus.Event) {
	p, ok := e.Payload.(bus.MonitorLifecyclePayload)
	if !ok {
		return
	}
	gray := color.New(color.FgHiBlack).SprintFunc()
	mode := ""
	if p.WatchMode && e.Name == bus.EventMonitorStarted {
		mode = " (watch)"
	}
	fmt.Printf("%s\n", gray(fmt.Sprintf("%s: %s%s", p.Monitor, e.Name, mode)))
}
