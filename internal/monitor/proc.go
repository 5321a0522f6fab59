package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

// maxCapturedLines caps output capture per stream to prevent memory
// exhaustion from chatty tools.
const maxCapturedLines = 10000

// toolResult holds everything captured from one tool invocation, including
// partial output when the run was cut short by its timeout.
type toolResult struct {
	Stdout   []string
	Stderr   []string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Lines returns stdout followed by stderr; most parsers don't care which
// stream a diagnostic arrived on.
func (r *toolResult) Lines() []string {
	lines := make([]string, 0, len(r.Stdout)+len(r.Stderr))
	lines = append(lines, r.Stdout...)
	lines = append(lines, r.Stderr...)
	return lines
}

// lineWriter splits a byte stream into lines and hands each to onLine.
// Attached as cmd.Stdout/cmd.Stderr so os/exec owns the pipes and the copy
// goroutines; that is what lets WaitDelay force the pipes closed when a
// killed tool's children keep them open.
type lineWriter struct {
	mu     sync.Mutex
	onLine func(string)
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		w.onLine(line)
	}
	return len(p), nil
}

// flush delivers a trailing unterminated line, if any.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.onLine(string(w.buf))
		w.buf = nil
	}
}

// killTree runs the tool in its own process group and kills the whole group
// on cancellation. Tool wrappers (npx, npm) exec a node child; killing only
// the direct child would leave that grandchild running past the deadline.
func killTree(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// runTool spawns a one-shot tool invocation and waits for it to exit or for
// the timeout to elapse, whichever settles first. On timeout the process
// group is killed and the output received up to that point is returned with
// TimedOut set; nothing is left running. A non-zero exit is not an error:
// checkers conventionally exit non-zero when they find issues, and the output
// is the detection source either way. The returned error is non-nil only when
// the process could not be spawned or waited on.
func runTool(ctx context.Context, dir string, timeout time.Duration, cmdline []string) (*toolResult, error) {
	if len(cmdline) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	timeoutCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		timeoutCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(timeoutCtx, cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	killTree(cmd)
	cmd.WaitDelay = 2 * time.Second

	result := &toolResult{}
	var mu sync.Mutex
	capture := func(dst *[]string) func(string) {
		return func(line string) {
			mu.Lock()
			if len(*dst) < maxCapturedLines {
				*dst = append(*dst, line)
			}
			mu.Unlock()
		}
	}
	stdout := &lineWriter{onLine: capture(&result.Stdout)}
	stderr := &lineWriter{onLine: capture(&result.Stderr)}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cmdline[0], err)
	}
	waitErr := cmd.Wait()
	stdout.flush()
	stderr.flush()
	result.Duration = time.Since(start)

	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		// Killed at the deadline; whatever arrived before it is in the
		// result, and the process group has already been reaped.
		result.TimedOut = true
		return result, nil
	}
	if ctx.Err() != nil {
		// Caller cancellation, not a detection timeout.
		return result, ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		case errors.Is(waitErr, exec.ErrWaitDelay):
			// The tool exited but an orphan held its pipes past WaitDelay;
			// the captured output is intact.
			return result, nil
		default:
			return result, fmt.Errorf("waiting for %s: %w", cmdline[0], waitErr)
		}
	}
	return result, nil
}

// watchProc is a resident tool process exclusively owned by the monitor that
// spawned it. The run loop restarts the tool if it exits unexpectedly,
// throttled so a crash-looping tool cannot spin the host.
type watchProc struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startWatch launches the resident invocation and feeds every output line
// (stdout and stderr) to onLine. It never fails synchronously: spawn errors
// are logged and retried by the loop under the restart throttle.
func startWatch(ctx context.Context, dir string, cmdline []string, onLine func(string)) *watchProc {
	ctx, cancel := context.WithCancel(ctx)
	w := &watchProc{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// One restart per 5s, with a burst of one so the first spawn is immediate.
	limiter := rate.NewLimiter(rate.Every(5*time.Second), 1)

	go func() {
		defer close(w.done)
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := runResident(ctx, dir, cmdline, onLine); err != nil && ctx.Err() == nil {
				log.Printf("watch process %s: %v", cmdline[0], err)
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("watch process %s exited, restarting", cmdline[0])
		}
	}()
	return w
}

// stop terminates the resident process and waits for the loop to exit. Safe
// to call once per watchProc; the owning monitor's Stop guards idempotency.
func (w *watchProc) stop() {
	w.cancel()
	<-w.done
}

// runResident runs the tool once, streaming lines until it exits or ctx is
// cancelled (which kills its process group).
func runResident(ctx context.Context, dir string, cmdline []string, onLine func(string)) error {
	if len(cmdline) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	killTree(cmd)
	cmd.WaitDelay = 2 * time.Second

	stdout := &lineWriter{onLine: onLine}
	stderr := &lineWriter{onLine: onLine}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", cmdline[0], err)
	}
	err := cmd.Wait()
	stdout.flush()
	stderr.flush()
	if errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}
