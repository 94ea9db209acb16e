// Package process supervises one spawned game process: its state machine,
// line-buffered log capture, and polite-then-forceful shutdown, per spec
// §4.9. Grounded on the teacher's LaunchMinecraft exec.Cmd wiring in
// src/launcher/launcher.go.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/moby/sys/signal"
	"go.uber.org/zap"

	"github.com/outpost-dev/launchcore/src/launch"
)

// State is one point in the process lifecycle: Spawning -> Running ->
// (Exited | Failed | Terminated).
type State int

const (
	StateSpawning State = iota
	StateRunning
	StateExited
	StateFailed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// LogLine is one captured line of child stdout/stderr, tagged by stream.
type LogLine struct {
	Stream string // "stdout" or "stderr"
	Text   string
}

// LogSink receives log lines as the child produces them, and a single
// terminal notification once the process has fully exited.
type LogSink interface {
	OnLine(line LogLine)
	OnExit(state State, exitCode int, err error)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) OnLine(LogLine)             {}
func (NopSink) OnExit(State, int, error) {}

// Host supervises one launched process end to end.
type Host struct {
	log *zap.Logger

	mu       sync.Mutex
	state    State
	exitCode int
	cmd      *exec.Cmd
	done     chan struct{}
}

// New constructs a Host; log may be nil.
func New(log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{log: log, state: StateSpawning, done: make(chan struct{})}
}

// State returns the current lifecycle state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ExitCode returns the child's exit code; only meaningful once State is
// Exited.
func (h *Host) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// Done is closed once the process has reached a terminal state.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// Start spawns plan.JavaPath with plan.Args in plan.WorkDir, streaming
// stdout/stderr to sink line by line, and returns once the child has been
// successfully started (not once it has exited).
func (h *Host) Start(ctx context.Context, plan launch.Plan, sink LogSink) error {
	if sink == nil {
		sink = NopSink{}
	}

	cmd := exec.CommandContext(ctx, plan.JavaPath, plan.Args...)
	cmd.Dir = plan.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("process: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("process: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		h.setState(StateFailed)
		close(h.done)
		return fmt.Errorf("process: start: %w", err)
	}

	h.mu.Lock()
	h.cmd = cmd
	h.state = StateRunning
	h.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go h.pump(&wg, stdout, "stdout", sink)
	go h.pump(&wg, stderr, "stderr", sink)

	go func() {
		wg.Wait()
		waitErr := cmd.Wait()

		h.mu.Lock()
		code := cmd.ProcessState.ExitCode()
		h.exitCode = code
		switch {
		case h.state == StateTerminated:
			// already marked by Terminate
		case waitErr != nil && code < 0:
			h.state = StateFailed
		default:
			h.state = StateExited
		}
		final := h.state
		h.mu.Unlock()

		sink.OnExit(final, code, waitErr)
		close(h.done)
	}()

	return nil
}

func (h *Host) pump(wg *sync.WaitGroup, r io.Reader, stream string, sink LogSink) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink.OnLine(LogLine{Stream: stream, Text: scanner.Text()})
	}
}

func (h *Host) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Terminate asks the process to exit politely (SIGTERM, or the platform
// equivalent moby/sys/signal resolves), waiting up to grace for it to do so
// before escalating to SIGKILL. No-op if the process has already exited.
func (h *Host) Terminate(grace time.Duration) error {
	h.mu.Lock()
	cmd := h.cmd
	alreadyDone := h.state == StateExited || h.state == StateFailed || h.state == StateTerminated
	h.mu.Unlock()
	if cmd == nil || alreadyDone {
		return nil
	}

	term, ok := signal.SignalMap["TERM"]
	if !ok {
		term = syscall.SIGTERM
	}
	h.setState(StateTerminated)
	if err := cmd.Process.Signal(term); err != nil {
		h.log.Warn("polite signal failed, escalating", zap.Error(err))
		return h.forceKill(cmd)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
		h.log.Warn("process did not exit within grace period, sending kill")
		return h.forceKill(cmd)
	}
}

func (h *Host) forceKill(cmd *exec.Cmd) error {
	kill, ok := signal.SignalMap["KILL"]
	if !ok {
		kill = syscall.SIGKILL
	}
	if err := cmd.Process.Signal(kill); err != nil {
		return fmt.Errorf("process: force kill: %w", err)
	}
	return nil
}
