package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-dev/launchcore/src/launch"
)

type recordingSink struct {
	mu      sync.Mutex
	lines   []LogLine
	exited  bool
	state   State
	code    int
}

func (s *recordingSink) OnLine(line LogLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *recordingSink) OnExit(state State, exitCode int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exited = true
	s.state = state
	s.code = exitCode
}

func TestHostRunsToCompletionAndCapturesOutput(t *testing.T) {
	h := New(nil)
	sink := &recordingSink{}

	plan := launch.Plan{
		JavaPath: "/bin/sh",
		Args:     []string{"-c", "echo hello-from-child"},
		WorkDir:  t.TempDir(),
	}

	require.NoError(t, h.Start(context.Background(), plan, sink))

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit in time")
	}

	assert.Equal(t, StateExited, h.State())
	assert.Equal(t, 0, h.ExitCode())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.True(t, sink.exited)
	require.Len(t, sink.lines, 1)
	assert.Equal(t, "hello-from-child", sink.lines[0].Text)
}

func TestHostReportsNonZeroExit(t *testing.T) {
	h := New(nil)
	sink := &recordingSink{}

	plan := launch.Plan{
		JavaPath: "/bin/sh",
		Args:     []string{"-c", "exit 7"},
		WorkDir:  t.TempDir(),
	}

	require.NoError(t, h.Start(context.Background(), plan, sink))
	<-h.Done()

	assert.Equal(t, StateExited, h.State())
	assert.Equal(t, 7, h.ExitCode())
}

func TestHostTerminateStopsLongRunningProcess(t *testing.T) {
	h := New(nil)
	sink := &recordingSink{}

	plan := launch.Plan{
		JavaPath: "/bin/sh",
		Args:     []string{"-c", "sleep 30"},
		WorkDir:  t.TempDir(),
	}

	require.NoError(t, h.Start(context.Background(), plan, sink))

	// give the shell a moment to actually exec before signalling it
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, h.Terminate(2*time.Second))

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("terminated process did not report done")
	}

	assert.Equal(t, StateTerminated, h.State())
}
