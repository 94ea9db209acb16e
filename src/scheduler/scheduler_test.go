package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-dev/launchcore/src/hashfetch"
	"github.com/outpost-dev/launchcore/src/planner"
)

type fakeFetcher struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	failPaths   map[string]bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, taskID, sourceURL, destPath, expectedSHA1 string, expectedSize int64, sink hashfetch.ProgressSink) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if sink != nil {
		sink.OnBytes(destPath, expectedSize)
	}

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.failPaths[destPath] {
		return errors.New("simulated failure")
	}
	return nil
}

func TestClampWorkers(t *testing.T) {
	assert.Equal(t, DefaultWorkers, ClampWorkers(0))
	assert.Equal(t, MinWorkers, ClampWorkers(-5))
	assert.Equal(t, MaxWorkers, ClampWorkers(999))
	assert.Equal(t, 4, ClampWorkers(4))
}

func TestRunRespectsWorkerBound(t *testing.T) {
	fetcher := &fakeFetcher{}
	sched := New(fetcher, 2, nil)

	var tasks []planner.Task
	for i := 0; i < 10; i++ {
		tasks = append(tasks, planner.Task{DestPath: "/tmp/file" + string(rune('a'+i)), ExpectedSize: 10})
	}

	report := sched.Run(context.Background(), tasks, nil)
	require.NoError(t, report.Err)
	assert.Len(t, report.Completed, 10)
	assert.LessOrEqual(t, fetcher.maxInFlight, 2)
}

func TestRunContinuesOnFailure(t *testing.T) {
	fetcher := &fakeFetcher{failPaths: map[string]bool{"/tmp/bad": true}}
	sched := New(fetcher, 4, nil)

	tasks := []planner.Task{
		{DestPath: "/tmp/good1", ExpectedSize: 1},
		{DestPath: "/tmp/bad", ExpectedSize: 1},
		{DestPath: "/tmp/good2", ExpectedSize: 1},
	}

	report := sched.Run(context.Background(), tasks, nil)
	require.Error(t, report.Err)
	assert.ElementsMatch(t, []string{"/tmp/good1", "/tmp/good2"}, report.Completed)
	assert.Contains(t, report.Failed, "/tmp/bad")
}

type countingSink struct {
	total int64
	bytes int64
}

func (s *countingSink) SetTotal(total int64)              { s.total = total }
func (s *countingSink) OnBytes(_ string, delta int64)     { atomic.AddInt64(&s.bytes, delta) }
func (s *countingSink) OnTaskDone(_ string, _ error)      {}

func TestRunReportsAggregateProgress(t *testing.T) {
	fetcher := &fakeFetcher{}
	sched := New(fetcher, 2, nil)
	sink := &countingSink{}

	tasks := []planner.Task{
		{DestPath: "/tmp/a", ExpectedSize: 100},
		{DestPath: "/tmp/b", ExpectedSize: 200},
	}

	report := sched.Run(context.Background(), tasks, sink)
	require.NoError(t, report.Err)
	assert.Equal(t, int64(300), sink.total)
	assert.Equal(t, int64(300), atomic.LoadInt64(&sink.bytes))
}
