// Package scheduler executes a batch of download tasks with bounded
// parallelism, aggregated progress, and a continue-on-failure policy, per
// spec §4.6.
package scheduler

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/outpost-dev/launchcore/src/hashfetch"
	"github.com/outpost-dev/launchcore/src/planner"
)

// DefaultWorkers is used when callers don't specify W.
const DefaultWorkers = 8

// MinWorkers and MaxWorkers bound the configurable worker count (spec §4.6:
// "range 1..=32").
const (
	MinWorkers = 1
	MaxWorkers = 32
)

// ClampWorkers returns w clamped to [MinWorkers, MaxWorkers], substituting
// DefaultWorkers for w <= 0.
func ClampWorkers(w int) int {
	if w <= 0 {
		w = DefaultWorkers
	}
	if w < MinWorkers {
		w = MinWorkers
	}
	if w > MaxWorkers {
		w = MaxWorkers
	}
	return w
}

// BatchReport is the outcome of running one task batch.
type BatchReport struct {
	Completed []string // dest paths
	Failed    map[string]error
	Err       error // aggregated multierror of all Failed entries, or nil
}

// ProgressSink aggregates byte-level progress across every task in a batch.
// SetTotal receives the sum of declared sizes (tasks without a declared size
// contribute 0); OnBytes is called as each fetcher reports progress.
type ProgressSink interface {
	SetTotal(totalBytes int64)
	OnBytes(taskID string, delta int64)
	OnTaskDone(taskID string, err error)
}

// NopSink discards all progress.
type NopSink struct{}

func (NopSink) SetTotal(int64)            {}
func (NopSink) OnBytes(string, int64)     {}
func (NopSink) OnTaskDone(string, error)  {}

// Fetcher is the dependency scheduler uses to run one task; hashfetch.Fetcher
// satisfies it directly, and Run hands each call a per-task adapter over the
// batch ProgressSink.
type Fetcher interface {
	Fetch(ctx context.Context, taskID, sourceURL, destPath, expectedSHA1 string, expectedSize int64, sink hashfetch.ProgressSink) error
}

// Scheduler runs task batches with bounded parallelism.
type Scheduler struct {
	fetcher Fetcher
	workers int
	log     *zap.Logger
}

// New builds a Scheduler with W workers (clamped via ClampWorkers).
func New(fetcher Fetcher, workers int, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{fetcher: fetcher, workers: ClampWorkers(workers), log: log}
}

type sinkAdapter struct {
	taskID string
	batch  ProgressSink
}

func (a sinkAdapter) OnBytes(_ string, delta int64) { a.batch.OnBytes(a.taskID, delta) }
func (a sinkAdapter) OnComplete(_ string, err error) { a.batch.OnTaskDone(a.taskID, err) }

// Run executes tasks with W-bounded parallelism. Failures do not cancel
// peers (continue-on-failure); on context cancellation, no new tasks are
// dispatched and in-flight tasks are allowed to finish their current retry
// or respond to cancellation before Run returns. No ordering guarantees
// hold between tasks in a batch (FIFO dispatch, no priority).
func (s *Scheduler) Run(ctx context.Context, tasks []planner.Task, sink ProgressSink) BatchReport {
	if sink == nil {
		sink = NopSink{}
	}

	var total int64
	for _, t := range tasks {
		total += t.ExpectedSize
	}
	sink.SetTotal(total)

	var mu sync.Mutex
	report := BatchReport{Failed: make(map[string]error)}

	// errgroup bounds concurrency to s.workers; member goroutines never
	// return a non-nil error themselves, since one task's failure must not
	// cancel its peers (continue-on-failure, spec §4.6). Only ctx's own
	// cancellation stops new dispatch.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, t := range tasks {
		t := t
		if gctx.Err() != nil {
			mu.Lock()
			report.Failed[t.DestPath] = &hashfetch.FetchError{Kind: hashfetch.ErrCancelled, Target: t.DestPath, Err: gctx.Err()}
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			err := s.fetcher.Fetch(ctx, t.DestPath, t.SourceURL, t.DestPath, t.ExpectedSHA1, t.ExpectedSize, sinkAdapter{taskID: t.DestPath, batch: sink})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[t.DestPath] = err
				s.log.Warn("task failed", zap.String("dest", t.DestPath), zap.Error(err))
			} else {
				report.Completed = append(report.Completed, t.DestPath)
			}
			return nil
		})
	}
	g.Wait()

	if len(report.Failed) > 0 {
		var merr *multierror.Error
		for path, err := range report.Failed {
			merr = multierror.Append(merr, &taskError{path: path, err: err})
		}
		report.Err = merr.ErrorOrNil()
	}

	return report
}

type taskError struct {
	path string
	err  error
}

func (e *taskError) Error() string { return e.path + ": " + e.err.Error() }
func (e *taskError) Unwrap() error { return e.err }
