package cmd

import (
	"sync"

	"github.com/schollz/progressbar/v3"
)

// barSink adapts a schollz/progressbar bar to scheduler.ProgressSink,
// tracking aggregate bytes across every task in a batch.
type barSink struct {
	mu          sync.Mutex
	bar         *progressbar.ProgressBar
	description string
}

func newBarSink(description string) *barSink {
	return &barSink{description: description}
}

func (s *barSink) SetTotal(totalBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bar = progressbar.DefaultBytes(totalBytes, s.description)
}

func (s *barSink) OnBytes(_ string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Add64(delta)
	}
}

func (s *barSink) OnTaskDone(_ string, _ error) {}

func (s *barSink) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}
