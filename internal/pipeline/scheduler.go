package pipeline

// scheduler.go runs the pipeline on a fixed interval in serve mode.
//
// The scheduler is long-running and context-aware for graceful shutdown. A
// failed run is logged and reported; it never stops the scheduler. Runs,
// scheduled or triggered, never overlap.

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ScheduleConfig holds configuration for the run scheduler.
type ScheduleConfig struct {
	Interval   time.Duration // zero disables scheduled runs
	RunOnStart bool          // run once immediately on Start
}

// Scheduler serializes pipeline runs and remembers the latest report.
type Scheduler struct {
	runner *Runner
	inputs Inputs
	opts   Options
	cfg    ScheduleConfig
	onRun  func(*Report)

	mu     sync.Mutex // held for the duration of a run
	lastMu sync.RWMutex
	last   *Report
}

// NewScheduler creates a scheduler. onRun, if set, is called after every
// run with its report.
func NewScheduler(runner *Runner, inputs Inputs, opts Options, cfg ScheduleConfig, onRun func(*Report)) *Scheduler {
	return &Scheduler{
		runner: runner,
		inputs: inputs,
		opts:   opts,
		cfg:    cfg,
		onRun:  onRun,
	}
}

// Start blocks, running the pipeline every Interval until ctx is cancelled.
// With a zero Interval it only honours RunOnStart.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("run scheduler started",
		"interval", s.cfg.Interval,
		"run_on_start", s.cfg.RunOnStart,
	)

	if s.cfg.RunOnStart {
		s.RunOnce(ctx)
	}

	if s.cfg.Interval <= 0 {
		<-ctx.Done()
		slog.Info("run scheduler stopped")
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("run scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one run, waiting for any run in progress to finish first.
func (s *Scheduler) RunOnce(ctx context.Context) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := s.runner.Run(ctx, s.inputs, s.opts)

	s.lastMu.Lock()
	s.last = report
	s.lastMu.Unlock()

	if s.onRun != nil {
		s.onRun(report)
	}
	return report
}

// LastReport returns the report of the most recent run, or nil.
func (s *Scheduler) LastReport() *Report {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}
