// Package scheduler reruns the conversion pipeline at fixed times of day.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
)

// Pipeline is one full fetch and convert cycle.
type Pipeline func(ctx context.Context) error

// Status is a snapshot of the scheduler for health checks.
type Status struct {
	Running     bool      `json:"running"`
	Runs        int       `json:"runs"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
	NextRun     time.Time `json:"next_run"`
}

// Scheduler runs a Pipeline once on Start and then at the configured times.
// Runs never overlap: a trigger that fires while a run is in progress is
// skipped.
type Scheduler struct {
	pipeline  Pipeline
	times     string
	logger    *slog.Logger
	scheduler *gocron.Scheduler
	job       *gocron.Job
	ctx       context.Context

	running atomic.Bool
	mu      sync.Mutex
	status  Status
}

// New creates a scheduler. times is a ';'-separated list of HH:MM in local
// time, e.g. "06:00;18:00".
func New(pipeline Pipeline, times string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pipeline:  pipeline,
		times:     times,
		logger:    logger.With(slog.String("component", "scheduler")),
		scheduler: gocron.NewScheduler(time.Local),
	}
}

// Start performs the initial run and then schedules the following ones. A
// failed initial run is logged and does not stop the schedule; only an
// invalid schedule is an error. ctx is handed to every run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Initial pipeline run failed.", "error", err)
	}

	job, err := s.scheduler.Every(1).Days().At(s.times).Do(func() {
		if _, err := s.RunOnce(s.ctx); err != nil {
			s.logger.Error("Scheduled pipeline run failed.", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule runs at %q: %w", s.times, err)
	}
	s.mu.Lock()
	s.job = job
	s.mu.Unlock()

	s.scheduler.StartAsync()
	s.logger.Info("Scheduler started.", slog.String("times", s.times), slog.Time("next_run", job.NextRun()))
	return nil
}

// Stop cancels future runs. A run already in progress is not interrupted.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RunOnce runs the pipeline now unless a run is already in progress, in
// which case it returns ran=false.
func (s *Scheduler) RunOnce(ctx context.Context) (ran bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("Run already in progress, skipping.")
		return false, nil
	}
	defer s.running.Store(false)

	start := time.Now()
	s.logger.Info("Starting pipeline run.")
	err = s.pipeline(ctx)

	s.mu.Lock()
	s.status.Runs++
	s.status.LastRun = start
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
		s.status.LastSuccess = time.Now()
	}
	s.mu.Unlock()

	s.logger.Info("Pipeline run finished.", slog.Duration("duration", time.Since(start)), slog.Bool("ok", err == nil))
	return true, err
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st, job := s.status, s.job
	s.mu.Unlock()
	st.Running = s.running.Load()
	if job != nil {
		st.NextRun = job.NextRun()
	}
	return st
}
