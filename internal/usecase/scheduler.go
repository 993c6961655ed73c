package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"UpdatesDigest/internal/ports"
)

const leaseKey = "updates-digest:run"

// ScheduleOptions select what a scheduled trigger runs.
type ScheduleOptions struct {
	// Mode is "daily" or "rolling".
	Mode     string
	Publish  bool
	LeaseTTL time.Duration
}

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	lease    ports.RunLease
	opts     ScheduleOptions
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs. lease may be nil.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, lease ports.RunLease, opts ScheduleOptions, log *slog.Logger) *Scheduler {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 30 * time.Minute
	}
	return &Scheduler{driver: driver, pipeline: pipeline, lease: lease, opts: opts, logger: log}
}

// WithDriver returns a copy of s that registers with driver on Start.
func (s *Scheduler) WithDriver(driver ports.Scheduler) *Scheduler {
	cp := *s
	cp.driver = driver
	return &cp
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.Trigger(ctx, trigger)
	}

	return s.driver.Start(ctx, job)
}

// Trigger runs one scheduled cycle in the configured mode.
func (s *Scheduler) Trigger(ctx context.Context, trigger time.Time) (RunResult, bool) {
	if s.opts.Mode == "rolling" {
		return s.RunRolling(ctx, RollingRequest{FetchFresh: true, Publish: s.opts.Publish})
	}
	return s.RunDaily(ctx, RunRequest{TargetDate: trigger, Publish: s.opts.Publish})
}

// RunDaily executes a daily run unless another run holds the lease.
func (s *Scheduler) RunDaily(ctx context.Context, req RunRequest) (RunResult, bool) {
	return s.guarded(ctx, "daily", func() RunResult { return s.pipeline.Run(ctx, req) })
}

// RunRolling executes a rolling run unless another run holds the lease.
func (s *Scheduler) RunRolling(ctx context.Context, req RollingRequest) (RunResult, bool) {
	return s.guarded(ctx, "rolling", func() RunResult { return s.pipeline.RunRolling(ctx, req) })
}

// guarded reports ran=false only when another holder owns the lease. A lease
// backend fault is a failed run with the cause in Errors.
func (s *Scheduler) guarded(ctx context.Context, mode string, run func() RunResult) (RunResult, bool) {
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, leaseKey, s.opts.LeaseTTL)
		if err != nil {
			s.warn("run lease unavailable", "error", err)
			return RunResult{
				RunID:  uuid.NewString(),
				Mode:   mode,
				Errors: []string{fmt.Errorf("acquire run lease: %w", err).Error()},
			}, true
		}
		if !ok {
			s.info("run skipped, lease held elsewhere")
			return RunResult{}, false
		}
		defer func() {
			if err := s.lease.Release(context.WithoutCancel(ctx), leaseKey); err != nil {
				s.warn("run lease release failed", "error", err)
			}
		}()
	}
	return run(), true
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scheduler) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
