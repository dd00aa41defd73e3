package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"appideas.app/engine/common/logger"
	"github.com/robfig/cron/v3"
)

const (
	DefaultUsageResetSpec = "5 0 1 * *"  // 00:05 UTC on the first of each month
	DefaultPurgeSpec      = "30 3 * * *" // 03:30 UTC daily
)

type SchedulerConfig struct {
	UsageResetSpec string
	PurgeSpec      string
}

// Scheduler runs housekeeping jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	jobs MaintenanceJobs
}

func NewScheduler(jobs MaintenanceJobs, cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.UsageResetSpec == "" {
		cfg.UsageResetSpec = DefaultUsageResetSpec
	}
	if cfg.PurgeSpec == "" {
		cfg.PurgeSpec = DefaultPurgeSpec
	}

	s := &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.DiscardLogger))),
		jobs: jobs,
	}

	if _, err := s.cron.AddFunc(cfg.UsageResetSpec, s.resetUsage); err != nil {
		return nil, fmt.Errorf("scheduling usage reset: %w", err)
	}
	if _, err := s.cron.AddFunc(cfg.PurgeSpec, s.purge); err != nil {
		return nil, fmt.Errorf("scheduling analysis purge: %w", err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	slog.InfoContext(ctx, "scheduler started", "jobs", len(s.cron.Entries()))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.InfoContext(ctx, "scheduler stopped")
}

func (s *Scheduler) jobContext(job string) context.Context {
	return logger.WithLogFields(context.Background(), logger.LogFields{Component: "engine.worker.scheduler." + job})
}

func (s *Scheduler) resetUsage() {
	ctx := s.jobContext("usage_reset")
	if _, err := s.jobs.ResetMonthlyUsage(ctx); err != nil {
		slog.ErrorContext(ctx, "monthly usage reset failed", "error", err)
	}
}

func (s *Scheduler) purge() {
	ctx := s.jobContext("purge")
	if _, err := s.jobs.PurgeStaleAnalyses(ctx); err != nil {
		slog.ErrorContext(ctx, "analysis purge failed", "error", err)
	}
}
