package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/wayfarer/social-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. A job with an
// invalid schedule is logged and skipped.
func (s *Scheduler) Start() {
	s.register("trip refresh", s.config.TripRefreshSchedule, s.jobs.RefreshCurrentTrips)
	s.register("group expiry", s.config.GroupExpirySchedule, s.jobs.CloseExpiredGroups)
	s.cron.Start()
}

func (s *Scheduler) register(name, schedule string, job func()) {
	if _, err := s.cron.AddFunc(schedule, job); err != nil {
		s.logger.Error("failed to schedule job", "job", name, "schedule", schedule, "error", err)
		return
	}
	s.logger.Info("scheduled job", "job", name, "schedule", schedule)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) entryCount() int {
	return len(s.cron.Entries())
}
