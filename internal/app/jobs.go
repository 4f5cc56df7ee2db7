package app

import (
	"context"
	"log/slog"
	"time"
)

// JobsRepository is the maintenance surface used by scheduled jobs.
type JobsRepository interface {
	RefreshCurrentTrips(ctx context.Context, now time.Time) (int64, error)
	CloseExpiredGroups(ctx context.Context, now time.Time) (int64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo    JobsRepository
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

func NewJobs(repo JobsRepository, logger *slog.Logger) *Jobs {
	return &Jobs{
		repo:    repo,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		timeout: time.Minute,
	}
}

// RefreshCurrentTrips recomputes which trips are in progress.
func (j *Jobs) RefreshCurrentTrips() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	changed, err := j.repo.RefreshCurrentTrips(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to refresh current trips", "error", err)
		return
	}
	j.logger.Info("current trips refreshed", "changed", changed)
}

// CloseExpiredGroups closes groups whose window has ended.
func (j *Jobs) CloseExpiredGroups() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	closed, err := j.repo.CloseExpiredGroups(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to close expired groups", "error", err)
		return
	}
	if closed > 0 {
		j.logger.Info("closed expired groups", "count", closed)
	}
}
