// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Jobs configures the background jobs. Nil services and a zero sweep
// interval leave the matching job out. Lazy expiry on reads and
// submissions stays authoritative either way.
type Jobs struct {
	Reports       *ReportService
	Archive       *ArchiveService
	Challenges    *ChallengeService
	SweepInterval time.Duration
	Location      *time.Location
	Logger        *zap.Logger
}

// Start registers the jobs on a new scheduler and starts it. Callers
// Shutdown the returned scheduler on exit.
func (j Jobs) Start(ctx context.Context) (gocron.Scheduler, error) {
	var opts []gocron.SchedulerOption
	if j.Location != nil {
		opts = append(opts, gocron.WithLocation(j.Location))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	if j.Reports != nil && j.Reports.Cache != nil {
		// Every minute: warm the leaderboard cache
		if _, err := sched.NewJob(
			gocron.DurationJob(1*time.Minute),
			gocron.NewTask(func() {
				if err := j.Reports.RefreshLeaderboards(ctx); err != nil {
					j.Logger.Warn("leaderboard_refresh_failed", zap.Error(err))
				}
			}),
			gocron.WithName("leaderboard-refresh"),
		); err != nil {
			return nil, err
		}
	}

	if j.Archive != nil {
		// Daily at 00:10: archive yesterday
		if _, err := sched.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 10, 0))),
			gocron.NewTask(func() {
				yesterday := j.Archive.Clock.AddDays(j.Archive.Clock.Today(), -1)
				if _, err := j.Archive.ExportDay(ctx, yesterday); err != nil {
					j.Logger.Error("archive_export_failed", zap.Error(err))
				}
			}),
			gocron.WithName("daily-archive"),
		); err != nil {
			return nil, err
		}
	}

	if j.Challenges != nil && j.SweepInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(j.SweepInterval),
			gocron.NewTask(func() {
				n, err := j.Challenges.ExpireOverdue(ctx)
				if err != nil {
					j.Logger.Warn("expiry_sweep_failed", zap.Error(err))
					return
				}
				if n > 0 {
					j.Logger.Info("expiry_sweep_done", zap.Int("expired", n))
				}
			}),
			gocron.WithName("expiry-sweep"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
