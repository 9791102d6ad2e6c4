package services

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"code-duel/config"
	"code-duel/monitoring"
)

type sweepJob struct {
	name     string
	interval time.Duration
	task     func()
}

// StartSweepers schedules the periodic housekeeping: expiring idle rooms,
// forgetting finished matches and refreshing the gauges.
func StartSweepers(cfg *config.Config, rooms *RoomRegistry, matches *MatchManager, monitor *monitoring.Monitor) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("StartSweepers: %w", err)
	}

	jobs := []sweepJob{
		{
			name:     "room-sweep",
			interval: cfg.RoomSweepInterval,
			task: func() {
				if n := rooms.PurgeExpired(); n > 0 {
					slog.Info("purged rooms", "count", n)
				}
			},
		},
		{
			name:     "match-purge",
			interval: cfg.FinishedMatchRetention,
			task: func() {
				if n := matches.PurgeFinished(); n > 0 {
					slog.Info("purged finished matches", "count", n)
				}
			},
		},
	}
	if cfg.EnableMetrics {
		jobs = append(jobs, sweepJob{
			name:     "collect-metrics",
			interval: cfg.MetricsCollectInterval,
			task:     monitor.CollectMetrics,
		})
	}

	for _, job := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(job.task),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("StartSweepers: %s: %w", job.name, err)
		}
	}

	sched.Start()
	return sched, nil
}
