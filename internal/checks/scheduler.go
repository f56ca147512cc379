package checks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs the checks on a fixed interval inside the service, for
// deployments without an external cron.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner *Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks, running the checks every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("check scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("check scheduler stopping")
			return
		case <-ticker.C:
			summary := s.runner.Run(ctx)
			for _, c := range summary.Checks {
				if c.Status == StatusFailed {
					s.logger.Warn("scheduled check failed",
						zap.String("check", c.Type),
						zap.Stringp("error", c.Error),
					)
				}
			}
		}
	}
}
