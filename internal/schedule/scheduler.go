// Package schedule triggers collection runs on a fixed interval, skipping
// the configured quiet window overnight.
package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/fog"
)

// Runner is anything that can execute one collection run.
type Runner interface {
	Run(ctx context.Context) (string, error)
}

// Config controls run cadence. Quiet hours are UTC; a negative hour on
// either side disables the window.
type Config struct {
	Interval       time.Duration
	QuietStartHour int
	QuietEndHour   int
}

// Scheduler drives the runner on a ticker.
type Scheduler struct {
	runner Runner
	clock  fog.Clock
	cfg    Config
	logger *zap.Logger
}

// New builds a Scheduler.
func New(runner Runner, clock fog.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Minute
	}
	return &Scheduler{
		runner: runner,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Run fires one collection run immediately and then on every interval tick
// until the context is cancelled. Ticks inside the quiet window are skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("quiet_start_hour", s.cfg.QuietStartHour),
		zap.Int("quiet_end_hour", s.cfg.QuietEndHour))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()
	if InQuietWindow(now.Hour(), s.cfg.QuietStartHour, s.cfg.QuietEndHour) {
		s.logger.Info("skipping run inside quiet window",
			zap.Int("hour", now.Hour()))
		return
	}
	runID, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled run completed", zap.String("run_id", runID))
}

// InQuietWindow reports whether the hour falls inside [start, end). A window
// that wraps midnight, such as 22 to 5, is handled.
func InQuietWindow(hour, start, end int) bool {
	if start < 0 || end < 0 || start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
