// Package scheduler runs push sweeps on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/projectvak/contracthub/internal/push"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse validates a five-field cron expression.
func Parse(expr string) (cron.Schedule, error) {
	s, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// Sweeper runs one sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (push.SweepResult, error)
}

// Scheduler triggers a sweep at every activation of its schedule.
type Scheduler struct {
	schedule cron.Schedule
	expr     string
	sweeper  Sweeper
	logger   *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New creates a Scheduler. An empty expression returns (nil, nil) and
// disables scheduled sweeps.
func New(expr string, sweeper Sweeper, logger *slog.Logger) (*Scheduler, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedule: sched,
		expr:     expr,
		sweeper:  sweeper,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}, nil
}

// Run blocks until ctx is cancelled. Sweep errors are logged and the loop
// waits for the next activation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler: sweeps scheduled", slog.String("cron", s.expr))
	for {
		now := s.now()
		next := s.schedule.Next(now)
		wait := next.Sub(now)
		s.logger.Debug("scheduler: next sweep",
			slog.Time("at", next),
			slog.Duration("in", wait.Round(time.Second)))

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(wait):
		}

		res, err := s.sweeper.Sweep(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduler: sweep failed", slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("scheduler: sweep finished",
			slog.Int("pushed", res.PushedCount),
			slog.Int("failed", len(res.Failed)),
			slog.Int("duplicates", len(res.Duplicates)))
	}
}
