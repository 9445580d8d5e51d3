// Package scheduler triggers monitoring ticks on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"keyword_bot/internal/monitor"
)

// Runner executes one monitoring tick.
type Runner interface {
	RunTick(ctx context.Context) (*monitor.Stats, error)
}

// Scheduler invokes the monitor once per interval. The tick result is
// logged and discarded; the HTTP trigger surface exposes the same call for
// manual runs.
type Scheduler struct {
	runner Runner
	log    *slog.Logger
	tick   time.Duration
}

// New creates a Scheduler firing every tick.
func New(runner Runner, tick time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, log: log, tick: tick}
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
// One tick runs immediately on start.
func (s *Scheduler) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	stats, err := s.runner.RunTick(ctx)
	switch {
	case errors.Is(err, monitor.ErrTickRunning):
		// A manual trigger or a slow previous tick holds the run lock.
		s.log.Debug("tick skipped, previous run still in progress")
	case err != nil:
		s.log.Error("scheduled tick failed", "error", err)
	default:
		s.log.Debug("scheduled tick finished",
			"new_posts", stats.NewPosts,
			"sent", stats.Succeeded,
			"failed", stats.Failed,
		)
	}
}
