package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per poll cycle.
type TickFunc func(ctx context.Context, cycle time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	ErrorBackoff time.Duration
	StartupDelay time.Duration
}

// Scheduler drives the polling loop. A failed tick shortens the next
// sleep to the error backoff; the loop itself only stops on context
// cancellation, never on a tick error.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = opts.Interval / 2
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function each cycle until ctx is
// cancelled. The in-flight tick always runs to completion before the
// loop observes cancellation.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := s.sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	for {
		cycle := time.Now().UTC()
		s.logger.Debug().Time("cycle", cycle).Msg("executing poll cycle")

		delay := s.opts.Interval
		if err := tick(ctx, cycle); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.logger.Error().Err(err).Time("cycle", cycle).Msg("cycle failed, backing off")
			delay = s.opts.ErrorBackoff
		}

		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
