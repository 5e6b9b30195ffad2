package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrStop is returned by a TickFunc to end the loop without error.
var ErrStop = errors.New("scheduler: stop requested")

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval       time.Duration
	AlignToBucket  bool
	StartupDelay   time.Duration
	RunImmediately bool
	// Deadline stops the loop once reached. Zero means run until cancelled.
	Deadline time.Time
}

// Scheduler drives periodic evaluation runs.
type Scheduler struct {
	opts   Options
	now    func() time.Time
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, now: time.Now, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick at each interval until ctx is cancelled, the
// deadline passes or tick returns ErrStop. Other tick errors are logged.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunImmediately {
		if stop := s.execute(ctx, tick, s.bucketStart(s.now().UTC())); stop {
			return nil
		}
	}

	next := s.nextTick(s.now().UTC())
	for {
		if s.pastDeadline(next) {
			s.logger.Info().Time("deadline", s.opts.Deadline).Msg("deadline reached, stopping")
			return nil
		}

		delay := next.Sub(s.now())
		if delay < 0 {
			next = s.nextTick(s.now().UTC())
			continue
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if stop := s.execute(ctx, tick, s.bucketStart(next)); stop {
			return nil
		}
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, bucket time.Time) bool {
	s.logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")
	err := tick(ctx, bucket)
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStop):
		s.logger.Info().Time("bucket", bucket).Msg("tick requested stop")
		return true
	default:
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
		return false
	}
}

func (s *Scheduler) pastDeadline(t time.Time) bool {
	return !s.opts.Deadline.IsZero() && !t.Before(s.opts.Deadline)
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToBucket {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToBucket {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

// NextClock returns the next instant at or after now whose wall clock in loc
// reads hour:minute.
func NextClock(now time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if at.Before(local) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
