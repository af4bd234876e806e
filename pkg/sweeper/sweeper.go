// Package sweeper periodically removes expired profile entries on a cron
// schedule.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorhill/cronexpr"
)

// Cleaner removes expired entries; an empty user id sweeps every user.
type Cleaner interface {
	CleanupExpired(ctx context.Context, userID string) (int64, error)
}

// Config configures a Sweeper.
type Config struct {
	// Schedule is a cron expression, e.g. "*/15 * * * *" or "@hourly".
	Schedule string

	Cleaner Cleaner
	Logger  *slog.Logger

	// Now and After default to time.Now and time.After.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Sweeper runs global cleanups on its schedule.
type Sweeper struct {
	expr    *cronexpr.Expression
	cleaner Cleaner
	logger  *slog.Logger
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time
}

// New parses the schedule.
func New(c Config) (*Sweeper, error) {
	expr, err := cronexpr.Parse(c.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing cleanup schedule %q: %w", c.Schedule, err)
	}

	s := &Sweeper{
		expr:    expr,
		cleaner: c.Cleaner,
		logger:  c.Logger,
		now:     c.Now,
		after:   c.After,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.after == nil {
		s.after = time.After
	}
	return s, nil
}

// Next returns the first run after from.
func (s *Sweeper) Next(from time.Time) time.Time {
	return s.expr.Next(from)
}

// Run sweeps on every scheduled tick until ctx is done. Failed sweeps are
// logged and retried at the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		now := s.now()
		next := s.expr.Next(now)
		if next.IsZero() {
			s.logger.Warn("cleanup schedule has no future run, sweeper stopped")
			return
		}

		s.logger.Debug("next cleanup scheduled", "at", next)
		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(now)):
		}

		removed, err := s.cleaner.CleanupExpired(ctx, "")
		if err != nil {
			s.logger.Error("scheduled cleanup failed", "error", err)
			continue
		}
		s.logger.Info("scheduled cleanup complete", "removed", removed)
	}
}
