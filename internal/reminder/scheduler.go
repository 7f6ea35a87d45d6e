// Package reminder runs the deadline reminder job once a day inside the
// server process.
package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sponsortracker/internal/metrics"
	"sponsortracker/internal/service"
)

// Runner is the job the scheduler triggers. *service.Service implements it.
type Runner interface {
	RunDeadlineReminders(ctx context.Context, now time.Time) (service.ReminderRun, error)
}

type Scheduler struct {
	runner Runner
	hour   int
	log    *zap.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

type Option func(*Scheduler)

// WithClock replaces time.Now and time.After.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

func NewScheduler(r Runner, hourUTC int, log *zap.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{runner: r, hour: hourUTC, log: log, now: time.Now, after: time.After}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the first run instant strictly after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is done, triggering the job at the configured hour
// every day. It always returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.Next(s.now())
		s.log.Debug("next reminder run scheduled", zap.Time("at", next))
		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(s.now())):
		}
		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	run, err := s.runner.RunDeadlineReminders(ctx, s.now())
	metrics.ReminderRuns.WithLabelValues("scheduler", metrics.Outcome(err)).Inc()
	if err != nil {
		s.log.Error("deadline reminder run failed", zap.Error(err))
		return
	}
	s.log.Info("deadline reminder run finished",
		zap.Int("sent", run.Sent),
		zap.Int("total", run.Total),
		zap.Strings("errors", run.Errors),
	)
}
