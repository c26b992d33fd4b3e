// Package worker runs background jobs on a cron schedule.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Expirer cancels bookings that can no longer be paid for.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Sweeper periodically expires stale bookings. Overlapping runs are skipped.
type Sweeper struct {
	cron    *cron.Cron
	expirer Expirer
	timeout time.Duration
	log     *zap.Logger
}

func NewSweeper(expirer Expirer, schedule string, timeout time.Duration, log *zap.Logger) (*Sweeper, error) {
	log = log.With(zap.String("worker", "expiry_sweeper"))
	cl := cronLogger{log: log}

	s := &Sweeper{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		expirer: expirer,
		timeout: timeout,
		log:     log,
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule expiry sweep %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.log.Info("Starting expiry sweeper")
	s.cron.Start()
}

// Stop stops scheduling and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Expiry sweep still running at shutdown")
	}
}

// RunOnce performs one sweep and returns how many bookings were expired.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.log.Error("Expiry sweep failed", zap.Error(err), zap.Int("expired", n))
		return n
	}

	s.log.Debug("Expiry sweep finished",
		zap.Int("expired", n),
		zap.Duration("took", time.Since(start)),
	)
	return n
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
