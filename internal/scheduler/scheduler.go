// Package scheduler drives periodic work. The reconcile loop runs on a
// fixed-interval scheduler; alignment to wall-clock boundaries is not
// needed because triggers are re-evaluated against fresh prices each tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"sigtrade/internal/logger"
)

type IntervalScheduler struct {
	Name           string
	RunImmediately bool

	mu       sync.Mutex
	interval time.Duration

	ctx   context.Context
	nowFn func() time.Time
}

func NewIntervalScheduler(ctx context.Context, name string, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Name:     name,
		interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// SetInterval changes the tick interval; the new value applies from the
// next cycle.
func (s *IntervalScheduler) SetInterval(interval time.Duration) {
	if s == nil || interval <= 0 {
		return
	}
	s.mu.Lock()
	changed := interval != s.interval
	s.interval = interval
	s.mu.Unlock()
	if changed {
		logger.Infof("IntervalScheduler[%s]: interval changed to %s", s.Name, interval)
	}
}

func (s *IntervalScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Start blocks and runs task every interval until the context is done.
// A slow task delays the next run; ticks never overlap from this loop.
func (s *IntervalScheduler) Start(task func()) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("IntervalScheduler[%s]: task is nil, exit", s.Name)
		return
	}
	if s.Interval() <= 0 {
		logger.Warnf("IntervalScheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval())
		return
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("IntervalScheduler[%s]: started interval=%s run_immediately=%v at=%s",
		s.Name, s.Interval(), s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task()
	}

	timer := time.NewTimer(s.Interval())
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("IntervalScheduler[%s]: ctx done, exit uptime=%s",
				s.Name, s.nowFn().UTC().Sub(startAt).Truncate(time.Second))
			return
		case <-timer.C:
		}
		task()
		timer.Reset(s.Interval())
	}
}
