// Package scheduler re-resolves tracked job states on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	defaultInterval = 5 * time.Second
	// cron.Every has one-second granularity.
	minInterval = time.Second
)

// RefreshFunc performs one refresh cycle.
type RefreshFunc func(ctx context.Context)

// Options configures the scheduler service.
type Options struct {
	Interval time.Duration
	// SkipInitial suppresses the refresh that normally runs on Start.
	SkipInitial bool
}

// Service fires refresh on an interval until stopped. Overlapping cycles are
// skipped rather than queued.
type Service struct {
	refresh   RefreshFunc
	opts      Options
	startOnce sync.Once
	stopOnce  sync.Once
	stopped   atomic.Bool
	cron      *cron.Cron
	job       cron.Job
	wg        sync.WaitGroup

	// runCtx is handed to every refresh. It is cancelled once Stop has
	// waited for in-flight cycles.
	runCtx    context.Context
	runCancel context.CancelFunc
}

// New creates a scheduler service.
func New(refresh RefreshFunc, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Interval < minInterval {
		opts.Interval = minInterval
	}
	return &Service{refresh: refresh, opts: opts}
}

// Interval returns the effective refresh interval.
func (s *Service) Interval() time.Duration {
	return s.opts.Interval
}

// Start schedules refresh. Unless SkipInitial is set, one cycle runs right
// away in the background.
func (s *Service) Start(parent context.Context) {
	if s == nil || s.refresh == nil {
		return
	}
	s.startOnce.Do(func() {
		s.runCtx, s.runCancel = context.WithCancel(parent)

		logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn))
		s.job = cron.NewChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		).Then(cron.FuncJob(s.fire))

		s.cron = cron.New(cron.WithLogger(logger))
		s.cron.Schedule(cron.Every(s.opts.Interval), s.job)
		s.cron.Start()

		if !s.opts.SkipInitial {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.job.Run()
			}()
		}
		slog.Debug("refresh scheduler started", "interval", s.opts.Interval)
	})
}

// Stop prevents further cycles and waits, bounded by ctx, for an in-flight
// one to finish. A cycle that completes after Stop still applies its result.
func (s *Service) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if s.cron == nil {
			return
		}
		cronDone := s.cron.Stop()
		select {
		case <-cronDone.Done():
		case <-ctx.Done():
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
		s.runCancel()
		slog.Debug("refresh scheduler stopped")
	})
}

func (s *Service) fire() {
	if s.stopped.Load() {
		return
	}
	s.refresh(s.runCtx)
}
