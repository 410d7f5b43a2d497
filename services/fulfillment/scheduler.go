package fulfillment

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type tickFunc func(ctx context.Context) (int, error)

// Scheduler runs the pending loop and the poll loop side by side. Each loop runs
// one tick right away, then one per interval; a slow tick delays the next one
// instead of overlapping it.
type Scheduler struct {
	driver   *Driver
	poller   *Poller
	settings func() Settings

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(driver *Driver, poller *Poller, settings func() Settings) *Scheduler {
	return &Scheduler{driver: driver, poller: poller, settings: settings}
}

// StartScheduler ties the loops to the fx lifecycle.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: s.Stop,
	})
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zap.L().Error("[Scheduler] stopped with error", zap.Error(err))
		}
	}()
}

// Stop cancels both loops and waits for the ticks in flight, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		zap.L().Info("[Scheduler] stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	st := s.settings()
	zap.L().Info("[Scheduler] started",
		zap.Duration("pending_interval", st.PendingInterval),
		zap.Duration("poll_interval", st.PollInterval),
		zap.Int("claim_batch_size", st.ClaimBatchSize),
		zap.Int("sent_batch_size", st.SentBatchSize),
		zap.Duration("lock_timeout", st.LockTimeout),
		zap.Bool("dry_run", st.DryRun),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.loop(ctx, "pending", func(st Settings) time.Duration { return st.PendingInterval }, s.driver.ProcessPending)
		return nil
	})
	g.Go(func() error {
		s.loop(ctx, "poll", func(st Settings) time.Duration { return st.PollInterval }, s.poller.PollSent)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval func(Settings) time.Duration, tick tickFunc) {
	every := interval(s.settings())
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		s.runTick(ctx, name, tick)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if next := interval(s.settings()); next > 0 && next != every {
			zap.L().Info("[Scheduler] interval changed", zap.String("loop", name), zap.Duration("interval", next))
			every = next
			ticker.Reset(every)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context, name string, tick tickFunc) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("[Scheduler] tick panicked", zap.String("loop", name), zap.Any("panic", r), zap.Stack("stack"))
		}
		tickDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	n, err := tick(ctx)
	if err != nil {
		if ctx.Err() == nil {
			zap.L().Error("[Scheduler] tick failed", zap.String("loop", name), zap.Int("processed", n), zap.Error(err))
		}
		return
	}
	if n > 0 {
		zap.L().Info("[Scheduler] tick done", zap.String("loop", name), zap.Int("processed", n), zap.Duration("took", time.Since(start)))
	}
}
