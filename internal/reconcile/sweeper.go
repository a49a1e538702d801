package reconcile

import (
	"context"
	"time"

	"gymcore/internal/logger"
)

// Sweeper runs SweepExpired on a fixed interval until its context is cancelled.
type Sweeper struct {
	reconciler Reconciler
	interval   time.Duration
	now        func() time.Time
}

func NewSweeper(r Reconciler, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Sweeper{reconciler: r, interval: interval, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context) {
	logger.Info("payment sweeper started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("payment sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("payment sweep panicked", "panic", rec)
		}
	}()
	s.reconciler.SweepExpired(ctx, s.now())
}
