package rules

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher keeps a Cache fresh independently of dispatch.
type Refresher struct {
	cache    *Cache
	interval time.Duration
	logger   *zap.Logger
}

// NewRefresher creates a refresher that keeps cache fresh every interval.
// A non-positive interval uses the cache's refresh interval. The schedule
// has one-second resolution.
func NewRefresher(cache *Cache, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = cache.RefreshInterval()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Refresher{
		cache:    cache,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes once immediately, then on every tick until ctx is done.
// On return no refresh job is running; a fetch started by a job is left to
// complete on its own.
func (r *Refresher) Run(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(r.logger))
	scheduler := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	scheduler.Schedule(cron.Every(r.interval), cron.FuncJob(func() {
		r.tick(ctx)
	}))

	r.logger.Info("starting routing rules refresher", zap.Duration("interval", r.interval))

	r.tick(ctx)
	scheduler.Start()

	<-ctx.Done()

	// Wait for a running tick to return
	<-scheduler.Stop().Done()

	r.logger.Info("routing rules refresher stopped")
	return nil
}

// tick refreshes when the snapshot is older than half an interval. Ticks
// fire at a fixed rate, so a snapshot fetched on the previous tick is
// slightly younger than a full interval and would otherwise be skipped.
func (r *Refresher) tick(ctx context.Context) {
	if err := r.cache.ensureFresh(ctx, r.interval/2); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("routing rules refresh interrupted", zap.Error(err))
	}
}
