package rules

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aescanero/dago-sandbox-router/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshInterval = 5 * time.Second
	defaultFetchTimeout    = 3 * time.Second
	refreshFlight          = "routing-rules"
)

// Source returns the routing keys currently claimed for this worker.
type Source interface {
	FetchRoutingKeys(ctx context.Context) ([]string, error)
}

// Snapshot is one published state of the cache. Snapshots are never
// mutated after publication.
type Snapshot struct {
	// Keys is the active routing key set.
	Keys KeySet

	// FetchedAt is the time of the last successful fetch.
	FetchedAt time.Time

	// Generation counts successful fetches.
	Generation uint64

	// Populated is false until the first successful fetch.
	Populated bool
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	Source Source

	// RefreshInterval is the maximum snapshot age before EnsureFresh fetches (default 5s).
	RefreshInterval time.Duration

	// FetchTimeout bounds a single fetch (default 3s).
	FetchTimeout time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Collector

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Cache holds the active routing keys for this worker.
type Cache struct {
	source       Source
	interval     time.Duration
	fetchTimeout time.Duration
	logger       *zap.Logger
	metrics      *metrics.Collector
	now          func() time.Time

	snapshot atomic.Pointer[Snapshot]

	// attempts counts finished fetches, successful or not. A caller that
	// saw an attempt in progress compares against it to avoid starting a
	// second fetch once that attempt resolves.
	attempts atomic.Uint64
	flight   singleflight.Group
}

// NewCache creates an empty, unpopulated cache.
func NewCache(cfg CacheConfig) *Cache {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	c := &Cache{
		source:       cfg.Source,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		metrics:      cfg.Metrics,
		now:          clock,
	}
	c.snapshot.Store(&Snapshot{Keys: NewKeySet()})

	return c
}

// CurrentKeys returns the latest active key set without blocking.
func (c *Cache) CurrentKeys() KeySet {
	return c.snapshot.Load().Keys
}

// Snapshot returns the latest published snapshot.
func (c *Cache) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// RefreshInterval returns the configured refresh interval.
func (c *Cache) RefreshInterval() time.Duration {
	return c.interval
}

// Stale reports whether the snapshot was never populated or is older than
// the refresh interval.
func (c *Cache) Stale() bool {
	return c.olderThan(c.interval)
}

func (c *Cache) olderThan(maxAge time.Duration) bool {
	s := c.snapshot.Load()
	return !s.Populated || c.now().Sub(s.FetchedAt) > maxAge
}

// EnsureFresh refreshes the snapshot if it is stale. If a refresh is already
// in flight the caller waits for it instead of starting another one.
// Fetch failures are absorbed; the only error returned is ctx.Err() when the
// caller stops waiting. Cancelling ctx never interrupts the fetch itself.
func (c *Cache) EnsureFresh(ctx context.Context) error {
	return c.ensureFresh(ctx, c.interval)
}

// Refresh fetches the rules now, joining any fetch already in flight.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.refresh(ctx, -1)
}

func (c *Cache) ensureFresh(ctx context.Context, maxAge time.Duration) error {
	if !c.olderThan(maxAge) {
		return nil
	}
	return c.refresh(ctx, maxAge)
}

// refresh joins or starts the single flight. A negative maxAge forces a
// fetch unless another attempt completed meanwhile.
func (c *Cache) refresh(ctx context.Context, maxAge time.Duration) error {
	seen := c.attempts.Load()

	ch := c.flight.DoChan(refreshFlight, func() (interface{}, error) {
		// An attempt finished between our check and joining the flight.
		if c.attempts.Load() != seen {
			return nil, nil
		}
		if maxAge >= 0 && !c.olderThan(maxAge) {
			return nil, nil
		}

		c.fetch(context.WithoutCancel(ctx))
		return nil, nil
	})

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetch performs one bounded fetch and publishes the result on success.
// It runs inside the single flight only.
func (c *Cache) fetch(ctx context.Context) {
	defer c.attempts.Add(1)

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	started := c.now()
	keys, err := c.fetchKeys(ctx)
	elapsed := c.now().Sub(started)

	if err != nil {
		prev := c.snapshot.Load()
		c.metrics.ObserveRefresh(metrics.RefreshFailure, elapsed)
		c.logger.Warn("failed to refresh routing rules, keeping previous keys",
			zap.Error(err),
			zap.Uint64("generation", prev.Generation),
			zap.Bool("populated", prev.Populated),
			zap.Time("fetched_at", prev.FetchedAt),
		)
		return
	}

	prev := c.snapshot.Load()
	next := &Snapshot{
		Keys:       NewKeySet(keys...),
		FetchedAt:  c.now(),
		Generation: prev.Generation + 1,
		Populated:  true,
	}
	c.snapshot.Store(next)

	c.metrics.ObserveRefresh(metrics.RefreshSuccess, elapsed)
	c.metrics.SetRulesSnapshot(next.Generation, next.Keys.Len(), next.FetchedAt)

	log := c.logger.Debug
	if !prev.Populated || !prev.Keys.Equal(next.Keys) {
		log = c.logger.Info
	}
	log("routing rules refreshed",
		zap.Strings("routing_keys", next.Keys.Keys()),
		zap.Uint64("generation", next.Generation),
		zap.Duration("duration", elapsed),
	)
}

// fetchKeys calls the source, turning a panic into a failed fetch. Panics
// must not escape the single flight.
func (c *Cache) fetchKeys(ctx context.Context) (keys []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			keys, err = nil, fmt.Errorf("rules source panicked: %v", r)
		}
	}()
	return c.source.FetchRoutingKeys(ctx)
}
