package imagecache

import (
	"context"
	"log/slog"
	"time"
)

const DefaultJanitorInterval = 10 * time.Minute

// Janitor periodically evicts stale entries from a cache.
type Janitor struct {
	Cache    ImageCache
	Interval time.Duration
	Logger   *slog.Logger
}

func NewJanitor(c ImageCache, interval time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	return &Janitor{
		Cache:    c,
		Interval: interval,
		Logger:   logger.With("system", "imagecache-janitor"),
	}
}

// Run evicts once immediately, then every Interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		j.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	start := time.Now()
	n, err := j.Cache.Evict(ctx)
	evictDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		evictErrors.Inc()
		j.Logger.Error("image cache eviction failed", "err", err)
		return
	}
	evictedEntries.Add(float64(n))
	j.Logger.Debug("image cache eviction", "removed", n)
}
