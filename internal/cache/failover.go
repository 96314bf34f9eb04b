package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"saunafreunde/internal/models"
)

const recheckInterval = time.Minute

// FailoverCache uses the primary cache until it fails, then serves from the fallback
// and retries the primary once per recheck interval. Invalidations issued while the
// primary is down are replayed against it on recovery.
type FailoverCache struct {
	primary  WeekCache
	fallback WeekCache
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	pending   map[int64]time.Time
}

func NewFailoverCache(primary, fallback WeekCache, logger *zerolog.Logger) *FailoverCache {
	l := logger.With().Str("component", "week_cache").Logger()
	return &FailoverCache{
		primary:  primary,
		fallback: fallback,
		logger:   &l,
		pending:  make(map[int64]time.Time),
	}
}

// usePrimary reports whether the primary should be tried for this call.
func (c *FailoverCache) usePrimary() bool {
	if !c.isDown.Load() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastCheck) < recheckInterval {
		return false
	}
	c.lastCheck = time.Now()
	return true
}

func (c *FailoverCache) markDown(err error) {
	if !c.isDown.Swap(true) {
		c.logger.Warn().Err(err).Msg("Primary week cache unavailable, using in-memory fallback")
	}
	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()
}

// markUp replays pending invalidations. The primary stays down if the replay fails.
func (c *FailoverCache) markUp(ctx context.Context) bool {
	if !c.isDown.Load() {
		return true
	}

	c.mu.Lock()
	pending := make([]time.Time, 0, len(c.pending))
	for _, ws := range c.pending {
		pending = append(pending, ws)
	}
	c.mu.Unlock()

	for _, ws := range pending {
		if err := c.primary.InvalidateWeek(ctx, ws); err != nil {
			c.markDown(err)
			return false
		}
		c.mu.Lock()
		delete(c.pending, ws.Unix())
		c.mu.Unlock()
	}

	if c.isDown.Swap(false) {
		c.logger.Info().Int("replayed", len(pending)).Msg("Primary week cache recovered")
	}
	return true
}

// tryPrimary reports whether the primary should serve this call. A recovering primary
// gets the pending invalidations replayed first.
func (c *FailoverCache) tryPrimary(ctx context.Context) bool {
	if !c.usePrimary() {
		return false
	}
	return c.markUp(ctx)
}

func (c *FailoverCache) GetWeek(ctx context.Context, weekStart time.Time) ([]models.AufgussClaim, bool, error) {
	if c.tryPrimary(ctx) {
		claims, ok, err := c.primary.GetWeek(ctx, weekStart)
		if err == nil {
			return claims, ok, nil
		}
		c.markDown(err)
	}
	return c.fallback.GetWeek(ctx, weekStart)
}

func (c *FailoverCache) WeekVersion(ctx context.Context, weekStart time.Time) (int64, error) {
	if c.tryPrimary(ctx) {
		v, err := c.primary.WeekVersion(ctx, weekStart)
		if err == nil {
			return v, nil
		}
		c.markDown(err)
	}
	return c.fallback.WeekVersion(ctx, weekStart)
}

// SetWeek may check a version read from the other cache. A mismatch then only skips the write.
func (c *FailoverCache) SetWeek(ctx context.Context, weekStart time.Time, version int64, claims []models.AufgussClaim) error {
	if c.tryPrimary(ctx) {
		err := c.primary.SetWeek(ctx, weekStart, version, claims)
		if err == nil || errors.Is(err, ErrWeekChanged) {
			return err
		}
		c.markDown(err)
	}
	return c.fallback.SetWeek(ctx, weekStart, version, claims)
}

// InvalidateWeek always clears the fallback too, since it may have served while the primary was down.
func (c *FailoverCache) InvalidateWeek(ctx context.Context, weekStart time.Time) error {
	_ = c.fallback.InvalidateWeek(ctx, weekStart)

	if c.tryPrimary(ctx) {
		err := c.primary.InvalidateWeek(ctx, weekStart)
		if err == nil {
			return nil
		}
		c.markDown(err)
	}

	c.mu.Lock()
	c.pending[weekStart.Unix()] = weekStart
	c.mu.Unlock()
	return nil
}

// Degraded reports whether the fallback is serving.
func (c *FailoverCache) Degraded() bool {
	return c.isDown.Load()
}
