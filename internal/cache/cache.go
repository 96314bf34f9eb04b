// Package cache keeps the claims of a week close to the schedule view.
// Entries are keyed by the week start and dropped whenever a claim of that week changes.
// Every drop bumps the week's version, and a write carries the version read before the
// claims were loaded, so a slow read cannot put back claims that changed meanwhile.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"saunafreunde/internal/models"
)

// ErrWeekChanged is returned by SetWeek when the week was invalidated after the version was read.
var ErrWeekChanged = errors.New("cache: week changed while loading")

// WeekCache stores the claims of one week.
type WeekCache interface {
	// GetWeek reports a miss as ok == false with a nil error.
	GetWeek(ctx context.Context, weekStart time.Time) (claims []models.AufgussClaim, ok bool, err error)
	// WeekVersion must be read before loading the claims that are later passed to SetWeek.
	WeekVersion(ctx context.Context, weekStart time.Time) (int64, error)
	SetWeek(ctx context.Context, weekStart time.Time, version int64, claims []models.AufgussClaim) error
	InvalidateWeek(ctx context.Context, weekStart time.Time) error
}

const keyPrefix = "saunafreunde:week:"

func weekKey(weekStart time.Time) string {
	return fmt.Sprintf("%s%d", keyPrefix, weekStart.Unix())
}

// versionKey has no TTL: an expired counter would restart at zero and accept old writes.
func versionKey(weekStart time.Time) string {
	return weekKey(weekStart) + ":version"
}

// RedisCache is the shared cache used by every server instance.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) GetWeek(ctx context.Context, weekStart time.Time) ([]models.AufgussClaim, bool, error) {
	val, err := c.client.Get(ctx, weekKey(weekStart)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var claims []models.AufgussClaim
	if err := json.Unmarshal(val, &claims); err != nil {
		// a corrupt entry is a miss
		return nil, false, nil
	}
	return claims, true, nil
}

func (c *RedisCache) WeekVersion(ctx context.Context, weekStart time.Time) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(weekStart)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// SetWeek writes under WATCH on the version key, so an invalidation racing the write aborts it.
func (c *RedisCache) SetWeek(ctx context.Context, weekStart time.Time, version int64, claims []models.AufgussClaim) error {
	data, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	vkey := versionKey(weekStart)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return ErrWeekChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, weekKey(weekStart), data, c.ttl)
			return nil
		})
		return err
	}, vkey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrWeekChanged
	}
	return err
}

func (c *RedisCache) InvalidateWeek(ctx context.Context, weekStart time.Time) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(weekStart))
		pipe.Del(ctx, weekKey(weekStart))
		return nil
	})
	return err
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is a process-local cache. It stores encoded copies so callers never share slices.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[int64]memoryEntry
	versions map[int64]int64
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries:  make(map[int64]memoryEntry),
		versions: make(map[int64]int64),
		ttl:      ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) GetWeek(_ context.Context, weekStart time.Time) ([]models.AufgussClaim, bool, error) {
	c.mu.Lock()
	e, ok := c.entries[weekStart.Unix()]
	if ok && !c.now().Before(e.expires) {
		delete(c.entries, weekStart.Unix())
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	var claims []models.AufgussClaim
	if err := json.Unmarshal(e.data, &claims); err != nil {
		return nil, false, err
	}
	return claims, true, nil
}

func (c *MemoryCache) WeekVersion(_ context.Context, weekStart time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[weekStart.Unix()], nil
}

func (c *MemoryCache) SetWeek(_ context.Context, weekStart time.Time, version int64, claims []models.AufgussClaim) error {
	data, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[weekStart.Unix()] != version {
		return ErrWeekChanged
	}
	c.entries[weekStart.Unix()] = memoryEntry{data: data, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) InvalidateWeek(_ context.Context, weekStart time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[weekStart.Unix()]++
	delete(c.entries, weekStart.Unix())
	return nil
}
