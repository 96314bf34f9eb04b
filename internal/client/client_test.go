package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saunafreunde/internal/schedule"
)

func weekServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/schedule", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid date format; expected YYYY-MM-DD"})
			return
		}
		start := schedule.WeekStart(date, time.UTC)
		_ = json.NewEncoder(w).Encode(schedule.WeekPlan{WeekStart: start, WeekEnd: schedule.WeekEnd(start)})
	})
	mux.HandleFunc("POST /api/v1/claims", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "slot already taken"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Week(t *testing.T) {
	var hits atomic.Int32
	srv := weekServer(t, &hits)
	c := New(srv.URL+"/", "")

	plan, err := c.Week(context.Background(), "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), plan.WeekStart.UTC())

	_, err = c.Week(context.Background(), "15.10.2026")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	assert.Contains(t, err.Error(), "expected YYYY-MM-DD")
}

func TestClient_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	var hits atomic.Int32
	srv := weekServer(t, &hits)
	c := New(srv.URL, "tok")
	c.UseRedisCache(rdb, time.Minute)
	ctx := context.Background()

	_, err := c.Week(ctx, "2026-10-15")
	require.NoError(t, err)
	_, err = c.Week(ctx, "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = c.Claim(ctx, "Kelosauna", time.Now().Add(time.Hour), "Birke")
	assert.Equal(t, http.StatusConflict, StatusOf(err))
	// failed claims leave the cache alone
	_, err = c.Week(ctx, "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_Unauthorized(t *testing.T) {
	var hits atomic.Int32
	srv := weekServer(t, &hits)
	c := New(srv.URL, "")

	_, err := c.Claim(context.Background(), "Kelosauna", time.Now(), "Birke")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
	assert.Equal(t, "http 401: Unauthorized", err.Error())
}

type blockingFetcher struct {
	release map[string]chan struct{}
}

func (f *blockingFetcher) Week(ctx context.Context, date string) (schedule.WeekPlan, error) {
	if ch, ok := f.release[date]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return schedule.WeekPlan{}, ctx.Err()
		}
	}
	d, _ := time.Parse("2006-01-02", date)
	return schedule.WeekPlan{WeekStart: schedule.WeekStart(d, time.UTC)}, nil
}

func TestPlanner_LatestWins(t *testing.T) {
	f := &blockingFetcher{release: map[string]chan struct{}{"2026-10-05": make(chan struct{})}}
	p := NewPlanner(f)

	older := make(chan error, 1)
	go func() {
		_, err := p.LoadWeek(context.Background(), "2026-10-05")
		older <- err
	}()
	require.Eventually(t, func() bool { return p.view.Generation() == 1 }, time.Second, time.Millisecond)

	plan, err := p.LoadWeek(context.Background(), "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), plan.WeekStart)

	assert.ErrorIs(t, <-older, ErrStale)

	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, plan.WeekStart, current.WeekStart)
}

func TestPlanner_CallerCancel(t *testing.T) {
	f := &blockingFetcher{release: map[string]chan struct{}{"2026-10-05": make(chan struct{})}}
	p := NewPlanner(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.LoadWeek(ctx, "2026-10-05")
	assert.ErrorIs(t, err, context.Canceled)

	_, ok := p.Current()
	assert.False(t, ok)
}
