package schedule

import (
	"context"
	"sync"
)

// View keeps the latest resolved week plan. Every fetch takes a generation token;
// only the newest token may store its result, older fetches are cancelled and discarded.
type View struct {
	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current *WeekPlan
}

// Begin starts a new fetch generation and cancels the previous one.
func (v *View) Begin(ctx context.Context) (context.Context, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cancel != nil {
		v.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.gen++
	return fetchCtx, v.gen
}

// Commit stores plan if token belongs to the newest fetch. It returns false for stale results.
func (v *View) Commit(token uint64, plan WeekPlan) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token != v.gen {
		return false
	}
	v.current = &plan
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	return true
}

// Abandon releases the fetch context of token without storing anything.
func (v *View) Abandon(token uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token == v.gen && v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}

// Current returns the stored plan.
func (v *View) Current() (WeekPlan, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.current == nil {
		return WeekPlan{}, false
	}
	return *v.current, true
}

// Generation returns the newest token handed out.
func (v *View) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen
}
