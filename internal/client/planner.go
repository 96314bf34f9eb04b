package client

import (
	"context"
	"errors"

	"saunafreunde/internal/schedule"
)

// ErrStale is returned by LoadWeek when a newer load replaced it.
var ErrStale = errors.New("week load superseded")

// WeekFetcher loads a week plan for a date (YYYY-MM-DD).
type WeekFetcher interface {
	Week(ctx context.Context, date string) (schedule.WeekPlan, error)
}

// Planner shows one week at a time. When the displayed week changes quickly,
// only the newest load ends up in Current.
type Planner struct {
	fetcher WeekFetcher
	view    schedule.View
}

// NewPlanner creates a planner on top of fetcher.
func NewPlanner(fetcher WeekFetcher) *Planner {
	return &Planner{fetcher: fetcher}
}

// LoadWeek fetches the week of date and makes it current unless a newer load started meanwhile.
func (p *Planner) LoadWeek(ctx context.Context, date string) (schedule.WeekPlan, error) {
	fetchCtx, token := p.view.Begin(ctx)

	plan, err := p.fetcher.Week(fetchCtx, date)
	if err != nil {
		p.view.Abandon(token)
		if fetchCtx.Err() != nil && ctx.Err() == nil {
			return schedule.WeekPlan{}, ErrStale
		}
		return schedule.WeekPlan{}, err
	}
	if !p.view.Commit(token, plan) {
		return schedule.WeekPlan{}, ErrStale
	}
	return plan, nil
}

// Current returns the newest loaded plan.
func (p *Planner) Current() (schedule.WeekPlan, bool) {
	return p.view.Current()
}
