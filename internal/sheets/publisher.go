// Package sheets mirrors the weekly Aufguss plan into the club's Google spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"saunafreunde/internal/events"
	"saunafreunde/internal/schedule"
)

// Header is the first row of every week tab.
var Header = []interface{}{"Tag", "Uhrzeit", "Sauna", "Aufguss", "Aufgießer"}

var weekdayShort = [...]string{"So", "Mo", "Di", "Mi", "Do", "Fr", "Sa"}

// Spreadsheet writes whole tabs.
type Spreadsheet interface {
	EnsureTab(ctx context.Context, title string) error
	ReplaceValues(ctx context.Context, title string, rows [][]interface{}) error
}

// WeekSource returns the merged plan of the week containing date.
type WeekSource interface {
	Week(ctx context.Context, date time.Time) (schedule.WeekPlan, error)
}

// Publisher rewrites a week tab whenever a claim of that week changes.
type Publisher struct {
	sheet    Spreadsheet
	weeks    WeekSource
	location *time.Location
	timeout  time.Duration
	logger   zerolog.Logger
	mu       sync.Mutex
}

func NewPublisher(sheet Spreadsheet, weeks WeekSource, loc *time.Location, timeout time.Duration, logger *zerolog.Logger) *Publisher {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Publisher{
		sheet:    sheet,
		weeks:    weeks,
		location: loc,
		timeout:  timeout,
		logger:   logger.With().Str("component", "sheets").Logger(),
	}
}

// TabTitle names the tab of the ISO week that contains weekStart, e.g. "KW42 2026".
func TabTitle(weekStart time.Time) string {
	year, week := weekStart.ISOWeek()
	return fmt.Sprintf("KW%d %d", week, year)
}

// Rows renders the plan below the header. Open slots keep empty Aufguss and Aufgießer cells.
func Rows(plan schedule.WeekPlan, loc *time.Location) [][]interface{} {
	rows := [][]interface{}{Header}
	for _, slot := range plan.Slots() {
		start := slot.Start.In(loc)
		day := fmt.Sprintf("%s %s", weekdayShort[start.Weekday()], start.Format("02.01."))

		var kind, host string
		if c := slot.Claim; c != nil {
			kind = c.AufgussType
			host = c.ClaimedBy
			if c.Profile != nil && c.Profile.Name != "" {
				host = c.Profile.Name
			}
		}
		rows = append(rows, []interface{}{day, start.Format("15:04"), slot.Resource, kind, host})
	}
	return rows
}

// Publish rewrites the tab of the week containing date.
func (p *Publisher) Publish(ctx context.Context, date time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	plan, err := p.weeks.Week(ctx, date)
	if err != nil {
		return fmt.Errorf("load week: %w", err)
	}

	title := TabTitle(plan.WeekStart.In(p.location))
	if err := p.sheet.EnsureTab(ctx, title); err != nil {
		return fmt.Errorf("ensure tab %q: %w", title, err)
	}
	if err := p.sheet.ReplaceValues(ctx, title, Rows(plan, p.location)); err != nil {
		return fmt.Errorf("write tab %q: %w", title, err)
	}

	p.logger.Debug().Str("tab", title).Int("slots", len(plan.Slots())).Msg("Week plan published")
	return nil
}

// HandleEvent republishes the week of a created or cancelled claim.
func (p *Publisher) HandleEvent(e events.Event) error {
	var payload events.ClaimPayload
	if err := e.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	date := payload.WeekStart
	if date.IsZero() {
		date = payload.Claim.StartTime
	}
	if err := p.Publish(context.Background(), date); err != nil {
		p.logger.Error().Err(err).Str("event", e.Type).Msg("Sheet update failed")
		return err
	}
	return nil
}
