// Package schedule builds the weekly Aufguss plan: canonical slot generation,
// merging persisted claims onto it, and the claim/cancel rules.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Window is an opening window on a single day, "HH:MM" local time, end exclusive.
type Window struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Resource is a sauna with its weekly opening windows.
type Resource struct {
	Name  string
	Hours map[time.Weekday][]Window
}

// Table is the static operating calendar the generator works from.
type Table struct {
	Resources []Resource
	// SlotDuration is the length of one Aufguss.
	SlotDuration time.Duration
	// SlotInterval is the distance between two slot starts. Zero means SlotDuration.
	SlotInterval time.Duration
	Location     *time.Location
}

// Slot is a canonical slot. It is identified by resource and start, never by a stored row.
type Slot struct {
	Resource string    `json:"sauna_name"`
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
}

// Key identifies a slot across generation and storage.
type Key struct {
	Resource string
	Start    int64 // unix seconds
}

// Key returns the matching key of the slot.
func (s Slot) Key() Key {
	return Key{Resource: s.Resource, Start: s.Start.Unix()}
}

// KeyOf builds a key from a resource name and a start time.
func KeyOf(resource string, start time.Time) Key {
	return Key{Resource: resource, Start: start.Unix()}
}

func (t Table) location() *time.Location {
	if t.Location == nil {
		return time.Local
	}
	return t.Location
}

func (t Table) interval() time.Duration {
	if t.SlotInterval <= 0 {
		return t.SlotDuration
	}
	return t.SlotInterval
}

// WeekStart returns Monday 00:00 of the week containing date, in loc.
func WeekStart(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	d := date.In(loc)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return time.Date(d.Year(), d.Month(), d.Day()-offset, 0, 0, 0, 0, loc)
}

// WeekEnd returns the last instant of the week starting at weekStart.
func WeekEnd(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// Generate produces every canonical slot of the week containing date.
// The result depends only on the week and the table.
func Generate(date time.Time, table Table) ([]Slot, error) {
	if table.SlotDuration <= 0 {
		return nil, fmt.Errorf("slot duration must be positive")
	}
	loc := table.location()
	start := WeekStart(date, loc)
	step := table.interval()

	order := make(map[string]int, len(table.Resources))
	for i, r := range table.Resources {
		order[r.Name] = i
	}

	slots := make([]Slot, 0)
	for i := 0; i < 7; i++ {
		day := start.AddDate(0, 0, i)
		for _, res := range table.Resources {
			for _, w := range res.Hours[day.Weekday()] {
				open, err := parseTimeOnDate(day, w.Start)
				if err != nil {
					return nil, fmt.Errorf("%s: parse start time: %w", res.Name, err)
				}
				closeAt, err := parseTimeOnDate(day, w.End)
				if err != nil {
					return nil, fmt.Errorf("%s: parse end time: %w", res.Name, err)
				}
				for cursor := open; !cursor.Add(table.SlotDuration).After(closeAt); cursor = cursor.Add(step) {
					slots = append(slots, Slot{
						Resource: res.Name,
						Start:    cursor,
						End:      cursor.Add(table.SlotDuration),
					})
				}
			}
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return order[slots[i].Resource] < order[slots[j].Resource]
	})
	return slots, nil
}

// Lookup reports whether start is a canonical slot of resource.
func (t Table) Lookup(resource string, start time.Time) (Slot, bool) {
	slots, err := Generate(start, t)
	if err != nil {
		return Slot{}, false
	}
	key := KeyOf(resource, start)
	for _, s := range slots {
		if s.Key() == key {
			return s, true
		}
	}
	return Slot{}, false
}

// Resource returns the resource with the given name.
func (t Table) Resource(name string) (Resource, bool) {
	for _, r := range t.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// Validate checks names, durations and windows of the table.
func (t Table) Validate() error {
	if t.SlotDuration <= 0 {
		return fmt.Errorf("slot duration must be positive")
	}
	if t.SlotInterval < 0 {
		return fmt.Errorf("slot interval cannot be negative")
	}

	names := make(map[string]bool)
	for i, r := range t.Resources {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("resource[%d]: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("resource[%d]: duplicate name '%s'", i, r.Name)
		}
		names[r.Name] = true

		for wd, windows := range r.Hours {
			if err := validateWindows(windows, fmt.Sprintf("resource[%d].hours.%s", i, strings.ToLower(wd.String()))); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateWindows(windows []Window, prefix string) error {
	type span struct{ from, to int }
	spans := make([]span, 0, len(windows))
	for i, w := range windows {
		from, err := ParseClock(w.Start)
		if err != nil {
			return fmt.Errorf("%s[%d].start: %w", prefix, i, err)
		}
		to, err := ParseClock(w.End)
		if err != nil {
			return fmt.Errorf("%s[%d].end: %w", prefix, i, err)
		}
		if to <= from {
			return fmt.Errorf("%s[%d]: end must be after start", prefix, i)
		}
		spans = append(spans, span{from, to})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].from < spans[j].from })
	for i := 1; i < len(spans); i++ {
		if spans[i].from < spans[i-1].to {
			return fmt.Errorf("%s: windows overlap", prefix)
		}
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is allowed as a day end.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format '%s', expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in '%s'", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in '%s'", s)
	}
	if hour < 0 || minute < 0 || minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time '%s' out of range", s)
	}
	return hour*60 + minute, nil
}

func parseTimeOnDate(date time.Time, clock string) (time.Time, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, date.Location()), nil
}
