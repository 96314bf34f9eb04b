package schedule

import (
	"fmt"
	"sort"
	"time"

	"saunafreunde/internal/models"
)

// UnmatchedPolicy decides what happens to claims that match no canonical slot.
type UnmatchedPolicy string

const (
	// UnmatchedDrop omits them from the view. They stay in storage.
	UnmatchedDrop UnmatchedPolicy = "drop"
	// UnmatchedReport lists them next to the plan.
	UnmatchedReport UnmatchedPolicy = "report"
)

// ParseUnmatchedPolicy parses a configured policy name. Empty means drop.
func ParseUnmatchedPolicy(s string) (UnmatchedPolicy, error) {
	switch UnmatchedPolicy(s) {
	case "", UnmatchedDrop:
		return UnmatchedDrop, nil
	case UnmatchedReport:
		return UnmatchedReport, nil
	default:
		return "", fmt.Errorf("unknown unmatched claims policy '%s'", s)
	}
}

// MergedSlot is a canonical slot with its claim, if any.
type MergedSlot struct {
	Slot
	Claim *models.AufgussClaim `json:"claim,omitempty"`
}

// Claimed reports whether the slot carries a claim.
func (m MergedSlot) Claimed() bool {
	return m.Claim != nil
}

// State returns the policy state of the slot.
func (m MergedSlot) State() SlotState {
	if m.Claimed() {
		return StateClaimed
	}
	return StateOpen
}

// Day holds the slots of one local calendar day.
type Day struct {
	Date  string       `json:"date"` // YYYY-MM-DD
	Slots []MergedSlot `json:"slots"`
}

// WeekPlan is the view model of one week.
type WeekPlan struct {
	WeekStart time.Time             `json:"week_start"`
	WeekEnd   time.Time             `json:"week_end"`
	Days      []Day                 `json:"days"`
	Unmatched []models.AufgussClaim `json:"unmatched,omitempty"`
}

// Slots returns all merged slots of the plan in display order.
func (p WeekPlan) Slots() []MergedSlot {
	var out []MergedSlot
	for _, d := range p.Days {
		out = append(out, d.Slots...)
	}
	return out
}

// Merge overlays claims onto canonical slots by exact (resource, start) match.
// merged has one entry per canonical slot, in input order.
// Claims that match no slot, or lose to a lower ID on the same key, are returned as unmatched.
func Merge(canonical []Slot, claims []models.AufgussClaim) (merged []MergedSlot, unmatched []models.AufgussClaim) {
	sorted := make([]models.AufgussClaim, len(claims))
	copy(sorted, claims)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	slotKeys := make(map[Key]struct{}, len(canonical))
	for _, s := range canonical {
		slotKeys[s.Key()] = struct{}{}
	}

	byKey := make(map[Key]*models.AufgussClaim, len(sorted))
	for i := range sorted {
		c := &sorted[i]
		key := KeyOf(c.SaunaName, c.StartTime)
		if _, ok := slotKeys[key]; !ok {
			unmatched = append(unmatched, *c)
			continue
		}
		if _, taken := byKey[key]; taken {
			unmatched = append(unmatched, *c)
			continue
		}
		byKey[key] = c
	}

	merged = make([]MergedSlot, len(canonical))
	for i, s := range canonical {
		merged[i] = MergedSlot{Slot: s}
		if c, ok := byKey[s.Key()]; ok {
			claim := *c
			merged[i].Claim = &claim
		}
	}
	return merged, unmatched
}

// GroupByDay groups merged slots by local calendar day, days ascending,
// slots ascending by start within a day.
func GroupByDay(merged []MergedSlot, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}
	index := make(map[string]int)
	days := make([]Day, 0)
	for _, m := range merged {
		key := m.Start.In(loc).Format("2006-01-02")
		i, ok := index[key]
		if !ok {
			i = len(days)
			index[key] = i
			days = append(days, Day{Date: key})
		}
		days[i].Slots = append(days[i].Slots, m)
	}

	sort.SliceStable(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	for i := range days {
		slots := days[i].Slots
		sort.SliceStable(slots, func(a, b int) bool { return slots[a].Start.Before(slots[b].Start) })
	}
	return days
}

// BuildWeek generates, merges and groups the week containing date.
func BuildWeek(date time.Time, table Table, claims []models.AufgussClaim, policy UnmatchedPolicy) (WeekPlan, error) {
	canonical, err := Generate(date, table)
	if err != nil {
		return WeekPlan{}, err
	}
	merged, unmatched := Merge(canonical, claims)

	start := WeekStart(date, table.location())
	plan := WeekPlan{
		WeekStart: start,
		WeekEnd:   WeekEnd(start),
		Days:      GroupByDay(merged, table.location()),
	}
	if policy == UnmatchedReport {
		plan.Unmatched = unmatched
	}
	return plan, nil
}
