package schedule

import (
	"fmt"
	"strings"
	"time"
)

// SlotState is the claim state of a canonical slot.
type SlotState string

const (
	StateOpen    SlotState = "open"
	StateClaimed SlotState = "claimed"
)

// DefaultShortNoticeWindow is how close to the start a cancellation counts as short-notice.
const DefaultShortNoticeWindow = 24 * time.Hour

var transitions = map[SlotState][]SlotState{
	StateOpen:    {StateClaimed},
	StateClaimed: {StateOpen},
}

// CanTransition checks if the slot may move from one state to the other.
func CanTransition(from, to SlotState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Category is an infusion type chosen when claiming.
type Category string

// DefaultCategories are the infusion types offered by the club.
var DefaultCategories = []Category{
	"Fruchtig",
	"Birke",
	"Honig",
	"Salz",
	"Menthol-Kristall",
	"Eis & Minze",
	"Latschenkiefer",
	"Überraschung",
}

// Categories is the configured set of infusion types, in display order.
type Categories struct {
	list []Category
	set  map[Category]struct{}
}

// NewCategories builds a category set. An empty input yields the defaults.
func NewCategories(names []string) (*Categories, error) {
	c := &Categories{set: make(map[Category]struct{})}
	if len(names) == 0 {
		for _, d := range DefaultCategories {
			c.add(d)
		}
		return c, nil
	}
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("category[%d]: name is required", i)
		}
		if c.Contains(n) {
			return nil, fmt.Errorf("category[%d]: duplicate '%s'", i, n)
		}
		c.add(Category(n))
	}
	return c, nil
}

func (c *Categories) add(cat Category) {
	c.list = append(c.list, cat)
	c.set[cat] = struct{}{}
}

// Contains reports whether name is a configured category.
func (c *Categories) Contains(name string) bool {
	_, ok := c.set[Category(name)]
	return ok
}

// List returns the categories in display order.
func (c *Categories) List() []Category {
	out := make([]Category, len(c.list))
	copy(out, c.list)
	return out
}

// Parse returns the category or an error naming the allowed values.
func (c *Categories) Parse(name string) (Category, error) {
	if c.Contains(name) {
		return Category(name), nil
	}
	names := make([]string, len(c.list))
	for i, cat := range c.list {
		names[i] = string(cat)
	}
	return "", fmt.Errorf("unknown category '%s', expected one of: %s", name, strings.Join(names, ", "))
}

// IsShortNotice reports whether a cancellation at now of a slot starting at start
// falls inside the penalty window.
func IsShortNotice(start, now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultShortNoticeWindow
	}
	return start.Sub(now) < window
}
