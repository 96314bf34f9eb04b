package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"saunafreunde/internal/schedule"
)

// SaunaConfig represents a single sauna.
type SaunaConfig struct {
	Name        string                       `yaml:"name"`
	Description string                       `yaml:"description"`
	Hours       map[string][]schedule.Window `yaml:"hours,omitempty"` // weekday name -> windows
}

// SaunasConfig is the root configuration for saunas.yaml.
type SaunasConfig struct {
	Location            string                       `yaml:"location"`
	Timezone            string                       `yaml:"timezone"`
	SlotDurationMinutes int                          `yaml:"slot_duration_minutes"`
	SlotIntervalMinutes int                          `yaml:"slot_interval_minutes"`
	DefaultHours        map[string][]schedule.Window `yaml:"default_hours"`
	Saunas              []SaunaConfig                `yaml:"saunas"`
	Categories          []string                     `yaml:"categories"`
	UnmatchedClaims     string                       `yaml:"unmatched_claims"` // drop | report
	ShortNoticeHours    int                          `yaml:"short_notice_hours"`
	ShareCooldownHours  int                          `yaml:"share_cooldown_hours"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// LoadSaunasConfig loads and validates the sauna table from YAML file.
func LoadSaunasConfig(path string) (*SaunasConfig, error) {
	if path == "" {
		path = "configs/saunas.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read saunas config: %w", err)
	}
	return ParseSaunasConfig(data)
}

// ParseSaunasConfig decodes, defaults and validates saunas.yaml content.
func ParseSaunasConfig(data []byte) (*SaunasConfig, error) {
	var cfg SaunasConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse saunas config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate saunas config: %w", err)
	}

	return &cfg, nil
}

func (c *SaunasConfig) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Europe/Berlin"
	}
	if c.SlotDurationMinutes == 0 {
		c.SlotDurationMinutes = 15
	}
	if c.ShortNoticeHours == 0 {
		c.ShortNoticeHours = 24
	}
	if c.ShareCooldownHours == 0 {
		c.ShareCooldownHours = 24
	}
	for i := range c.Saunas {
		if len(c.Saunas[i].Hours) == 0 {
			c.Saunas[i].Hours = c.DefaultHours
		}
	}
}

// Validate checks the configuration for errors.
func (c *SaunasConfig) Validate() error {
	if len(c.Saunas) == 0 {
		return fmt.Errorf("no saunas defined")
	}
	if c.SlotIntervalMinutes != 0 && c.SlotIntervalMinutes < c.SlotDurationMinutes {
		return fmt.Errorf("slot_interval_minutes must not be shorter than slot_duration_minutes")
	}
	if c.ShortNoticeHours < 0 {
		return fmt.Errorf("short_notice_hours cannot be negative")
	}
	if c.ShareCooldownHours < 0 {
		return fmt.Errorf("share_cooldown_hours cannot be negative")
	}
	for i, s := range c.Saunas {
		for day := range s.Hours {
			if _, ok := weekdays[strings.ToLower(day)]; !ok {
				return fmt.Errorf("sauna[%d].hours: unknown weekday '%s'", i, day)
			}
		}
	}
	if _, err := schedule.ParseUnmatchedPolicy(c.UnmatchedClaims); err != nil {
		return err
	}
	if _, err := schedule.NewCategories(c.Categories); err != nil {
		return err
	}

	table, err := c.Table()
	if err != nil {
		return err
	}
	return table.Validate()
}

// Table converts the configuration into the generator's operating calendar.
func (c *SaunasConfig) Table() (schedule.Table, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return schedule.Table{}, fmt.Errorf("timezone '%s': %w", c.Timezone, err)
	}

	table := schedule.Table{
		SlotDuration: time.Duration(c.SlotDurationMinutes) * time.Minute,
		SlotInterval: time.Duration(c.SlotIntervalMinutes) * time.Minute,
		Location:     loc,
	}
	for _, s := range c.Saunas {
		res := schedule.Resource{Name: s.Name, Hours: make(map[time.Weekday][]schedule.Window)}
		for day, windows := range s.Hours {
			wd, ok := weekdays[strings.ToLower(day)]
			if !ok {
				return schedule.Table{}, fmt.Errorf("%s: unknown weekday '%s'", s.Name, day)
			}
			res.Hours[wd] = windows
		}
		table.Resources = append(table.Resources, res)
	}
	return table, nil
}

// CategorySet returns the configured infusion types.
func (c *SaunasConfig) CategorySet() (*schedule.Categories, error) {
	return schedule.NewCategories(c.Categories)
}

// UnmatchedPolicy returns the configured handling of claims outside the grid.
func (c *SaunasConfig) UnmatchedPolicy() schedule.UnmatchedPolicy {
	p, err := schedule.ParseUnmatchedPolicy(c.UnmatchedClaims)
	if err != nil {
		return schedule.UnmatchedDrop
	}
	return p
}

func (c *SaunasConfig) ShortNoticeWindow() time.Duration {
	return time.Duration(c.ShortNoticeHours) * time.Hour
}

func (c *SaunasConfig) ShareCooldown() time.Duration {
	return time.Duration(c.ShareCooldownHours) * time.Hour
}

// String returns a summary of the configuration.
func (c *SaunasConfig) String() string {
	return fmt.Sprintf("SaunasConfig: %d saunas, %d min slots every %d min (%s)",
		len(c.Saunas), c.SlotDurationMinutes, c.intervalMinutes(), c.Timezone)
}

func (c *SaunasConfig) intervalMinutes() int {
	if c.SlotIntervalMinutes == 0 {
		return c.SlotDurationMinutes
	}
	return c.SlotIntervalMinutes
}
