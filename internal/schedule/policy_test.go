package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name        string
		from        SlotState
		to          SlotState
		shouldAllow bool
	}{
		{"claim open slot", StateOpen, StateClaimed, true},
		{"cancel claimed slot", StateClaimed, StateOpen, true},
		{"claim claimed slot", StateClaimed, StateClaimed, false},
		{"cancel open slot", StateOpen, StateOpen, false},
		{"unknown state", SlotState("blocked"), StateOpen, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCategories(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := NewCategories(nil)
		require.NoError(t, err)
		assert.Len(t, c.List(), 8)
		assert.True(t, c.Contains("Eis & Minze"))
		assert.True(t, c.Contains("Überraschung"))
		assert.False(t, c.Contains("eis & minze"))
	})

	t.Run("configured", func(t *testing.T) {
		c, err := NewCategories([]string{"Zitrone", "Minze"})
		require.NoError(t, err)
		assert.Equal(t, []Category{"Zitrone", "Minze"}, c.List())

		cat, err := c.Parse("Minze")
		require.NoError(t, err)
		assert.Equal(t, Category("Minze"), cat)

		_, err = c.Parse("Birke")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Zitrone, Minze")
	})

	t.Run("list is a copy", func(t *testing.T) {
		c, err := NewCategories(nil)
		require.NoError(t, err)
		l := c.List()
		l[0] = "Kaputt"
		assert.Equal(t, Category("Fruchtig"), c.List()[0])
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NewCategories([]string{"Birke", "Birke"})
		assert.Error(t, err)
		_, err = NewCategories([]string{"Birke", " "})
		assert.Error(t, err)
	})
}

func TestIsShortNotice(t *testing.T) {
	now := tuesday(12, 0)
	tests := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{"two days ahead", now.Add(48 * time.Hour), false},
		{"exactly one day ahead", now.Add(24 * time.Hour), false},
		{"just inside the window", now.Add(24*time.Hour - time.Minute), true},
		{"in one hour", now.Add(time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsShortNotice(tt.start, now, DefaultShortNoticeWindow))
		})
	}

	assert.True(t, IsShortNotice(now.Add(2*time.Hour), now, 0), "zero window falls back to default")
	assert.False(t, IsShortNotice(now.Add(2*time.Hour), now, time.Hour))
}
