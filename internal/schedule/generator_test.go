package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLoc = time.FixedZone("CET", 3600)

// Tuesday 13 October 2026
func tuesday(hour, minute int) time.Time {
	return time.Date(2026, 10, 13, hour, minute, 0, 0, testLoc)
}

func clubTable() Table {
	afternoon := []Window{{Start: "14:00", End: "21:00"}}
	allDay := []Window{{Start: "11:00", End: "21:00"}}
	hours := map[time.Weekday][]Window{
		time.Tuesday:   afternoon,
		time.Wednesday: afternoon,
		time.Thursday:  afternoon,
		time.Friday:    allDay,
		time.Saturday:  allDay,
		time.Sunday:    allDay,
	}
	return Table{
		Resources: []Resource{
			{Name: "Finnische Sauna", Hours: hours},
			{Name: "Kelosauna", Hours: hours},
		},
		SlotDuration: 15 * time.Minute,
		SlotInterval: time.Hour,
		Location:     testLoc,
	}
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, testLoc)

	tests := []struct {
		name string
		date time.Time
	}{
		{"monday midnight", monday},
		{"tuesday afternoon", tuesday(15, 30)},
		{"sunday late", time.Date(2026, 10, 18, 23, 59, 0, 0, testLoc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, monday.Equal(WeekStart(tt.date, testLoc)))
		})
	}

	end := WeekEnd(monday)
	assert.Equal(t, time.Sunday, end.Weekday())
	assert.True(t, end.Add(time.Nanosecond).Equal(monday.AddDate(0, 0, 7)))
}

func TestGenerate(t *testing.T) {
	t.Run("single window at slot duration", func(t *testing.T) {
		table := Table{
			Resources: []Resource{{
				Name:  "Sauna A",
				Hours: map[time.Weekday][]Window{time.Tuesday: {{Start: "14:00", End: "16:00"}}},
			}},
			SlotDuration: 15 * time.Minute,
			Location:     testLoc,
		}
		slots, err := Generate(tuesday(9, 0), table)
		require.NoError(t, err)
		require.Len(t, slots, 8)
		assert.True(t, tuesday(14, 0).Equal(slots[0].Start))
		assert.True(t, tuesday(15, 45).Equal(slots[7].Start))
		assert.True(t, tuesday(16, 0).Equal(slots[7].End))
	})

	t.Run("club week hourly", func(t *testing.T) {
		slots, err := Generate(tuesday(9, 0), clubTable())
		require.NoError(t, err)
		// 3 afternoons x 7 + 3 full days x 10, for two saunas
		assert.Len(t, slots, 2*(3*7+3*10))

		for _, s := range slots {
			assert.NotEqual(t, time.Monday, s.Start.Weekday())
			assert.Equal(t, 15*time.Minute, s.End.Sub(s.Start))
		}
	})

	t.Run("every slot lies inside a window", func(t *testing.T) {
		table := clubTable()
		slots, err := Generate(tuesday(9, 0), table)
		require.NoError(t, err)

		for _, s := range slots {
			res, ok := table.Resource(s.Resource)
			require.True(t, ok)
			inside := false
			for _, w := range res.Hours[s.Start.Weekday()] {
				open, _ := parseTimeOnDate(s.Start, w.Start)
				closeAt, _ := parseTimeOnDate(s.Start, w.End)
				if !s.Start.Before(open) && !s.End.After(closeAt) {
					inside = true
				}
			}
			assert.True(t, inside, "%s %s", s.Resource, s.Start)
		}
	})

	t.Run("deterministic and sorted", func(t *testing.T) {
		a, err := Generate(tuesday(9, 0), clubTable())
		require.NoError(t, err)
		b, err := Generate(time.Date(2026, 10, 17, 20, 0, 0, 0, testLoc), clubTable())
		require.NoError(t, err)
		assert.Equal(t, a, b)

		for i := 1; i < len(a); i++ {
			assert.False(t, a[i].Start.Before(a[i-1].Start))
			if a[i].Start.Equal(a[i-1].Start) {
				assert.Equal(t, "Finnische Sauna", a[i-1].Resource)
				assert.Equal(t, "Kelosauna", a[i].Resource)
			}
		}
	})

	t.Run("trailing partial slot is dropped", func(t *testing.T) {
		table := Table{
			Resources: []Resource{{
				Name:  "Sauna A",
				Hours: map[time.Weekday][]Window{time.Tuesday: {{Start: "14:00", End: "14:40"}}},
			}},
			SlotDuration: 15 * time.Minute,
			Location:     testLoc,
		}
		slots, err := Generate(tuesday(9, 0), table)
		require.NoError(t, err)
		assert.Len(t, slots, 2)
	})

	t.Run("invalid duration", func(t *testing.T) {
		_, err := Generate(tuesday(9, 0), Table{})
		assert.Error(t, err)
	})

	t.Run("closed all week", func(t *testing.T) {
		table := Table{
			Resources:    []Resource{{Name: "Sauna A", Hours: map[time.Weekday][]Window{}}},
			SlotDuration: 15 * time.Minute,
			Location:     testLoc,
		}
		slots, err := Generate(tuesday(9, 0), table)
		require.NoError(t, err)
		assert.NotNil(t, slots)
		assert.Len(t, slots, 0)

		plan, err := BuildWeek(tuesday(9, 0), table, nil, UnmatchedDrop)
		require.NoError(t, err)
		assert.NotNil(t, plan.Days)
		assert.Empty(t, plan.Days)

		data, err := json.Marshal(plan)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"days":[]`)
	})
}

func TestTable_Lookup(t *testing.T) {
	table := clubTable()

	s, ok := table.Lookup("Kelosauna", tuesday(15, 0))
	require.True(t, ok)
	assert.True(t, tuesday(15, 15).Equal(s.End))

	_, ok = table.Lookup("Kelosauna", tuesday(15, 30))
	assert.False(t, ok, "off-grid start")

	_, ok = table.Lookup("Dampfbad", tuesday(15, 0))
	assert.False(t, ok, "unknown sauna")

	_, ok = table.Lookup("Kelosauna", time.Date(2026, 10, 12, 15, 0, 0, 0, testLoc))
	assert.False(t, ok, "closed on monday")
}

func TestTable_Validate(t *testing.T) {
	assert.NoError(t, clubTable().Validate())

	tests := []struct {
		name   string
		mutate func(*Table)
		errMsg string
	}{
		{"no duration", func(tb *Table) { tb.SlotDuration = 0 }, "slot duration"},
		{"empty name", func(tb *Table) { tb.Resources[0].Name = " " }, "resource[0]: name is required"},
		{"duplicate", func(tb *Table) { tb.Resources[1].Name = tb.Resources[0].Name }, "duplicate name"},
		{"bad clock", func(tb *Table) {
			tb.Resources[0].Hours = map[time.Weekday][]Window{time.Friday: {{Start: "11", End: "21:00"}}}
		}, "resource[0].hours.friday[0].start"},
		{"reversed window", func(tb *Table) {
			tb.Resources[0].Hours = map[time.Weekday][]Window{time.Friday: {{Start: "21:00", End: "11:00"}}}
		}, "end must be after start"},
		{"overlap", func(tb *Table) {
			tb.Resources[0].Hours = map[time.Weekday][]Window{time.Friday: {
				{Start: "11:00", End: "15:00"},
				{Start: "14:00", End: "18:00"},
			}}
		}, "windows overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := clubTable()
			table.Resources = append([]Resource(nil), table.Resources...)
			tt.mutate(&table)
			err := table.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("14:30")
	require.NoError(t, err)
	assert.Equal(t, 14*60+30, m)

	m, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 24*60, m)

	for _, bad := range []string{"", "7", "aa:00", "12:60", "24:01", "25:00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
