package ctdf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCalendar(t *testing.T) Calendar {
	location, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	// Monday
	return NewCalendar(time.Date(2024, time.March, 25, 0, 0, 0, 0, location), location)
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		value    string
		expected int
		valid    bool
	}{
		{"00:00", 0, true},
		{"08:15", 8*3600 + 15*60, true},
		{"23:59:59", 86399, true},
		{"24:05", 86700, true},
		{"25:10:30", 90630, true},
		{"8", 0, false},
		{"08:61", 0, false},
		{"aa:00", 0, false},
		{"-1:00", 0, false},
		{"01:02:03:04", 0, false},
	}

	for _, test := range tests {
		t.Run(test.value, func(t *testing.T) {
			seconds, err := ParseTimeOfDay(test.value)
			if !test.valid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, seconds)
		})
	}

	assert.Equal(t, "24:05:00", FormatTimeOfDay(86700))
}

func TestCalendarDays(t *testing.T) {
	calendar := testCalendar(t)

	assert.Equal(t, time.Monday, calendar.Weekday(0))
	assert.Equal(t, time.Sunday, calendar.Weekday(6))

	// Clocks go forward on the 31st, midnight is still local midnight
	assert.Equal(t, 0, calendar.Midnight(7).Hour())
	assert.Equal(t, ServiceDay(7), calendar.DayOf(time.Date(2024, time.April, 1, 0, 30, 0, 0, calendar.Location)))
	assert.Equal(t, ServiceDay(6), calendar.DayOf(time.Date(2024, time.March, 31, 22, 59, 0, 0, time.UTC)))
	assert.Equal(t, ServiceDay(7), calendar.DayOf(time.Date(2024, time.March, 31, 23, 30, 0, 0, time.UTC)))
}

func TestExplicitPeriodsActivity(t *testing.T) {
	calendar := testCalendar(t)

	window := ApplicationWindow{Periods: []Period{
		{Start: calendar.Midnight(1).Add(18 * time.Hour), End: calendar.Midnight(3).Add(6 * time.Hour)},
		{Start: calendar.Midnight(5).Add(9 * time.Hour), End: calendar.Midnight(5).Add(10 * time.Hour)},
	}}
	require.NoError(t, window.Validate())

	assert.Empty(t, window.LocalActivity(calendar, 0))
	assert.Equal(t, []TimeInterval{{18 * 3600, SecondsPerDay}}, window.LocalActivity(calendar, 1))
	assert.Equal(t, []TimeInterval{{0, SecondsPerDay}}, window.LocalActivity(calendar, 2))
	assert.Equal(t, []TimeInterval{{0, 6 * 3600}}, window.LocalActivity(calendar, 3))
	assert.Empty(t, window.LocalActivity(calendar, 4))
	assert.Equal(t, []TimeInterval{{9 * 3600, 10 * 3600}}, window.LocalActivity(calendar, 5))
}

func TestPatternActivity(t *testing.T) {
	calendar := testCalendar(t)

	window := ApplicationWindow{Pattern: &RecurringPattern{
		StartDate: time.Date(2024, time.March, 26, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.March, 29, 0, 0, 0, 0, time.UTC),
		// Tuesday to Friday except Thursday
		WeekDays: [7]bool{false, true, true, false, true, false, false},
		TimeSlots: []TimeSlot{
			{Begin: "07:00", End: "09:00"},
			{Begin: "08:30", End: "10:00"},
			{Begin: "22:00", End: "01:00"},
		},
	}}
	require.NoError(t, window.Validate())

	tests := []struct {
		name     string
		day      ServiceDay
		expected []TimeInterval
	}{
		{"monday before the range", 0, nil},
		{"tuesday", 1, []TimeInterval{{7 * 3600, 10 * 3600}, {22 * 3600, SecondsPerDay}}},
		{"wednesday gets tuesday night", 2, []TimeInterval{{0, 3600}, {7 * 3600, 10 * 3600}, {22 * 3600, SecondsPerDay}}},
		{"thursday only gets wednesday night", 3, []TimeInterval{{0, 3600}}},
		{"friday", 4, []TimeInterval{{7 * 3600, 10 * 3600}, {22 * 3600, SecondsPerDay}}},
		{"saturday gets friday night past the range", 5, []TimeInterval{{0, 3600}}},
		{"sunday", 6, nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, window.LocalActivity(calendar, test.day))
		})
	}
}

func TestPatternWithoutSlotsCoversWholeDays(t *testing.T) {
	calendar := testCalendar(t)

	window := ApplicationWindow{Pattern: &RecurringPattern{
		StartDate: time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		WeekDays:  AllWeek,
	}}

	for day := ServiceDay(0); day < 7; day++ {
		assert.Equal(t, []TimeInterval{{0, SecondsPerDay}}, window.LocalActivity(calendar, day))
	}
	assert.Empty(t, window.LocalActivity(calendar, 7))
}

func TestApplicationWindowValidate(t *testing.T) {
	start := time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		window ApplicationWindow
	}{
		{"empty", ApplicationWindow{}},
		{"period start after end", ApplicationWindow{Periods: []Period{{Start: start.Add(time.Hour), End: start}}}},
		{"period end unset", ApplicationWindow{Periods: []Period{{Start: start}}}},
		{"pattern range reversed", ApplicationWindow{Pattern: &RecurringPattern{StartDate: start.AddDate(0, 0, 1), EndDate: start}}},
		{"pattern slot not numeric", ApplicationWindow{Pattern: &RecurringPattern{StartDate: start, EndDate: start, TimeSlots: []TimeSlot{{Begin: "ab:00", End: "10:00"}}}}},
		{"pattern slot past the day", ApplicationWindow{Pattern: &RecurringPattern{StartDate: start, EndDate: start, TimeSlots: []TimeSlot{{Begin: "23:00", End: "25:00"}}}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.ErrorIs(t, test.window.Validate(), ErrInvalidWindow)
		})
	}
}

func TestMergeIntervals(t *testing.T) {
	assert.Equal(t,
		[]TimeInterval{{0, 20}, {30, 50}},
		MergeIntervals([]TimeInterval{{30, 40}, {0, 10}, {10, 20}, {35, 50}}),
	)
	assert.Nil(t, MergeIntervals(nil))
}

func TestTimeIntervalOverlaps(t *testing.T) {
	interval := TimeInterval{Begin: 100, End: 200}

	assert.True(t, interval.Overlaps(150, 150))
	assert.True(t, interval.Overlaps(100, 100))
	assert.True(t, interval.Overlaps(50, 100))
	assert.False(t, interval.Overlaps(200, 200))
	assert.False(t, interval.Overlaps(0, 99))
}
