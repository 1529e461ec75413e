package ctdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const SecondsPerDay = 24 * 60 * 60

// Calendar maps service days onto local dates
type Calendar struct {
	Beginning time.Time
	Location  *time.Location
}

func NewCalendar(beginning time.Time, location *time.Location) Calendar {
	if location == nil {
		location = time.UTC
	}
	return Calendar{
		Beginning: time.Date(beginning.Year(), beginning.Month(), beginning.Day(), 0, 0, 0, 0, location),
		Location:  location,
	}
}

// Midnight is local 00:00 of the given service day
func (c Calendar) Midnight(day ServiceDay) time.Time {
	return time.Date(c.Beginning.Year(), c.Beginning.Month(), c.Beginning.Day()+int(day), 0, 0, 0, 0, c.location())
}

func (c Calendar) Date(day ServiceDay) time.Time {
	return c.Midnight(day)
}

// DayOf returns the service day whose local date contains t
func (c Calendar) DayOf(t time.Time) ServiceDay {
	local := t.In(c.location())
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	origin := time.Date(c.Beginning.Year(), c.Beginning.Month(), c.Beginning.Day(), 0, 0, 0, 0, time.UTC)
	return ServiceDay(date.Sub(origin).Hours() / 24)
}

func (c Calendar) Weekday(day ServiceDay) time.Weekday {
	return c.Midnight(day).Weekday()
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// ParseTimeOfDay reads HH:MM or HH:MM:SS into seconds after midnight.
// Hours past 24 are accepted as GTFS allows them for trips running after midnight.
func ParseTimeOfDay(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}

	var fields [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time of day %q", value)
		}
		fields[i] = n
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}

	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}

func FormatTimeOfDay(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}
