package disruption

import (
	"github.com/travigo/disruptions/pkg/ctdf"
)

// activityCache memoises an impact's local activity per service day
type activityCache struct {
	impact   *ctdf.Impact
	calendar ctdf.Calendar
	days     map[ctdf.ServiceDay][]ctdf.TimeInterval
}

func newActivityCache(impact *ctdf.Impact, calendar ctdf.Calendar) *activityCache {
	return &activityCache{
		impact:   impact,
		calendar: calendar,
		days:     map[ctdf.ServiceDay][]ctdf.TimeInterval{},
	}
}

func (c *activityCache) on(day ctdf.ServiceDay) []ctdf.TimeInterval {
	if intervals, exists := c.days[day]; exists {
		return intervals
	}
	intervals := c.impact.LocalActivity(c.calendar, day)
	c.days[day] = intervals
	return intervals
}

// overlaps checks the closed span [begin, end], in seconds after midnight of day,
// against the activity of every calendar day the span reaches
func (c *activityCache) overlaps(day ctdf.ServiceDay, begin int, end int) bool {
	firstDay := begin / ctdf.SecondsPerDay
	lastDay := end / ctdf.SecondsPerDay

	for offset := firstDay; offset <= lastDay; offset++ {
		shift := offset * ctdf.SecondsPerDay
		for _, interval := range c.on(day + ctdf.ServiceDay(offset)) {
			if interval.Overlaps(begin-shift, end-shift) {
				return true
			}
		}
	}
	return false
}

// activeDays returns the days the trip runs on, per its base pattern, during which
// the impact overlaps either the whole trip or one of the removed stops
func activeDays(cache *activityCache, patterns *ctdf.ValidityPatternPool, trip *ctdf.Trip, removed []uint32) ctdf.DaySet {
	var active ctdf.DaySet

	for _, day := range patterns.Days(trip.BasePattern).Days() {
		if removed == nil {
			if cache.overlaps(day, trip.FirstDeparture(), trip.LastArrival()) {
				active = active.With(day)
			}
			continue
		}

		for _, stopTime := range trip.StopTimes {
			if !containsOrder(removed, stopTime.Order) {
				continue
			}
			begin, end := stopTime.Window()
			if cache.overlaps(day, begin, end) {
				active = active.With(day)
				break
			}
		}
	}

	return active
}

func containsOrder(orders []uint32, order uint32) bool {
	for _, candidate := range orders {
		if candidate == order {
			return true
		}
	}
	return false
}
