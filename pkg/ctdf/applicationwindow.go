package ctdf

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidWindow = errors.New("invalid application window")

// TimeInterval is a half-open [Begin, End) range of seconds after local midnight
type TimeInterval struct {
	Begin int `json:"begin" yaml:"begin"`
	End   int `json:"end" yaml:"end"`
}

func (i TimeInterval) Overlaps(begin, end int) bool {
	return i.Begin <= end && i.End > begin
}

type Period struct {
	Start time.Time `json:"start" yaml:"start" groups:"basic"`
	End   time.Time `json:"end" yaml:"end" groups:"basic"`
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && (p.End.IsZero() || t.Before(p.End))
}

// TimeSlot is a daily slot. An End before Begin crosses midnight.
type TimeSlot struct {
	Begin string `json:"begin" yaml:"begin" groups:"basic"`
	End   string `json:"end" yaml:"end" groups:"basic"`
}

func (s TimeSlot) Bounds() (int, int, error) {
	begin, err := ParseTimeOfDay(s.Begin)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimeOfDay(s.End)
	if err != nil {
		return 0, 0, err
	}
	if begin > SecondsPerDay || end > SecondsPerDay {
		return 0, 0, fmt.Errorf("time slot %s-%s outside of a day", s.Begin, s.End)
	}
	return begin, end, nil
}

// RecurringPattern applies its time slots on every day of the date range whose
// weekday is enabled. WeekDays is indexed Monday first.
type RecurringPattern struct {
	StartDate time.Time  `json:"start_date" yaml:"start_date" groups:"basic"`
	EndDate   time.Time  `json:"end_date" yaml:"end_date" groups:"basic"`
	WeekDays  [7]bool    `json:"week_days" yaml:"week_days" groups:"basic"`
	TimeSlots []TimeSlot `json:"time_slots" yaml:"time_slots" groups:"basic"`
}

// ApplicationWindow is either a list of absolute periods or a recurring pattern
type ApplicationWindow struct {
	Periods []Period          `json:"periods,omitempty" yaml:"periods,omitempty" groups:"basic"`
	Pattern *RecurringPattern `json:"pattern,omitempty" yaml:"pattern,omitempty" groups:"basic"`
}

func (w *ApplicationWindow) Validate() error {
	if w.Pattern == nil && len(w.Periods) == 0 {
		return fmt.Errorf("%w: no periods nor pattern", ErrInvalidWindow)
	}

	for _, period := range w.Periods {
		if period.Start.IsZero() || period.End.IsZero() {
			return fmt.Errorf("%w: period bound unset", ErrInvalidWindow)
		}
		if period.Start.After(period.End) {
			return fmt.Errorf("%w: period starts %s after it ends %s", ErrInvalidWindow, period.Start, period.End)
		}
	}

	if w.Pattern != nil {
		if w.Pattern.StartDate.IsZero() || w.Pattern.EndDate.IsZero() {
			return fmt.Errorf("%w: pattern date range unset", ErrInvalidWindow)
		}
		if w.Pattern.StartDate.After(w.Pattern.EndDate) {
			return fmt.Errorf("%w: pattern starts after it ends", ErrInvalidWindow)
		}
		for _, slot := range w.Pattern.TimeSlots {
			if _, _, err := slot.Bounds(); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidWindow, err)
			}
		}
	}

	return nil
}

// LocalActivity returns the local time intervals of day during which the window is in force.
// Slots crossing midnight contribute [begin, 24:00) to the day they start on and
// [00:00, end) to the following day.
func (w *ApplicationWindow) LocalActivity(calendar Calendar, day ServiceDay) []TimeInterval {
	var intervals []TimeInterval

	dayStart := calendar.Midnight(day)
	dayEnd := calendar.Midnight(day + 1)
	for _, period := range w.Periods {
		start := period.Start
		if start.Before(dayStart) {
			start = dayStart
		}
		end := period.End
		if end.After(dayEnd) {
			end = dayEnd
		}
		if start.Before(end) {
			intervals = append(intervals, TimeInterval{
				Begin: int(start.Sub(dayStart).Seconds()),
				End:   int(end.Sub(dayStart).Seconds()),
			})
		}
	}

	if w.Pattern != nil {
		slots := w.Pattern.TimeSlots
		if len(slots) == 0 {
			slots = []TimeSlot{{Begin: "00:00", End: "24:00"}}
		}

		for _, slot := range slots {
			begin, end, err := slot.Bounds()
			if err != nil {
				continue
			}

			if end >= begin {
				if end > begin && w.Pattern.appliesOn(calendar, day) {
					intervals = append(intervals, TimeInterval{Begin: begin, End: end})
				}
				continue
			}

			if w.Pattern.appliesOn(calendar, day) {
				intervals = append(intervals, TimeInterval{Begin: begin, End: SecondsPerDay})
			}
			if end > 0 && w.Pattern.appliesOn(calendar, day-1) {
				intervals = append(intervals, TimeInterval{Begin: 0, End: end})
			}
		}
	}

	return MergeIntervals(intervals)
}

// Bounds is the absolute span covered by the window
func (w *ApplicationWindow) Bounds(calendar Calendar) (time.Time, time.Time) {
	var start, end time.Time
	for _, period := range w.Periods {
		if start.IsZero() || period.Start.Before(start) {
			start = period.Start
		}
		if period.End.After(end) {
			end = period.End
		}
	}
	if w.Pattern != nil {
		location := calendar.location()
		patternStart := time.Date(w.Pattern.StartDate.Year(), w.Pattern.StartDate.Month(), w.Pattern.StartDate.Day(), 0, 0, 0, 0, location)
		patternEnd := time.Date(w.Pattern.EndDate.Year(), w.Pattern.EndDate.Month(), w.Pattern.EndDate.Day()+2, 0, 0, 0, 0, location)
		if start.IsZero() || patternStart.Before(start) {
			start = patternStart
		}
		if patternEnd.After(end) {
			end = patternEnd
		}
	}
	return start, end
}

func (p *RecurringPattern) appliesOn(calendar Calendar, day ServiceDay) bool {
	date := calendar.Midnight(day)
	y, m, d := date.Date()
	current := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	first := time.Date(p.StartDate.Year(), p.StartDate.Month(), p.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(p.EndDate.Year(), p.EndDate.Month(), p.EndDate.Day(), 0, 0, 0, 0, time.UTC)

	if current.Before(first) || current.After(last) {
		return false
	}

	return p.WeekDays[(int(date.Weekday())+6)%7]
}

// MergeIntervals sorts and unions overlapping or touching intervals
func MergeIntervals(intervals []TimeInterval) []TimeInterval {
	if len(intervals) < 2 {
		return intervals
	}

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Begin < intervals[j].Begin
	})

	merged := []TimeInterval{intervals[0]}
	for _, interval := range intervals[1:] {
		last := &merged[len(merged)-1]
		if interval.Begin <= last.End {
			if interval.End > last.End {
				last.End = interval.End
			}
			continue
		}
		merged = append(merged, interval)
	}
	return merged
}

// AllWeek is a convenience mask enabling every weekday
var AllWeek = [7]bool{true, true, true, true, true, true, true}
