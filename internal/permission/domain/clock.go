package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	adjustment "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
)

// ClockTime is a time of day in minutes since midnight. 24:00 is allowed as an end bound.
type ClockTime int

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock time %q: want HH:MM", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("clock time %q: %w", s, err)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("clock time %q: %w", s, err)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || hours > 24 || (hours == 24 && minutes != 0) {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return ClockTime(hours*60 + minutes), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Offset returns the clock time as a duration since midnight.
func (c ClockTime) Offset() time.Duration {
	return time.Duration(c) * time.Minute
}

// ClockRange is a daily range of clock times. A range whose end is not after its start wraps past
// midnight, so "22:00-06:00" covers the night.
type ClockRange struct {
	From ClockTime
	To   ClockTime
}

// MustClockRange parses "HH:MM-HH:MM" and panics on error.
func MustClockRange(s string) ClockRange {
	var r ClockRange
	if err := r.UnmarshalText([]byte(s)); err != nil {
		panic(err)
	}
	return r
}

// IsZero reports an unset range.
func (r ClockRange) IsZero() bool {
	return r.From == 0 && r.To == 0
}

// Wraps reports whether the range crosses midnight.
func (r ClockRange) Wraps() bool {
	return r.To <= r.From
}

func (r ClockRange) String() string {
	return r.From.String() + "-" + r.To.String()
}

// MarshalText renders "HH:MM-HH:MM".
func (r ClockRange) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses "HH:MM-HH:MM".
func (r *ClockRange) UnmarshalText(text []byte) error {
	from, to, ok := strings.Cut(string(text), "-")
	if !ok {
		return adjustment.NewValidationError("clock_range", fmt.Sprintf("%q: want HH:MM-HH:MM", text))
	}
	f, err := ParseClockTime(from)
	if err != nil {
		return adjustment.NewValidationError("clock_range", err.Error())
	}
	t, err := ParseClockTime(to)
	if err != nil {
		return adjustment.NewValidationError("clock_range", err.Error())
	}
	if f == 24*60 {
		return adjustment.NewValidationError("clock_range", fmt.Sprintf("%q: range cannot start at 24:00", text))
	}
	r.From, r.To = f, t
	return nil
}

// occurrence returns the absolute interval of the range that starts on the given day.
func (r ClockRange) occurrence(day time.Time) (time.Time, time.Time) {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	start := midnight.Add(r.From.Offset())
	end := midnight.Add(r.To.Offset())
	if r.Wraps() {
		end = end.AddDate(0, 0, 1)
	}
	return start, end
}

// Contains reports whether one occurrence of the range covers the whole window.
func (r ClockRange) Contains(w adjustment.TimeWindow, loc *time.Location) bool {
	start, end := w.Start.In(loc), w.End().In(loc)
	for _, day := range []time.Time{start.AddDate(0, 0, -1), start} {
		from, to := r.occurrence(day)
		if !start.Before(from) && !end.After(to) {
			return true
		}
	}
	return false
}

// Intersects reports whether any occurrence of the range shares time with the window.
func (r ClockRange) Intersects(w adjustment.TimeWindow, loc *time.Location) bool {
	if r.IsZero() {
		return false
	}
	start, end := w.Start.In(loc), w.End().In(loc)
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	for day := first; day.Before(end); day = day.AddDate(0, 0, 1) {
		from, to := r.occurrence(day)
		if from.Before(end) && to.After(start) {
			return true
		}
	}
	return false
}
