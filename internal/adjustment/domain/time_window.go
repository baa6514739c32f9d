package domain

import (
	"fmt"
	"time"
)

// TimeWindow is a visit slot: a start instant and a length in whole minutes.
type TimeWindow struct {
	Start           time.Time `json:"start" yaml:"start"`
	DurationMinutes int       `json:"duration_minutes" yaml:"duration_minutes"`
}

// NewTimeWindow creates a window and rejects empty or inverted ones.
func NewTimeWindow(start time.Time, minutes int) (TimeWindow, error) {
	w := TimeWindow{Start: start, DurationMinutes: minutes}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

// MustTimeWindow is NewTimeWindow for literals known to be valid.
func MustTimeWindow(start time.Time, minutes int) TimeWindow {
	w, err := NewTimeWindow(start, minutes)
	if err != nil {
		panic(err)
	}
	return w
}

// Validate reports a ValidationError for a missing start or a non-positive duration.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() {
		return NewValidationError("window", "start time is required")
	}
	if w.DurationMinutes <= 0 {
		return NewValidationError("window", fmt.Sprintf("duration must be positive, got %d minutes", w.DurationMinutes))
	}
	return nil
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return time.Duration(w.DurationMinutes) * time.Minute
}

// End returns Start + Duration.
func (w TimeWindow) End() time.Time {
	return w.Start.Add(w.Duration())
}

// Shift returns the same-length window moved by d.
func (w TimeWindow) Shift(d time.Duration) TimeWindow {
	return TimeWindow{Start: w.Start.Add(d), DurationMinutes: w.DurationMinutes}
}

// Equal compares instants, ignoring location.
func (w TimeWindow) Equal(other TimeWindow) bool {
	return w.Start.Equal(other.Start) && w.DurationMinutes == other.DurationMinutes
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%s–%s", w.Start.Format("2006-01-02 15:04"), w.End().Format("15:04"))
}
