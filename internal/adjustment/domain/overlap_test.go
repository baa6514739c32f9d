package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/stretchr/testify/assert"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func TestDetectOverlap(t *testing.T) {
	tests := []struct {
		name        string
		a, b        domain.TimeWindow
		buffer      time.Duration
		wantOverlap bool
		wantMinutes int
		wantKind    domain.OverlapKind
	}{
		{
			name:        "a contains b without buffer",
			a:           domain.MustTimeWindow(at(9, 0), 90),
			b:           domain.MustTimeWindow(at(9, 30), 30),
			wantOverlap: true,
			wantMinutes: 30,
			wantKind:    domain.OverlapContains,
		},
		{
			name:        "buffer adds to a contained window",
			a:           domain.MustTimeWindow(at(9, 0), 90),
			b:           domain.MustTimeWindow(at(9, 30), 30),
			buffer:      15 * time.Minute,
			wantOverlap: true,
			wantMinutes: 45,
			wantKind:    domain.OverlapContains,
		},
		{
			name:        "a contained in b",
			a:           domain.MustTimeWindow(at(9, 30), 30),
			b:           domain.MustTimeWindow(at(9, 0), 90),
			wantOverlap: true,
			wantMinutes: 30,
			wantKind:    domain.OverlapContained,
		},
		{
			name:        "a runs into start of b",
			a:           domain.MustTimeWindow(at(9, 0), 60),
			b:           domain.MustTimeWindow(at(9, 45), 60),
			wantOverlap: true,
			wantMinutes: 15,
			wantKind:    domain.OverlapPartialStart,
		},
		{
			name:        "a starts inside b",
			a:           domain.MustTimeWindow(at(9, 45), 60),
			b:           domain.MustTimeWindow(at(9, 0), 60),
			wantOverlap: true,
			wantMinutes: 15,
			wantKind:    domain.OverlapPartialEnd,
		},
		{
			name:        "back to back windows do not overlap",
			a:           domain.MustTimeWindow(at(9, 0), 60),
			b:           domain.MustTimeWindow(at(10, 0), 60),
			wantOverlap: false,
			wantKind:    domain.OverlapNone,
		},
		{
			name:        "buffer bridges a ten minute gap",
			a:           domain.MustTimeWindow(at(9, 0), 60),
			b:           domain.MustTimeWindow(at(10, 10), 60),
			buffer:      15 * time.Minute,
			wantOverlap: true,
			wantMinutes: 5,
			wantKind:    domain.OverlapBuffer,
		},
		{
			name:        "buffer shorter than the gap",
			a:           domain.MustTimeWindow(at(9, 0), 60),
			b:           domain.MustTimeWindow(at(10, 20), 60),
			buffer:      15 * time.Minute,
			wantOverlap: false,
			wantKind:    domain.OverlapNone,
		},
		{
			name:        "zero duration inside another window",
			a:           domain.TimeWindow{Start: at(9, 30)},
			b:           domain.MustTimeWindow(at(9, 0), 60),
			wantOverlap: false,
			wantKind:    domain.OverlapNone,
		},
		{
			name:        "zero duration bridged by buffer",
			a:           domain.TimeWindow{Start: at(9, 30)},
			b:           domain.MustTimeWindow(at(9, 0), 60),
			buffer:      5 * time.Minute,
			wantOverlap: true,
			wantMinutes: 5,
			wantKind:    domain.OverlapContained,
		},
		{
			name:        "sub-minute overlap rounds up",
			a:           domain.MustTimeWindow(at(9, 0), 60),
			b:           domain.TimeWindow{Start: at(9, 59).Add(30 * time.Second), DurationMinutes: 30},
			wantOverlap: true,
			wantMinutes: 1,
			wantKind:    domain.OverlapPartialStart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.DetectOverlap(tt.a, tt.b, tt.buffer)
			assert.Equal(t, tt.wantOverlap, got.Overlaps)
			assert.Equal(t, tt.wantMinutes, got.Minutes)
			assert.Equal(t, tt.wantKind, got.Kind)
		})
	}
}

func TestDetectOverlap_NegativeBufferIsIgnored(t *testing.T) {
	a := domain.MustTimeWindow(at(9, 0), 60)
	b := domain.MustTimeWindow(at(9, 50), 60)
	assert.Equal(t, domain.DetectOverlap(a, b, 0), domain.DetectOverlap(a, b, -time.Hour))
}

func TestTimeWindow(t *testing.T) {
	w, err := domain.NewTimeWindow(at(9, 0), 90)
	assert.NoError(t, err)
	assert.Equal(t, at(10, 30), w.End())
	assert.Equal(t, at(11, 0), w.Shift(2*time.Hour).Start)
	assert.True(t, w.Equal(domain.MustTimeWindow(at(9, 0).In(time.FixedZone("JST", 9*3600)), 90)))

	_, err = domain.NewTimeWindow(at(9, 0), 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = domain.NewTimeWindow(time.Time{}, 30)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
