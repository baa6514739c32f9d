package domain

import (
	"context"
	"time"
)

// ProfileProvider returns the profile of a tier.
type ProfileProvider interface {
	Profile(tier Tier) (PermissionProfile, error)
}

// UsageCounter counts adjustments per user and local day. Counts are never negative.
type UsageCounter interface {
	DailyCount(ctx context.Context, userID string, day time.Time) (int, error)
	Increment(ctx context.Context, userID string, day time.Time) (int, error)
}

// HolidayCalendar answers whether a date is a public holiday.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// NoHolidays is a calendar without holidays.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }

// StaticProfiles serves profiles from a map.
type StaticProfiles map[Tier]PermissionProfile

// Profile implements ProfileProvider.
func (s StaticProfiles) Profile(tier Tier) (PermissionProfile, error) {
	p, ok := s[tier]
	if !ok {
		return PermissionProfile{}, ErrProfileNotFound
	}
	return p, nil
}
