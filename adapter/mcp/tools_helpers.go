package mcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// parseDate reads a YYYY-MM-DD day in loc; an empty value yields fallback.
func parseDate(value string, fallback time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not YYYY-MM-DD", value)
	}
	return day, nil
}

func parseUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, errors.New("case_id is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("case_id %q is not a UUID", value)
	}
	return id, nil
}
