package models

import (
	"time"

	"github.com/pkg/errors"
)

// DateKeyLayout is the calendar day format used for batches and snapshots.
const DateKeyLayout = "2006-01-02"

// DateKey returns the calendar day of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateKeyLayout)
}

// DayBounds returns the first and last millisecond of the day named by dateKey in loc.
func DayBounds(dateKey string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(DateKeyLayout, dateKey, loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(err, "parse date key %q", dateKey)
	}
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end, nil
}

// ShiftDateKey moves dateKey by days calendar days.
func ShiftDateKey(dateKey string, days int) (string, error) {
	d, err := time.Parse(DateKeyLayout, dateKey)
	if err != nil {
		return "", errors.Wrapf(err, "parse date key %q", dateKey)
	}
	return d.AddDate(0, 0, days).Format(DateKeyLayout), nil
}
