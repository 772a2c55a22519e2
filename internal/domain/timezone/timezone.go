package timezone

import (
	"fmt"
	"time"
)

// DefaultMidnightWindow bounds the per-patient daily housekeeping trigger
const DefaultMidnightWindow = 15 * time.Minute

// LocationFor resolves an IANA zone name, falling back to UTC for an empty
// name
func LocationFor(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// LocalMidnight returns the start of the calendar day containing t in loc.
// Built from date components rather than duration arithmetic so DST
// transitions still yield a single well-defined midnight.
func LocalMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// NextLocalMidnight returns the start of the day after the one containing t
func NextLocalMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// CalendarDay reinterprets a stored calendar date (a bare YYYY-MM-DD parsed
// as UTC midnight) as midnight of that same date in loc. Converting the
// instant with In() instead would land on the previous day for zones west of
// UTC.
func CalendarDay(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}

// LocalDate returns the calendar date string (YYYY-MM-DD) for t in loc
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// WithinMidnightWindow reports whether now falls inside ±window of the
// nearest local midnight. Used to gate per-patient daily housekeeping.
func WithinMidnightWindow(now time.Time, loc *time.Location, window time.Duration) bool {
	if window <= 0 {
		window = DefaultMidnightWindow
	}
	todayMidnight := LocalMidnight(now, loc)
	nextMidnight := NextLocalMidnight(now, loc)

	sinceToday := now.Sub(todayMidnight)
	untilNext := nextMidnight.Sub(now)

	return sinceToday <= window || untilNext <= window
}

// At combines a calendar day in loc with an HH:MM time-of-day string into a
// concrete instant. The day's own offset applies, so times around a DST
// shift resolve the way a wall clock in that zone would.
func At(day time.Time, timeOfDay string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q: %w", timeOfDay, err)
	}
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
