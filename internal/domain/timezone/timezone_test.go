package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationFor(t *testing.T) {
	loc, err := LocationFor("America/Chicago")
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())

	loc, err = LocationFor("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LocationFor("Not/AZone")
	assert.Error(t, err)
}

func TestLocalMidnightAcrossDSTSpringForward(t *testing.T) {
	chicago, err := LocationFor("America/Chicago")
	require.NoError(t, err)

	// 2026-03-08: clocks jump from 02:00 CST to 03:00 CDT
	beforeShift := time.Date(2026, 3, 8, 1, 30, 0, 0, chicago)
	afterShift := time.Date(2026, 3, 8, 4, 30, 0, 0, chicago)

	mBefore := LocalMidnight(beforeShift, chicago)
	mAfter := LocalMidnight(afterShift, chicago)

	assert.Equal(t, mBefore, mAfter, "one day, one midnight, despite the DST shift")
	assert.Equal(t, 0, mBefore.Hour())
	assert.Equal(t, 8, mBefore.Day())

	// the shifted day is 23 hours long
	next := NextLocalMidnight(beforeShift, chicago)
	assert.Equal(t, 23*time.Hour, next.Sub(mBefore))
}

func TestLocalMidnightAcrossDSTFallBack(t *testing.T) {
	chicago, err := LocationFor("America/Chicago")
	require.NoError(t, err)

	// 2026-11-01: clocks fall back from 02:00 CDT to 01:00 CST
	during := time.Date(2026, 11, 1, 12, 0, 0, 0, chicago)
	midnight := LocalMidnight(during, chicago)
	next := NextLocalMidnight(during, chicago)

	assert.Equal(t, 1, midnight.Day())
	assert.Equal(t, 25*time.Hour, next.Sub(midnight), "fall-back day is 25 hours long")
}

func TestLocalDate(t *testing.T) {
	chicago, err := LocationFor("America/Chicago")
	require.NoError(t, err)

	// 03:00 UTC is still the previous evening in Chicago
	instant := time.Date(2026, 6, 15, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-06-14", LocalDate(instant, chicago))
	assert.Equal(t, "2026-06-15", LocalDate(instant, time.UTC))
}

func TestCalendarDayKeepsTheStoredDate(t *testing.T) {
	chicago, err := LocationFor("America/Chicago")
	require.NoError(t, err)

	// a bare date parses to a UTC midnight; CalendarDay must yield the same
	// date's midnight in the target zone, where In() would regress a day
	date := time.Date(2026, 6, 17, 0, 0, 0, 0, time.UTC)
	local := CalendarDay(date, chicago)

	assert.Equal(t, "2026-06-17", local.Format("2006-01-02"))
	assert.Equal(t, "2026-06-16", LocalDate(date, chicago))
}

func TestWithinMidnightWindow(t *testing.T) {
	chicago, err := LocationFor("America/Chicago")
	require.NoError(t, err)

	midnight := time.Date(2026, 6, 15, 0, 0, 0, 0, chicago)

	assert.True(t, WithinMidnightWindow(midnight, chicago, DefaultMidnightWindow))
	assert.True(t, WithinMidnightWindow(midnight.Add(10*time.Minute), chicago, DefaultMidnightWindow))
	assert.True(t, WithinMidnightWindow(midnight.Add(-10*time.Minute), chicago, DefaultMidnightWindow))
	assert.False(t, WithinMidnightWindow(midnight.Add(20*time.Minute), chicago, DefaultMidnightWindow))
	assert.False(t, WithinMidnightWindow(midnight.Add(12*time.Hour), chicago, DefaultMidnightWindow))
}

func TestAt(t *testing.T) {
	chicago, err := LocationFor("America/Chicago")
	require.NoError(t, err)

	day := time.Date(2026, 6, 15, 0, 0, 0, 0, chicago)

	instant, err := At(day, "08:30", chicago)
	require.NoError(t, err)
	assert.Equal(t, 8, instant.Hour())
	assert.Equal(t, 30, instant.Minute())
	assert.Equal(t, chicago, instant.Location())

	_, err = At(day, "25:00", chicago)
	assert.Error(t, err)
	_, err = At(day, "8am", chicago)
	assert.Error(t, err)
}
