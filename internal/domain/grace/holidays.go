package grace

import "time"

// fixedDate is a recurring month/day holiday
type fixedDate struct {
	month time.Month
	day   int
}

// FixedHolidayCalendar matches recurring month/day holidays regardless of year
type FixedHolidayCalendar struct {
	dates []fixedDate
}

// NewUSHolidayCalendar returns a calendar of the fixed-date US holidays
func NewUSHolidayCalendar() *FixedHolidayCalendar {
	return &FixedHolidayCalendar{
		dates: []fixedDate{
			{time.January, 1},   // New Year's Day
			{time.June, 19},     // Juneteenth
			{time.July, 4},      // Independence Day
			{time.November, 11}, // Veterans Day
			{time.December, 25}, // Christmas Day
		},
	}
}

// IsHoliday implements HolidayCalendar
func (c *FixedHolidayCalendar) IsHoliday(date time.Time) bool {
	for _, d := range c.dates {
		if date.Month() == d.month && date.Day() == d.day {
			return true
		}
	}
	return false
}

// NoHolidays is a calendar on which no date is a holiday
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }
