package grace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want Tier
	}{
		{"Insulin Glargine 100u/mL", TierCritical},
		{"Warfarin 5mg", TierCritical},
		{"Levothyroxine 50mcg", TierCritical},
		{"Vitamin D3 2000IU", TierVitamin},
		{"Fish Oil Capsules", TierVitamin},
		{"Ibuprofen 200mg as needed", TierPRN},
		{"Lisinopril 10mg", TierStandard},
		{"Metformin 500mg", TierStandard},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.name), "medication %q", tt.name)
	}
}

func TestBaseTolerance(t *testing.T) {
	assert.Equal(t, 15*time.Minute, BaseTolerance(TierCritical))
	assert.Equal(t, 30*time.Minute, BaseTolerance(TierStandard))
	assert.Equal(t, 120*time.Minute, BaseTolerance(TierVitamin))
	assert.Equal(t, time.Duration(0), BaseTolerance(TierPRN))
}

func TestEffectiveToleranceWeekday(t *testing.T) {
	// 2026-06-17 is a Wednesday
	weekday := time.Date(2026, 6, 17, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, 15*time.Minute, EffectiveTolerance(TierCritical, weekday, NoHolidays{}))
	assert.Equal(t, 30*time.Minute, EffectiveTolerance(TierStandard, weekday, NoHolidays{}))
}

func TestEffectiveToleranceWeekendRoundsDown(t *testing.T) {
	// 2026-06-20 is a Saturday; 15 * 1.5 = 22.5 rounds down to 22
	saturday := time.Date(2026, 6, 20, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, 22*time.Minute, EffectiveTolerance(TierCritical, saturday, NoHolidays{}))
	assert.Equal(t, 45*time.Minute, EffectiveTolerance(TierStandard, saturday, NoHolidays{}))
	assert.Equal(t, 180*time.Minute, EffectiveTolerance(TierVitamin, saturday, NoHolidays{}))
}

func TestEffectiveToleranceHoliday(t *testing.T) {
	cal := NewUSHolidayCalendar()

	// 2026-12-25 is a Friday
	christmas := time.Date(2026, 12, 25, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Minute, EffectiveTolerance(TierCritical, christmas, cal))
}

func TestEffectiveToleranceHolidayOnWeekendUsesHolidayMultiplier(t *testing.T) {
	cal := NewUSHolidayCalendar()

	// 2026-07-04 is a Saturday: holiday x2.0 wins over weekend x1.5,
	// multipliers never stack
	july4 := time.Date(2026, 7, 4, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Minute, EffectiveTolerance(TierCritical, july4, cal))
	assert.Equal(t, 60*time.Minute, EffectiveTolerance(TierStandard, july4, cal))
}

func TestEffectiveTolerancePRNAlwaysZero(t *testing.T) {
	cal := NewUSHolidayCalendar()
	july4 := time.Date(2026, 7, 4, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), EffectiveTolerance(TierPRN, july4, cal))
}

func TestPeriodEnd(t *testing.T) {
	chicago, _ := time.LoadLocation("America/Chicago")

	// 13:00 UTC on a Wednesday is 08:00 in Chicago
	scheduledFor := time.Date(2026, 6, 17, 13, 0, 0, 0, time.UTC)
	end := PeriodEnd(TierCritical, scheduledFor, chicago, NoHolidays{})
	assert.Equal(t, scheduledFor.Add(15*time.Minute), end)

	// late Friday evening UTC is already Saturday in UTC but still Friday
	// in Chicago; the local date decides the multiplier
	fridayEveningUTC := time.Date(2026, 6, 20, 2, 0, 0, 0, time.UTC) // Fri 21:00 Chicago
	end = PeriodEnd(TierCritical, fridayEveningUTC, chicago, NoHolidays{})
	assert.Equal(t, fridayEveningUTC.Add(15*time.Minute), end)
}
