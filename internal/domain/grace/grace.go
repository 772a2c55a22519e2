package grace

import (
	"strings"
	"time"
)

// Tier classifies a medication by how critical timing is
type Tier string

const (
	TierCritical Tier = "critical"
	TierStandard Tier = "standard"
	TierVitamin  Tier = "vitamin"
	TierPRN      Tier = "prn"
)

// IsValid reports whether the tier is one of the known values
func (t Tier) IsValid() bool {
	switch t {
	case TierCritical, TierStandard, TierVitamin, TierPRN:
		return true
	}
	return false
}

// Base tolerance in minutes per tier
const (
	criticalToleranceMinutes = 15
	standardToleranceMinutes = 30
	vitaminToleranceMinutes  = 120
)

// Multipliers applied to the base tolerance for the occurrence's local date.
// When a date is both a weekend and a holiday the holiday multiplier wins;
// multipliers never stack.
const (
	weekendMultiplier = 1.5
	holidayMultiplier = 2.0
)

var criticalKeywords = []string{
	"insulin", "warfarin", "digoxin", "lithium", "methotrexate",
	"tacrolimus", "cyclosporine", "levothyroxine", "phenytoin",
	"carbamazepine", "clozapine", "heparin",
}

var vitaminKeywords = []string{
	"vitamin", "multivitamin", "supplement", "fish oil", "omega",
	"calcium", "magnesium", "zinc", "probiotic", "biotin", "folate",
	"folic acid", "iron",
}

var prnKeywords = []string{
	"as needed", "prn",
}

// Classify assigns a tier from the medication's free-text name. Unmatched
// names fall into the standard tier.
func Classify(medicationName string) Tier {
	name := strings.ToLower(medicationName)

	for _, kw := range prnKeywords {
		if strings.Contains(name, kw) {
			return TierPRN
		}
	}
	for _, kw := range criticalKeywords {
		if strings.Contains(name, kw) {
			return TierCritical
		}
	}
	for _, kw := range vitaminKeywords {
		if strings.Contains(name, kw) {
			return TierVitamin
		}
	}
	return TierStandard
}

// BaseTolerance returns the tier's tolerance before date multipliers
func BaseTolerance(tier Tier) time.Duration {
	switch tier {
	case TierCritical:
		return criticalToleranceMinutes * time.Minute
	case TierVitamin:
		return vitaminToleranceMinutes * time.Minute
	case TierPRN:
		return 0
	default:
		return standardToleranceMinutes * time.Minute
	}
}

// HolidayCalendar answers whether a local calendar date is a holiday
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// EffectiveTolerance computes the tolerance window for an occurrence on the
// given local date. Fractional results round down to whole minutes.
func EffectiveTolerance(tier Tier, localDate time.Time, cal HolidayCalendar) time.Duration {
	base := BaseTolerance(tier)
	if base == 0 {
		return 0
	}

	multiplier := 1.0
	if cal != nil && cal.IsHoliday(localDate) {
		multiplier = holidayMultiplier
	} else if isWeekend(localDate) {
		multiplier = weekendMultiplier
	}

	minutes := int(float64(base/time.Minute) * multiplier)
	return time.Duration(minutes) * time.Minute
}

// PeriodEnd returns the instant at which an occurrence's grace window closes
func PeriodEnd(tier Tier, scheduledFor time.Time, loc *time.Location, cal HolidayCalendar) time.Time {
	return scheduledFor.Add(EffectiveTolerance(tier, scheduledFor.In(loc), cal))
}

func isWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
