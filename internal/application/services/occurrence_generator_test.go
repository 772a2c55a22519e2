package services

import (
	"context"
	"testing"
	"time"

	"dosewise/internal/domain/aggregate"
	"dosewise/internal/domain/event"
	"dosewise/internal/domain/grace"
	"dosewise/internal/infrastructure/bus"
	"dosewise/internal/infrastructure/eventstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCommand(t *testing.T, factory *eventstore.MemoryUnitOfWorkFactory, schedule aggregate.Schedule) *aggregate.MedicationCommand {
	t.Helper()
	cmd, err := aggregate.NewMedicationCommand(
		"patient-1",
		aggregate.MedicationInfo{Name: "Lisinopril", Dosage: "10mg"},
		schedule,
		aggregate.ReminderConfig{Enabled: true},
		"dr-lee",
	)
	require.NoError(t, err)
	require.NoError(t, factory.CommandRepo.Save(context.Background(), cmd))
	return cmd
}

func newGenerator(factory *eventstore.MemoryUnitOfWorkFactory, horizonDays int) *OccurrenceGenerator {
	return NewOccurrenceGenerator(factory, bus.NewInMemoryEventBus(), grace.NoHolidays{}, horizonDays, time.Hour)
}

func TestGenerateDailyOnePerDay(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	seedCommand(t, factory, aggregate.Schedule{
		Frequency:    aggregate.FrequencyDaily,
		Times:        []string{"08:00"},
		StartDate:    now,
		IsIndefinite: true,
		Timezone:     "UTC",
	})

	result, err := newGenerator(factory, 30).Generate(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 30, result.EventsGenerated, "exactly one per day across the horizon")
	assert.Empty(t, result.Errors)
}

func TestGenerateRerunIsIdempotent(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	seedCommand(t, factory, aggregate.Schedule{
		Frequency:    aggregate.FrequencyDaily,
		Times:        []string{"08:00"},
		StartDate:    now,
		IsIndefinite: true,
		Timezone:     "UTC",
	})

	gen := newGenerator(factory, 30)
	first, err := gen.Generate(context.Background(), now, false)
	require.NoError(t, err)
	require.Equal(t, 30, first.EventsGenerated)

	second, err := gen.Generate(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.EventsGenerated, "overlapping rerun creates nothing")
}

func TestGenerateSkipsPastTimesOnFirstDay(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	// 09:00 on day one: the 08:00 dose is already past, 20:00 is not
	now := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)

	cmd := seedCommand(t, factory, aggregate.Schedule{
		Frequency:    aggregate.FrequencyTwiceDaily,
		Times:        []string{"08:00", "20:00"},
		StartDate:    now,
		IsIndefinite: true,
		Timezone:     "UTC",
	})

	result, err := newGenerator(factory, 2).Generate(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.EventsGenerated, "today 20:00 plus both tomorrow")

	todayEight := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)
	exists, err := factory.Log.HasScheduled(context.Background(), cmd.ID(), todayEight)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGenerateRespectsEndDate(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 17, 0, 0, 0, 0, time.UTC)

	seedCommand(t, factory, aggregate.Schedule{
		Frequency: aggregate.FrequencyDaily,
		Times:     []string{"08:00"},
		StartDate: now,
		EndDate:   &end,
		Timezone:  "UTC",
	})

	result, err := newGenerator(factory, 30).Generate(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.EventsGenerated, "doses on the end date itself are still due")
}

func TestGenerateWeeklyDayOfWeekMembership(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	// 2026-06-15 is a Monday
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	seedCommand(t, factory, aggregate.Schedule{
		Frequency:    aggregate.FrequencyWeekly,
		Times:        []string{"08:00"},
		DaysOfWeek:   []time.Weekday{time.Monday, time.Thursday},
		StartDate:    now,
		IsIndefinite: true,
		Timezone:     "UTC",
	})

	result, err := newGenerator(factory, 14).Generate(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, 4, result.EventsGenerated, "two Mondays and two Thursdays")
}

func TestGenerateMonthlyDayOfMonth(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	seedCommand(t, factory, aggregate.Schedule{
		Frequency:    aggregate.FrequencyMonthly,
		Times:        []string{"08:00"},
		DayOfMonth:   15,
		StartDate:    now,
		IsIndefinite: true,
		Timezone:     "UTC",
	})

	result, err := newGenerator(factory, 30).Generate(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsGenerated, "only the 15th falls inside the horizon")
}

func TestGenerateSchedulesInPatientLocalTime(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	cmd := seedCommand(t, factory, aggregate.Schedule{
		Frequency:    aggregate.FrequencyDaily,
		Times:        []string{"08:00"},
		StartDate:    now,
		IsIndefinite: true,
		Timezone:     "America/Chicago",
	})

	result, err := newGenerator(factory, 2).Generate(context.Background(), now, false)
	require.NoError(t, err)
	require.NotZero(t, result.EventsGenerated)

	// 08:00 CDT is 13:00 UTC
	events, err := factory.Log.ByCommandSince(context.Background(), cmd.ID(), time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, 13, events[0].Timing.ScheduledFor.UTC().Hour())
}

func TestGenerateEndDateInclusiveInWesternZone(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	// stored calendar dates are bare YYYY-MM-DD values, i.e. UTC midnights
	start := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 17, 0, 0, 0, 0, time.UTC)

	cmd := seedCommand(t, factory, aggregate.Schedule{
		Frequency: aggregate.FrequencyDaily,
		Times:     []string{"08:00"},
		StartDate: start,
		EndDate:   &end,
		Timezone:  "America/Chicago",
	})

	// noon local on the 15th: that morning's dose is past, the 16th and the
	// end date itself remain
	now := time.Date(2026, 6, 15, 17, 0, 0, 0, time.UTC)
	result, err := newGenerator(factory, 30).Generate(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EventsGenerated, "June 16 and the June 17 end date are both due")

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	onEndDate, err := factory.Log.HasScheduled(context.Background(), cmd.ID(),
		time.Date(2026, 6, 17, 8, 0, 0, 0, chicago))
	require.NoError(t, err)
	assert.True(t, onEndDate, "the end date's dose is still scheduled")
}

func TestGenerateNothingBeforeStartDateInWesternZone(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	start := time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)

	cmd := seedCommand(t, factory, aggregate.Schedule{
		Frequency:    aggregate.FrequencyDaily,
		Times:        []string{"08:00"},
		StartDate:    start,
		IsIndefinite: true,
		Timezone:     "America/Chicago",
	})

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	_, err := newGenerator(factory, 30).Generate(context.Background(), now, false)
	require.NoError(t, err)

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	dayBefore, err := factory.Log.HasScheduled(context.Background(), cmd.ID(),
		time.Date(2026, 6, 19, 8, 0, 0, 0, chicago))
	require.NoError(t, err)
	assert.False(t, dayBefore, "no dose the day before the start date")

	events, err := factory.Log.ByCommandSince(context.Background(), cmd.ID(), time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.True(t, events[0].Timing.ScheduledFor.Equal(time.Date(2026, 6, 20, 8, 0, 0, 0, chicago)),
		"first dose lands on the start date in patient-local time")
}

func TestGenerateGraceEndUsesTier(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	cmd, err := aggregate.NewMedicationCommand(
		"patient-1",
		aggregate.MedicationInfo{Name: "Insulin Glargine"},
		aggregate.Schedule{
			Frequency:    aggregate.FrequencyDaily,
			Times:        []string{"08:00"},
			StartDate:    now,
			IsIndefinite: true,
			Timezone:     "UTC",
		},
		aggregate.ReminderConfig{Enabled: true},
		"dr-lee",
	)
	require.NoError(t, err)
	require.NoError(t, factory.CommandRepo.Save(context.Background(), cmd))

	_, err = newGenerator(factory, 1).Generate(context.Background(), now, false)
	require.NoError(t, err)

	events, err := factory.Log.ByCommandSince(context.Background(), cmd.ID(), time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	first := events[0]
	assert.Equal(t, event.DoseScheduled, first.Type)
	// critical tier: 15 minutes on a weekday
	assert.Equal(t, 15*time.Minute, first.Timing.GracePeriodEnd.Sub(first.Timing.ScheduledFor))
}

func TestGenerateMidnightGate(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	// midday UTC: outside the UTC midnight window
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	seedCommand(t, factory, aggregate.Schedule{
		Frequency:    aggregate.FrequencyDaily,
		Times:        []string{"20:00"},
		StartDate:    now,
		IsIndefinite: true,
		Timezone:     "UTC",
	})

	gated, err := newGenerator(factory, 5).Generate(context.Background(), now, true)
	require.NoError(t, err)
	assert.Equal(t, 0, gated.Processed, "command skipped outside its local midnight window")

	ungated, err := newGenerator(factory, 5).Generate(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, 1, ungated.Processed)
}

func TestGenerateRerunPublishesNothing(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	seedCommand(t, factory, aggregate.Schedule{
		Frequency:    aggregate.FrequencyDaily,
		Times:        []string{"08:00"},
		StartDate:    now,
		IsIndefinite: true,
		Timezone:     "UTC",
	})

	eventBus := bus.NewInMemoryEventBus()
	var published int
	eventBus.Subscribe(string(event.DoseScheduled), bus.EventHandlerFunc(
		func(ctx context.Context, _ event.DomainEvent) error {
			published++
			return nil
		}))

	gen := NewOccurrenceGenerator(factory, eventBus, grace.NoHolidays{}, 3, time.Hour)
	_, err := gen.Generate(context.Background(), now, false)
	require.NoError(t, err)
	require.Equal(t, 3, published)

	// every occurrence is already in the log, so the rerun must neither
	// append nor re-announce them
	second, err := gen.Generate(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.EventsGenerated)
	assert.Equal(t, 3, published)
}
