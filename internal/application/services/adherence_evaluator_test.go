package services

import (
	"context"
	"testing"
	"time"

	"dosewise/internal/domain/event"
	"dosewise/internal/infrastructure/bus"
	"dosewise/internal/infrastructure/eventstore"
	"dosewise/internal/infrastructure/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvaluator(factory *eventstore.MemoryUnitOfWorkFactory) *AdherenceEvaluator {
	return NewAdherenceEvaluator(factory, bus.NewInMemoryEventBus(), nil, DefaultThresholds(), 30)
}

type countingNotifier struct {
	alerts []notify.Alert
}

func (n *countingNotifier) Dispatch(ctx context.Context, alert notify.Alert) error {
	n.alerts = append(n.alerts, alert)
	return nil
}

// seedOutcome appends a scheduled event plus the terminal event that puts the
// occurrence in the given state.
func seedOutcome(t *testing.T, factory *eventstore.MemoryUnitOfWorkFactory, commandID string, scheduledFor time.Time, state string) {
	t.Helper()
	ctx := context.Background()

	scheduled := event.NewDoseScheduled(commandID, "patient-1", scheduledFor, scheduledFor.Add(30*time.Minute), "1 tablet")
	require.NoError(t, factory.Log.Append(ctx, scheduled))

	switch state {
	case "taken":
		require.NoError(t, factory.Log.Append(ctx, event.NewDoseTaken(scheduled, scheduledFor.Add(5*time.Minute), "patient-1", "")))
	case "missed":
		require.NoError(t, factory.Log.Append(ctx, event.NewDoseMissed(scheduled, scheduledFor.Add(time.Hour))))
	case "skipped":
		require.NoError(t, factory.Log.Append(ctx, event.NewDoseSkipped(scheduled, scheduledFor.Add(5*time.Minute), "patient-1", "nauseous")))
	}
}

func TestReportPerfectAdherence(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	for i := 1; i <= 5; i++ {
		seedOutcome(t, factory, "cmd-1", now.Add(-time.Duration(i)*24*time.Hour), "taken")
	}

	report, err := newEvaluator(factory).Report(context.Background(), "patient-1", "")
	require.NoError(t, err)
	assert.Equal(t, 5, report.TakenCount)
	assert.Equal(t, 0, report.MissedCount)
	assert.InDelta(t, 1.0, report.AdherenceRate, 0.001)
	assert.Empty(t, report.Patterns)
}

func TestReportNoHistoryDefaultsToFullAdherence(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()

	report, err := newEvaluator(factory).Report(context.Background(), "patient-1", "")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, report.AdherenceRate, 0.001)
	assert.Empty(t, report.Patterns)
}

func TestReportSkippedExcludedFromRate(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	seedOutcome(t, factory, "cmd-1", now.Add(-4*24*time.Hour), "taken")
	seedOutcome(t, factory, "cmd-1", now.Add(-3*24*time.Hour), "taken")
	seedOutcome(t, factory, "cmd-1", now.Add(-2*24*time.Hour), "skipped")
	seedOutcome(t, factory, "cmd-1", now.Add(-1*24*time.Hour), "missed")

	report, err := newEvaluator(factory).Report(context.Background(), "patient-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.TakenCount)
	assert.Equal(t, 1, report.MissedCount)
	assert.Equal(t, 1, report.SkippedCount)
	assert.InDelta(t, 2.0/3.0, report.AdherenceRate, 0.001)
}

func TestRateSeverityTiers(t *testing.T) {
	evaluator := newEvaluator(eventstore.NewMemoryUnitOfWorkFactory())

	tests := []struct {
		rate     float64
		severity string
	}{
		{0.95, SeverityLow},
		{0.90, SeverityLow},
		{0.89, SeverityMedium},
		{0.70, SeverityMedium},
		{0.69, SeverityHigh},
		{0.50, SeverityHigh},
		{0.49, SeverityCritical},
		{0.0, SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.severity, evaluator.rateSeverity(tt.rate), "rate %.2f", tt.rate)
	}
}

func TestEvaluateDetectsLowAdherenceRate(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	seedOutcome(t, factory, "cmd-1", now.Add(-4*24*time.Hour), "taken")
	seedOutcome(t, factory, "cmd-1", now.Add(-3*24*time.Hour), "missed")

	report, err := newEvaluator(factory).EvaluatePatient(context.Background(), "patient-1")
	require.NoError(t, err)
	require.Len(t, report.Patterns, 1)
	assert.Equal(t, PatternLowAdherenceRate, report.Patterns[0].PatternType)
	assert.Equal(t, SeverityHigh, report.Patterns[0].Severity)
	assert.InDelta(t, 0.5, report.Patterns[0].AdherenceRate, 0.001)
}

func TestEvaluateDetectsConsecutiveMissedStreak(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	seedOutcome(t, factory, "cmd-1", now.Add(-4*24*time.Hour), "missed")
	seedOutcome(t, factory, "cmd-1", now.Add(-3*24*time.Hour), "missed")
	seedOutcome(t, factory, "cmd-1", now.Add(-2*24*time.Hour), "missed")

	report, err := newEvaluator(factory).EvaluatePatient(context.Background(), "patient-1")
	require.NoError(t, err)

	var streak *PatternRecord
	for i := range report.Patterns {
		if report.Patterns[i].PatternType == PatternConsecutiveMissed {
			streak = &report.Patterns[i]
		}
	}
	require.NotNil(t, streak)
	assert.Equal(t, "cmd-1", streak.CommandID)
	assert.Equal(t, 3, streak.MissedStreak)
	assert.Equal(t, SeverityHigh, streak.Severity)
}

func TestEvaluateFiveMissedStreakIsCritical(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	for i := 1; i <= 5; i++ {
		seedOutcome(t, factory, "cmd-1", now.Add(-time.Duration(i)*24*time.Hour), "missed")
	}

	report, err := newEvaluator(factory).EvaluatePatient(context.Background(), "patient-1")
	require.NoError(t, err)

	var streak *PatternRecord
	for i := range report.Patterns {
		if report.Patterns[i].PatternType == PatternConsecutiveMissed {
			streak = &report.Patterns[i]
		}
	}
	require.NotNil(t, streak)
	assert.Equal(t, 5, streak.MissedStreak)
	assert.Equal(t, SeverityCritical, streak.Severity)
}

func TestTakenDoseBreaksMissedStreak(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	seedOutcome(t, factory, "cmd-1", now.Add(-5*24*time.Hour), "missed")
	seedOutcome(t, factory, "cmd-1", now.Add(-4*24*time.Hour), "missed")
	seedOutcome(t, factory, "cmd-1", now.Add(-3*24*time.Hour), "taken")
	seedOutcome(t, factory, "cmd-1", now.Add(-2*24*time.Hour), "missed")
	seedOutcome(t, factory, "cmd-1", now.Add(-1*24*time.Hour), "missed")

	report, err := newEvaluator(factory).EvaluatePatient(context.Background(), "patient-1")
	require.NoError(t, err)
	for _, p := range report.Patterns {
		assert.NotEqual(t, PatternConsecutiveMissed, p.PatternType, "no run reaches three")
	}
}

func TestStreaksAreTrackedPerCommand(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	// two misses on each command, never three on either
	seedOutcome(t, factory, "cmd-a", now.Add(-4*24*time.Hour), "missed")
	seedOutcome(t, factory, "cmd-a", now.Add(-3*24*time.Hour), "missed")
	seedOutcome(t, factory, "cmd-b", now.Add(-2*24*time.Hour), "missed")
	seedOutcome(t, factory, "cmd-b", now.Add(-1*24*time.Hour), "missed")

	report, err := newEvaluator(factory).EvaluatePatient(context.Background(), "patient-1")
	require.NoError(t, err)
	for _, p := range report.Patterns {
		assert.NotEqual(t, PatternConsecutiveMissed, p.PatternType)
	}
}

func TestEvaluateRecordsPatternEvents(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		seedOutcome(t, factory, "cmd-1", now.Add(-time.Duration(i)*24*time.Hour), "missed")
	}

	_, err := newEvaluator(factory).EvaluatePatient(context.Background(), "patient-1")
	require.NoError(t, err)

	events, err := factory.Log.ByPatientSince(context.Background(), "patient-1", time.Time{})
	require.NoError(t, err)
	recorded := 0
	for _, e := range events {
		if e.Type == event.PatternDetected {
			recorded++
		}
	}
	assert.Equal(t, 2, recorded, "one low-rate pattern, one streak pattern")
}

func TestReportDoesNotRecordPatternEvents(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		seedOutcome(t, factory, "cmd-1", now.Add(-time.Duration(i)*24*time.Hour), "missed")
	}

	report, err := newEvaluator(factory).Report(context.Background(), "patient-1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, report.Patterns)

	events, err := factory.Log.ByPatientSince(context.Background(), "patient-1", time.Time{})
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEqual(t, event.PatternDetected, e.Type)
	}
}

func TestPatternEventsExcludedFromLaterEvaluations(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	now := time.Now().UTC()
	seedOutcome(t, factory, "cmd-1", now.Add(-2*24*time.Hour), "missed")
	seedOutcome(t, factory, "cmd-1", now.Add(-1*24*time.Hour), "taken")

	evaluator := newEvaluator(factory)
	first, err := evaluator.EvaluatePatient(context.Background(), "patient-1")
	require.NoError(t, err)

	second, err := evaluator.EvaluatePatient(context.Background(), "patient-1")
	require.NoError(t, err)
	assert.Equal(t, first.TakenCount, second.TakenCount)
	assert.Equal(t, first.MissedCount, second.MissedCount)
	assert.InDelta(t, first.AdherenceRate, second.AdherenceRate, 0.001)
}

func TestEvaluateCountsDispatchedAlerts(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	notifier := &countingNotifier{}
	now := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		seedOutcome(t, factory, "cmd-1", now.Add(-time.Duration(i)*24*time.Hour), "missed")
	}

	evaluator := NewAdherenceEvaluator(factory, bus.NewInMemoryEventBus(), notifier, DefaultThresholds(), 30)
	report, err := evaluator.EvaluatePatient(context.Background(), "patient-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.AlertsDispatched, "a low-rate alert and a streak alert")
	assert.Len(t, notifier.alerts, 2)
}

func TestEvaluateRequiresPatientID(t *testing.T) {
	_, err := newEvaluator(eventstore.NewMemoryUnitOfWorkFactory()).EvaluatePatient(context.Background(), "")
	assert.Error(t, err)
}
