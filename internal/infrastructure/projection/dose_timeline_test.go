package projection

import (
	"context"
	"testing"
	"time"

	"dosewise/internal/domain/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineFoldsScheduledThenTaken(t *testing.T) {
	p := NewInMemoryDoseTimelineProjection()
	ctx := context.Background()
	scheduledFor := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

	scheduled := event.NewDoseScheduled("cmd-1", "patient-1", scheduledFor, scheduledFor.Add(30*time.Minute), "1 tablet")
	require.NoError(t, p.HandleDoseEvent(ctx, scheduled))

	entry, err := p.GetByOccurrence(ctx, "cmd-1", scheduledFor)
	require.NoError(t, err)
	assert.Equal(t, "scheduled", entry.State)
	assert.Equal(t, "1 tablet", entry.Dosage)

	taken := event.NewDoseTaken(scheduled, scheduledFor.Add(5*time.Minute), "patient-1", "with food")
	require.NoError(t, p.HandleDoseEvent(ctx, taken))

	entry, err = p.GetByOccurrence(ctx, "cmd-1", scheduledFor)
	require.NoError(t, err)
	assert.Equal(t, "taken", entry.State)
	assert.Equal(t, "patient-1", entry.LastActor)
	assert.Equal(t, "with food", entry.LastNote)
	assert.True(t, entry.IsOnTime)
}

func TestTimelineUndoReturnsToScheduled(t *testing.T) {
	p := NewInMemoryDoseTimelineProjection()
	ctx := context.Background()
	scheduledFor := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

	scheduled := event.NewDoseScheduled("cmd-1", "patient-1", scheduledFor, scheduledFor.Add(30*time.Minute), "1 tablet")
	taken := event.NewDoseTaken(scheduled, scheduledFor.Add(5*time.Minute), "patient-1", "")
	undone := event.NewDoseTakenUndone(taken, "patient-1", "wrong entry")

	for _, e := range []*event.DoseEvent{scheduled, taken, undone} {
		require.NoError(t, p.HandleDoseEvent(ctx, e))
	}

	entry, err := p.GetByOccurrence(ctx, "cmd-1", scheduledFor)
	require.NoError(t, err)
	assert.Equal(t, "scheduled", entry.State)
	assert.Empty(t, entry.LastActor, "undone taken no longer shows as the standing outcome")
}

func TestTimelineReplayIsIdempotent(t *testing.T) {
	p := NewInMemoryDoseTimelineProjection()
	ctx := context.Background()
	scheduledFor := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

	scheduled := event.NewDoseScheduled("cmd-1", "patient-1", scheduledFor, scheduledFor.Add(30*time.Minute), "1 tablet")
	taken := event.NewDoseTaken(scheduled, scheduledFor.Add(5*time.Minute), "patient-1", "")

	require.NoError(t, p.HandleDoseEvent(ctx, scheduled))
	require.NoError(t, p.HandleDoseEvent(ctx, taken))
	require.NoError(t, p.HandleDoseEvent(ctx, taken))
	require.NoError(t, p.HandleDoseEvent(ctx, scheduled))

	entry, err := p.GetByOccurrence(ctx, "cmd-1", scheduledFor)
	require.NoError(t, err)
	assert.Equal(t, "taken", entry.State)
}

func TestTimelineHandlesOutOfOrderReplay(t *testing.T) {
	p := NewInMemoryDoseTimelineProjection()
	ctx := context.Background()
	scheduledFor := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

	scheduled := event.NewDoseScheduled("cmd-1", "patient-1", scheduledFor, scheduledFor.Add(30*time.Minute), "1 tablet")
	taken := event.NewDoseTaken(scheduled, scheduledFor.Add(5*time.Minute), "patient-1", "")

	// terminal event arrives first
	require.NoError(t, p.HandleDoseEvent(ctx, taken))
	require.NoError(t, p.HandleDoseEvent(ctx, scheduled))

	entry, err := p.GetByOccurrence(ctx, "cmd-1", scheduledFor)
	require.NoError(t, err)
	assert.Equal(t, "taken", entry.State)
	assert.Equal(t, "1 tablet", entry.Dosage)
}

func TestTimelineListByPatientRange(t *testing.T) {
	p := NewInMemoryDoseTimelineProjection()
	ctx := context.Background()
	base := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		scheduledFor := base.AddDate(0, 0, i)
		e := event.NewDoseScheduled("cmd-1", "patient-1", scheduledFor, scheduledFor.Add(30*time.Minute), "1 tablet")
		require.NoError(t, p.HandleDoseEvent(ctx, e))
	}
	other := event.NewDoseScheduled("cmd-2", "patient-2", base, base.Add(30*time.Minute), "2 tablets")
	require.NoError(t, p.HandleDoseEvent(ctx, other))

	entries, err := p.ListByPatient(ctx, "patient-1", base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].ScheduledFor.Before(entries[1].ScheduledFor), "sorted ascending")

	all, err := p.ListByPatient(ctx, "patient-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 5, "zero bounds mean unbounded")
}

func TestTimelineListByCommand(t *testing.T) {
	p := NewInMemoryDoseTimelineProjection()
	ctx := context.Background()
	base := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

	for _, cmd := range []string{"cmd-1", "cmd-1", "cmd-2"} {
		scheduledFor := base
		if cmd == "cmd-2" {
			scheduledFor = base.Add(time.Hour)
		}
		e := event.NewDoseScheduled(cmd, "patient-1", scheduledFor, scheduledFor.Add(30*time.Minute), "1 tablet")
		_ = p.HandleDoseEvent(ctx, e)
		base = base.AddDate(0, 0, 1)
	}

	entries, err := p.ListByCommand(ctx, "cmd-2", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTimelinePatternEventsIgnored(t *testing.T) {
	p := NewInMemoryDoseTimelineProjection()
	ctx := context.Background()

	pattern := event.NewPatternDetected("cmd-1", "patient-1", "consecutive_missed", "high", "3 consecutive missed doses")
	require.NoError(t, p.HandleDoseEvent(ctx, pattern))

	entries, err := p.ListByPatient(ctx, "patient-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
