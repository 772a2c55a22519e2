package eventstore

import (
	"context"
	"testing"
	"time"

	"dosewise/internal/domain/aggregate"
	"dosewise/internal/domain/event"
	"dosewise/internal/domain/repository"
	"dosewise/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduled(commandID string, scheduledFor time.Time) *event.DoseEvent {
	return event.NewDoseScheduled(commandID, "patient-1", scheduledFor, scheduledFor.Add(30*time.Minute), "1 tablet")
}

func TestMemoryEventLogRejectsDuplicateScheduled(t *testing.T) {
	log := NewMemoryEventLog()
	ctx := context.Background()
	scheduledFor := time.Now().UTC().Add(time.Hour)

	require.NoError(t, log.Append(ctx, newScheduled("cmd-1", scheduledFor)))

	err := log.Append(ctx, newScheduled("cmd-1", scheduledFor))
	assert.ErrorIs(t, err, errors.ErrDuplicateOccurrence)

	// same instant, different command is fine
	assert.NoError(t, log.Append(ctx, newScheduled("cmd-2", scheduledFor)))
}

func TestMemoryEventLogAllowsTerminalAtSameOccurrence(t *testing.T) {
	log := NewMemoryEventLog()
	ctx := context.Background()

	scheduled := newScheduled("cmd-1", time.Now().UTC())
	require.NoError(t, log.Append(ctx, scheduled))

	taken := event.NewDoseTaken(scheduled, time.Now().UTC(), "patient-1", "")
	assert.NoError(t, log.Append(ctx, taken), "uniqueness only applies to scheduled events")

	events, err := log.ByOccurrence(ctx, "cmd-1", scheduled.Timing.ScheduledFor)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestMemoryEventLogAppendBatchSkipsDuplicates(t *testing.T) {
	log := NewMemoryEventLog()
	ctx := context.Background()
	base := time.Now().UTC()

	first := []*event.DoseEvent{
		newScheduled("cmd-1", base),
		newScheduled("cmd-1", base.Add(12*time.Hour)),
	}
	inserted, err := log.AppendBatch(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// overlapping rerun inserts only the new occurrence
	second := []*event.DoseEvent{
		newScheduled("cmd-1", base),
		newScheduled("cmd-1", base.Add(24*time.Hour)),
	}
	inserted, err = log.AppendBatch(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestMemoryEventLogScheduledWithGraceElapsed(t *testing.T) {
	log := NewMemoryEventLog()
	ctx := context.Background()
	now := time.Now().UTC()

	ancient := newScheduled("cmd-1", now.AddDate(0, 0, -20))
	elapsed := newScheduled("cmd-1", now.Add(-2*time.Hour))
	pending := newScheduled("cmd-1", now.Add(time.Hour))
	require.NoError(t, log.Append(ctx, ancient))
	require.NoError(t, log.Append(ctx, elapsed))
	require.NoError(t, log.Append(ctx, pending))

	due, err := log.ScheduledWithGraceElapsed(ctx, now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, elapsed.ID, due[0].ID)
}

func TestMemoryEventLogHasScheduled(t *testing.T) {
	log := NewMemoryEventLog()
	ctx := context.Background()
	scheduledFor := time.Now().UTC()

	exists, err := log.HasScheduled(ctx, "cmd-1", scheduledFor)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, log.Append(ctx, newScheduled("cmd-1", scheduledFor)))

	exists, err = log.HasScheduled(ctx, "cmd-1", scheduledFor)
	require.NoError(t, err)
	assert.True(t, exists)
}

func newRepoCommand(t *testing.T) *aggregate.MedicationCommand {
	t.Helper()
	cmd, err := aggregate.NewMedicationCommand(
		"patient-1",
		aggregate.MedicationInfo{Name: "Lisinopril", Dosage: "10mg"},
		aggregate.Schedule{
			Frequency:    aggregate.FrequencyDaily,
			Times:        []string{"08:00"},
			StartDate:    time.Now().UTC(),
			IsIndefinite: true,
			Timezone:     "UTC",
		},
		aggregate.ReminderConfig{Enabled: true},
		"dr-lee",
	)
	require.NoError(t, err)
	return cmd
}

func TestMemoryCommandRepositorySaveAndLoad(t *testing.T) {
	repo := NewMemoryCommandRepository()
	ctx := context.Background()
	cmd := newRepoCommand(t)

	require.NoError(t, repo.Save(ctx, cmd))
	assert.Empty(t, cmd.GetUncommittedEvents(), "save commits pending events")

	loaded, err := repo.GetByID(ctx, cmd.ID())
	require.NoError(t, err)
	assert.Equal(t, cmd.ID(), loaded.ID())
	assert.Equal(t, 1, loaded.Version())

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrCommandNotFound)
}

func TestMemoryCommandRepositoryRejectsStaleVersion(t *testing.T) {
	repo := NewMemoryCommandRepository()
	ctx := context.Background()
	cmd := newRepoCommand(t)
	require.NoError(t, repo.Save(ctx, cmd))

	require.NoError(t, cmd.Pause("dr-lee"))
	require.NoError(t, repo.Save(ctx, cmd))
	assert.Equal(t, 2, cmd.Version())

	// a mutation raised against a version the store has moved past
	require.NoError(t, cmd.Resume("dr-lee"))
	cmd.SetVersion(2) // simulate a stale in-flight writer
	err := repo.Save(ctx, cmd)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestMemoryCommandRepositoryPatchFields(t *testing.T) {
	repo := NewMemoryCommandRepository()
	ctx := context.Background()
	cmd := newRepoCommand(t)
	require.NoError(t, repo.Save(ctx, cmd))

	fields := map[string]interface{}{
		"medication.verification":      string(aggregate.VerificationVerified),
		"medication.drug_reference_id": "rxnorm-203644",
	}

	err := repo.PatchFields(ctx, cmd.ID(), cmd.Version()+5, fields)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	require.NoError(t, repo.PatchFields(ctx, cmd.ID(), cmd.Version(), fields))

	stored, err := repo.GetByID(ctx, cmd.ID())
	require.NoError(t, err)
	assert.Equal(t, aggregate.VerificationVerified, stored.Medication().Verification)
	assert.Equal(t, "rxnorm-203644", stored.Medication().DrugReferenceID)
	assert.Equal(t, 2, stored.Version())

	err = repo.PatchFields(ctx, "missing", 1, fields)
	assert.ErrorIs(t, err, repository.ErrCommandNotFound)

	err = repo.PatchFields(ctx, cmd.ID(), stored.Version(), map[string]interface{}{"schedule.times": []string{"09:00"}})
	assert.Error(t, err, "only verification paths are patchable")
}

func TestMemoryUnitOfWorkSharesStores(t *testing.T) {
	factory := NewMemoryUnitOfWorkFactory()
	ctx := context.Background()

	uow1 := factory.CreateUnitOfWork()
	require.NoError(t, uow1.Begin(ctx))
	cmd := newRepoCommand(t)
	require.NoError(t, uow1.MedicationCommandRepository().Save(ctx, cmd))
	require.NoError(t, uow1.Commit(ctx))
	require.NoError(t, uow1.Close())

	uow2 := factory.CreateUnitOfWork()
	require.NoError(t, uow2.Begin(ctx))
	loaded, err := uow2.MedicationCommandRepository().GetByID(ctx, cmd.ID())
	require.NoError(t, err)
	assert.Equal(t, cmd.ID(), loaded.ID())
	require.NoError(t, uow2.Commit(ctx))
}
