package command

import (
	"context"
	"testing"

	"dosewise/internal/domain/aggregate"
	"dosewise/internal/infrastructure/bus"
	"dosewise/internal/infrastructure/drugverify"
	"dosewise/internal/infrastructure/eventstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matchingVerifier resolves every name to the same reference entry and
// counts how often it was consulted.
type matchingVerifier struct {
	referenceID string
	calls       int
}

func (v *matchingVerifier) Verify(ctx context.Context, name string) (*drugverify.Result, error) {
	v.calls++
	return &drugverify.Result{
		Verified:    true,
		MatchedName: name,
		ReferenceID: v.referenceID,
		Confidence:  0.97,
	}, nil
}

func createMedication(t *testing.T, factory *eventstore.MemoryUnitOfWorkFactory, verifier drugverify.Verifier) *aggregate.MedicationCommand {
	t.Helper()
	create := NewCreateMedicationWithUoWHandler(factory, bus.NewInMemoryEventBus(), verifier)
	created, err := create.Handle(context.Background(), &CreateMedication{
		PatientID:    "patient-1",
		Name:         "Lisinopril",
		Dosage:       "10mg",
		Frequency:    string(aggregate.FrequencyDaily),
		Times:        []string{"08:00"},
		StartDate:    "2026-06-15",
		IsIndefinite: true,
		Timezone:     "UTC",
		Actor:        "dr-lee",
	})
	require.NoError(t, err)
	return created
}

func TestVerifyMedicationPersistsMatch(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	created := createMedication(t, factory, drugverify.Unverified{})
	require.Equal(t, aggregate.VerificationUnverified, created.Medication().Verification)
	priorVersion := created.GetVersion()

	handler := NewVerifyMedicationWithUoWHandler(factory, &matchingVerifier{referenceID: "rxnorm-203644"})
	err := handler.Handle(context.Background(), &VerifyMedication{CommandID: created.ID(), Actor: "dr-lee"})
	require.NoError(t, err)

	stored, err := factory.CommandRepo.GetByID(context.Background(), created.ID())
	require.NoError(t, err)
	assert.Equal(t, aggregate.VerificationVerified, stored.Medication().Verification)
	assert.Equal(t, "rxnorm-203644", stored.Medication().DrugReferenceID)
	// the patch counts as a mutation for optimistic concurrency
	assert.Equal(t, priorVersion+1, stored.GetVersion())
}

func TestVerifyMedicationAlreadyVerifiedSkipsLookup(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	created := createMedication(t, factory, &matchingVerifier{referenceID: "rxnorm-203644"})
	require.Equal(t, aggregate.VerificationVerified, created.Medication().Verification)

	verifier := &matchingVerifier{referenceID: "rxnorm-999"}
	handler := NewVerifyMedicationWithUoWHandler(factory, verifier)
	err := handler.Handle(context.Background(), &VerifyMedication{CommandID: created.ID(), Actor: "dr-lee"})
	require.NoError(t, err)

	assert.Zero(t, verifier.calls)
	stored, err := factory.CommandRepo.GetByID(context.Background(), created.ID())
	require.NoError(t, err)
	assert.Equal(t, "rxnorm-203644", stored.Medication().DrugReferenceID)
}

func TestVerifyMedicationUnmatchedLeavesUnverified(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()
	created := createMedication(t, factory, drugverify.Unverified{})

	handler := NewVerifyMedicationWithUoWHandler(factory, drugverify.Unverified{})
	err := handler.Handle(context.Background(), &VerifyMedication{CommandID: created.ID(), Actor: "dr-lee"})
	assertAppError(t, err, "NOT_FOUND")

	stored, err := factory.CommandRepo.GetByID(context.Background(), created.ID())
	require.NoError(t, err)
	assert.Equal(t, aggregate.VerificationUnverified, stored.Medication().Verification)
}

func TestVerifyMedicationUnknownCommand(t *testing.T) {
	factory := eventstore.NewMemoryUnitOfWorkFactory()

	handler := NewVerifyMedicationWithUoWHandler(factory, &matchingVerifier{referenceID: "rxnorm-1"})
	err := handler.Handle(context.Background(), &VerifyMedication{CommandID: "missing", Actor: "dr-lee"})
	assertAppError(t, err, "NOT_FOUND")
}
