package repository

import (
	"context"
	"errors"

	"dosewise/internal/domain/aggregate"
)

// ErrVersionConflict is returned when a save carries a stale version. The
// caller must re-read the command and retry.
var ErrVersionConflict = errors.New("version conflict: command was modified concurrently")

// ErrCommandNotFound is returned when no command exists for an ID
var ErrCommandNotFound = errors.New("medication command not found")

// MedicationCommandRepository is the authoritative store for medication
// configuration. Mutations are read-modify-write with a version-checked
// conditional commit.
type MedicationCommandRepository interface {
	// Save inserts a new command or replaces an existing one. For updates
	// the stored version must equal the aggregate's version minus the
	// number of uncommitted events; otherwise ErrVersionConflict.
	Save(ctx context.Context, cmd *aggregate.MedicationCommand) error

	// PatchFields applies a partial update with dotted field paths in the
	// stored document layout (e.g. "medication.verification"), gated by the
	// same version check as Save. The stored version advances by one.
	PatchFields(ctx context.Context, id string, expectedVersion int, fields map[string]interface{}) error

	GetByID(ctx context.Context, id string) (*aggregate.MedicationCommand, error)

	ListByPatient(ctx context.Context, patientID string) ([]*aggregate.MedicationCommand, error)

	// ListSchedulingEligible returns active, non-PRN, reminder-enabled
	// commands for the occurrence generator
	ListSchedulingEligible(ctx context.Context) ([]*aggregate.MedicationCommand, error)
}
