package command

import (
	"context"
	"fmt"
	"time"

	"dosewise/internal/domain/aggregate"
	"dosewise/internal/domain/repository"
	"dosewise/internal/infrastructure/bus"
	"dosewise/internal/infrastructure/drugverify"
	"dosewise/pkg/errors"

	"github.com/rs/zerolog/log"
)

const dateLayout = "2006-01-02"

// CreateMedicationWithUoWHandler handles create medication commands with
// Unit of Work
type CreateMedicationWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
	verifier   drugverify.Verifier
}

// NewCreateMedicationWithUoWHandler creates a new create medication handler
func NewCreateMedicationWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
	verifier drugverify.Verifier,
) *CreateMedicationWithUoWHandler {
	return &CreateMedicationWithUoWHandler{
		uowFactory: uowFactory,
		eventBus:   eventBus,
		verifier:   verifier,
	}
}

// Handle processes the create medication command
func (h *CreateMedicationWithUoWHandler) Handle(ctx context.Context, cmd *CreateMedication) (*aggregate.MedicationCommand, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if cmd.PatientID == "" {
		return nil, errors.NewValidationError("patient_id is required")
	}
	if cmd.Name == "" {
		return nil, errors.NewValidationError("name is required")
	}
	if cmd.Actor == "" {
		return nil, errors.NewValidationError("actor is required")
	}

	schedule, err := scheduleFromCommand(cmd.Frequency, cmd.Times, cmd.DaysOfWeek, cmd.DayOfMonth,
		cmd.StartDate, cmd.EndDate, cmd.IsIndefinite, cmd.DosageAmount, cmd.Timezone)
	if err != nil {
		return nil, err
	}

	medication := aggregate.MedicationInfo{
		Name:            cmd.Name,
		Dosage:          cmd.Dosage,
		Route:           cmd.Route,
		DrugReferenceID: cmd.DrugReferenceID,
		Verification:    aggregate.VerificationUnverified,
	}

	// Verification enriches classification confidence only; a lookup
	// failure never blocks scheduling
	if result, verr := h.verifier.Verify(ctx, cmd.Name); verr != nil {
		log.Warn().Str("name", cmd.Name).Err(verr).Msg("drug verification unavailable, continuing unverified")
	} else if result.Verified {
		medication.Verification = aggregate.VerificationVerified
		if medication.DrugReferenceID == "" {
			medication.DrugReferenceID = result.ReferenceID
		}
	}

	reminders := aggregate.ReminderConfig{
		Enabled:          cmd.RemindersEnabled,
		LeadTimesMinutes: cmd.LeadTimesMinutes,
		Channels:         cmd.Channels,
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to begin transaction: %v", err))
	}

	medCommand, err := aggregate.NewMedicationCommand(cmd.PatientID, medication, schedule, reminders, cmd.Actor)
	if err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewValidationError(err.Error())
	}

	commandRepo := uow.MedicationCommandRepository()
	events := medCommand.GetUncommittedEvents()
	if err := repository.RetryWrite(ctx, func() error { return commandRepo.Save(ctx, medCommand) }); err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to save medication: %v", err))
	}

	if err := h.eventBus.PublishBatch(ctx, events); err != nil {
		log.Warn().Err(err).Msg("failed to publish medication events")
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to commit transaction: %v", err))
	}

	return medCommand, nil
}

// UpdateMedicationScheduleWithUoWHandler handles schedule updates with
// optimistic concurrency
type UpdateMedicationScheduleWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
}

// NewUpdateMedicationScheduleWithUoWHandler creates a new schedule update handler
func NewUpdateMedicationScheduleWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
) *UpdateMedicationScheduleWithUoWHandler {
	return &UpdateMedicationScheduleWithUoWHandler{
		uowFactory: uowFactory,
		eventBus:   eventBus,
	}
}

// Handle processes the schedule update command
func (h *UpdateMedicationScheduleWithUoWHandler) Handle(ctx context.Context, cmd *UpdateMedicationSchedule) error {
	if cmd == nil {
		return errors.NewValidationError("command cannot be nil")
	}
	if cmd.CommandID == "" {
		return errors.NewValidationError("command_id is required")
	}
	if cmd.Version <= 0 {
		return errors.NewValidationError("version is required")
	}

	schedule, err := scheduleFromCommand(cmd.Frequency, cmd.Times, cmd.DaysOfWeek, cmd.DayOfMonth,
		cmd.StartDate, cmd.EndDate, cmd.IsIndefinite, cmd.DosageAmount, cmd.Timezone)
	if err != nil {
		return err
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return errors.NewStoreError(fmt.Sprintf("failed to begin transaction: %v", err))
	}

	commandRepo := uow.MedicationCommandRepository()
	medCommand, err := commandRepo.GetByID(ctx, cmd.CommandID)
	if err != nil {
		uow.Rollback(ctx)
		return errors.NewNotFoundError("medication")
	}

	if medCommand.GetVersion() != cmd.Version {
		uow.Rollback(ctx)
		return errors.NewStaleVersionError("medication was modified concurrently, re-read and retry")
	}

	if err := medCommand.UpdateSchedule(schedule, cmd.Actor); err != nil {
		uow.Rollback(ctx)
		return errors.NewValidationError(err.Error())
	}

	events := medCommand.GetUncommittedEvents()
	if err := repository.RetryWrite(ctx, func() error { return commandRepo.Save(ctx, medCommand) }); err != nil {
		uow.Rollback(ctx)
		if err == repository.ErrVersionConflict {
			return errors.NewStaleVersionError("medication was modified concurrently, re-read and retry")
		}
		return errors.NewStoreError(fmt.Sprintf("failed to save medication: %v", err))
	}

	if err := h.eventBus.PublishBatch(ctx, events); err != nil {
		log.Warn().Err(err).Msg("failed to publish medication events")
	}

	if err := uow.Commit(ctx); err != nil {
		return errors.NewStoreError(fmt.Sprintf("failed to commit transaction: %v", err))
	}

	return nil
}

// ChangeMedicationStatusWithUoWHandler handles pause/resume/hold/discontinue
type ChangeMedicationStatusWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
}

// NewChangeMedicationStatusWithUoWHandler creates a new status change handler
func NewChangeMedicationStatusWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
) *ChangeMedicationStatusWithUoWHandler {
	return &ChangeMedicationStatusWithUoWHandler{
		uowFactory: uowFactory,
		eventBus:   eventBus,
	}
}

// Handle processes the status change command
func (h *ChangeMedicationStatusWithUoWHandler) Handle(ctx context.Context, cmd *ChangeMedicationStatus) error {
	if cmd == nil {
		return errors.NewValidationError("command cannot be nil")
	}
	if cmd.CommandID == "" {
		return errors.NewValidationError("command_id is required")
	}
	if cmd.Version <= 0 {
		return errors.NewValidationError("version is required")
	}

	status := aggregate.CommandStatus(cmd.Status)
	if status != aggregate.StatusActive &&
		status != aggregate.StatusPaused &&
		status != aggregate.StatusHeld &&
		status != aggregate.StatusDiscontinued {
		return errors.NewValidationError("invalid status value")
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return errors.NewStoreError(fmt.Sprintf("failed to begin transaction: %v", err))
	}

	commandRepo := uow.MedicationCommandRepository()
	medCommand, err := commandRepo.GetByID(ctx, cmd.CommandID)
	if err != nil {
		uow.Rollback(ctx)
		return errors.NewNotFoundError("medication")
	}

	if medCommand.GetVersion() != cmd.Version {
		uow.Rollback(ctx)
		return errors.NewStaleVersionError("medication was modified concurrently, re-read and retry")
	}

	var changeErr error
	switch status {
	case aggregate.StatusActive:
		changeErr = medCommand.Resume(cmd.Actor)
	case aggregate.StatusPaused:
		changeErr = medCommand.Pause(cmd.Actor)
	case aggregate.StatusHeld:
		changeErr = medCommand.Hold(cmd.Actor)
	case aggregate.StatusDiscontinued:
		changeErr = medCommand.Discontinue(cmd.Actor)
	}
	if changeErr != nil {
		uow.Rollback(ctx)
		return errors.NewValidationError(changeErr.Error())
	}

	events := medCommand.GetUncommittedEvents()
	if err := repository.RetryWrite(ctx, func() error { return commandRepo.Save(ctx, medCommand) }); err != nil {
		uow.Rollback(ctx)
		if err == repository.ErrVersionConflict {
			return errors.NewStaleVersionError("medication was modified concurrently, re-read and retry")
		}
		return errors.NewStoreError(fmt.Sprintf("failed to save medication: %v", err))
	}

	if err := h.eventBus.PublishBatch(ctx, events); err != nil {
		log.Warn().Err(err).Msg("failed to publish medication events")
	}

	if err := uow.Commit(ctx); err != nil {
		return errors.NewStoreError(fmt.Sprintf("failed to commit transaction: %v", err))
	}

	return nil
}

// VerifyMedicationWithUoWHandler re-runs drug verification for a command
// that was created while the lookup service was unavailable or unmatched.
// The result is persisted as a targeted patch rather than a full save: no
// dose semantics change, so no event is raised and concurrent schedule
// edits only conflict on the version check.
type VerifyMedicationWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	verifier   drugverify.Verifier
}

// NewVerifyMedicationWithUoWHandler creates a new verification handler
func NewVerifyMedicationWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	verifier drugverify.Verifier,
) *VerifyMedicationWithUoWHandler {
	return &VerifyMedicationWithUoWHandler{
		uowFactory: uowFactory,
		verifier:   verifier,
	}
}

// Handle processes the verify medication command
func (h *VerifyMedicationWithUoWHandler) Handle(ctx context.Context, cmd *VerifyMedication) error {
	if cmd == nil {
		return errors.NewValidationError("command cannot be nil")
	}
	if cmd.CommandID == "" {
		return errors.NewValidationError("command_id is required")
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return errors.NewStoreError(fmt.Sprintf("failed to begin transaction: %v", err))
	}

	commandRepo := uow.MedicationCommandRepository()
	medCommand, err := commandRepo.GetByID(ctx, cmd.CommandID)
	if err != nil {
		uow.Rollback(ctx)
		return errors.NewNotFoundError("medication")
	}

	if medCommand.Medication().Verification == aggregate.VerificationVerified {
		uow.Rollback(ctx)
		return nil
	}

	result, verr := h.verifier.Verify(ctx, medCommand.Medication().Name)
	if verr != nil {
		uow.Rollback(ctx)
		return errors.NewStoreError(fmt.Sprintf("drug verification unavailable: %v", verr))
	}
	if !result.Verified {
		uow.Rollback(ctx)
		return errors.NewNotFoundError("drug reference match")
	}

	fields := map[string]interface{}{
		"medication.verification":      string(aggregate.VerificationVerified),
		"medication.drug_reference_id": result.ReferenceID,
	}
	version := medCommand.GetVersion()
	if err := repository.RetryWrite(ctx, func() error {
		return commandRepo.PatchFields(ctx, cmd.CommandID, version, fields)
	}); err != nil {
		uow.Rollback(ctx)
		if err == repository.ErrVersionConflict {
			return errors.NewStaleVersionError("medication was modified concurrently, re-read and retry")
		}
		return errors.NewStoreError(fmt.Sprintf("failed to patch medication: %v", err))
	}

	if err := uow.Commit(ctx); err != nil {
		return errors.NewStoreError(fmt.Sprintf("failed to commit transaction: %v", err))
	}

	log.Info().
		Str("command_id", cmd.CommandID).
		Str("reference_id", result.ReferenceID).
		Str("actor", cmd.Actor).
		Msg("medication verified against drug reference")

	return nil
}

func scheduleFromCommand(frequency string, times []string, daysOfWeek []int, dayOfMonth int,
	startDate, endDate string, isIndefinite bool, dosageAmount, tz string) (aggregate.Schedule, error) {

	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return aggregate.Schedule{}, errors.NewValidationError(fmt.Sprintf("invalid start_date, expected YYYY-MM-DD: %v", err))
	}

	var end *time.Time
	if endDate != "" {
		parsed, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return aggregate.Schedule{}, errors.NewValidationError(fmt.Sprintf("invalid end_date, expected YYYY-MM-DD: %v", err))
		}
		end = &parsed
	}

	days := make([]time.Weekday, 0, len(daysOfWeek))
	for _, d := range daysOfWeek {
		if d < 0 || d > 6 {
			return aggregate.Schedule{}, errors.NewValidationError("days_of_week values must be 0 (Sunday) through 6 (Saturday)")
		}
		days = append(days, time.Weekday(d))
	}

	return aggregate.Schedule{
		Frequency:    aggregate.Frequency(frequency),
		Times:        times,
		DaysOfWeek:   days,
		DayOfMonth:   dayOfMonth,
		StartDate:    start,
		EndDate:      end,
		IsIndefinite: isIndefinite,
		DosageAmount: dosageAmount,
		Timezone:     tz,
	}, nil
}
