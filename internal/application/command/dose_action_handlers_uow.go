package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dosewise/internal/domain/dose"
	"dosewise/internal/domain/event"
	"dosewise/internal/domain/repository"
	"dosewise/internal/infrastructure/bus"
	"dosewise/pkg/errors"

	"github.com/rs/zerolog/log"
)

// DefaultUndoWindow is how long a taken action stays reversible
const DefaultUndoWindow = 30 * time.Second

// DefaultSnoozeMinutes applies when a snooze request carries no duration
const DefaultSnoozeMinutes = 15

// MarkDoseTakenWithUoWHandler handles taken submissions, including late
// marking over an already-missed occurrence
type MarkDoseTakenWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
}

// NewMarkDoseTakenWithUoWHandler creates a new mark taken handler
func NewMarkDoseTakenWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
) *MarkDoseTakenWithUoWHandler {
	return &MarkDoseTakenWithUoWHandler{
		uowFactory: uowFactory,
		eventBus:   eventBus,
	}
}

// Handle processes the mark taken command
func (h *MarkDoseTakenWithUoWHandler) Handle(ctx context.Context, cmd *MarkDoseTaken) (*event.DoseEvent, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if cmd.Actor == "" {
		return nil, errors.NewValidationError("actor is required")
	}

	scheduledFor, err := parseOccurrenceTime(cmd.CommandID, cmd.ScheduledFor)
	if err != nil {
		return nil, err
	}

	actualTime := time.Now().UTC()
	if cmd.ActualTime != "" {
		parsed, perr := time.Parse(time.RFC3339, cmd.ActualTime)
		if perr != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid actual_time format: %v", perr))
		}
		actualTime = parsed.UTC()
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to begin transaction: %v", err))
	}

	eventLog := uow.EventLog()
	occurrence, err := eventLog.ByOccurrence(ctx, cmd.CommandID, scheduledFor)
	if err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to read occurrence: %v", err))
	}

	scheduled, ok := dose.ScheduledEvent(occurrence)
	if !ok {
		uow.Rollback(ctx)
		return nil, errors.NewNotFoundError("dose occurrence")
	}

	var taken *event.DoseEvent
	switch state := dose.Resolve(occurrence); state {
	case dose.StateScheduled, dose.StateSnoozed:
		taken = event.NewDoseTaken(scheduled, actualTime, cmd.Actor, cmd.Note)
	case dose.StateMissed:
		// late marking supersedes the missed determination
		missed, found := dose.StandingTerminal(occurrence)
		if !found {
			uow.Rollback(ctx)
			return nil, errors.NewStoreError("missed occurrence has no standing terminal event")
		}
		taken = event.NewLateTaken(missed, actualTime, cmd.Actor, cmd.Note)
	default:
		uow.Rollback(ctx)
		return nil, errors.NewValidationError(fmt.Sprintf("dose is already %s", state))
	}

	if err := repository.RetryWrite(ctx, func() error { return eventLog.Append(ctx, taken) }); err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to append taken event: %v", err))
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to commit transaction: %v", err))
	}

	publishDoseEvent(ctx, h.eventBus, taken)
	return taken, nil
}

// MarkDoseSkippedWithUoWHandler handles skipped submissions
type MarkDoseSkippedWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
}

// NewMarkDoseSkippedWithUoWHandler creates a new mark skipped handler
func NewMarkDoseSkippedWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
) *MarkDoseSkippedWithUoWHandler {
	return &MarkDoseSkippedWithUoWHandler{
		uowFactory: uowFactory,
		eventBus:   eventBus,
	}
}

// Handle processes the mark skipped command
func (h *MarkDoseSkippedWithUoWHandler) Handle(ctx context.Context, cmd *MarkDoseSkipped) (*event.DoseEvent, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if cmd.Actor == "" {
		return nil, errors.NewValidationError("actor is required")
	}

	scheduledFor, err := parseOccurrenceTime(cmd.CommandID, cmd.ScheduledFor)
	if err != nil {
		return nil, err
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to begin transaction: %v", err))
	}

	eventLog := uow.EventLog()
	occurrence, err := eventLog.ByOccurrence(ctx, cmd.CommandID, scheduledFor)
	if err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to read occurrence: %v", err))
	}

	scheduled, ok := dose.ScheduledEvent(occurrence)
	if !ok {
		uow.Rollback(ctx)
		return nil, errors.NewNotFoundError("dose occurrence")
	}

	state := dose.Resolve(occurrence)
	if state != dose.StateScheduled && state != dose.StateSnoozed && state != dose.StateMissed {
		uow.Rollback(ctx)
		return nil, errors.NewValidationError(fmt.Sprintf("dose is already %s", state))
	}

	skipped := event.NewDoseSkipped(scheduled, time.Now().UTC(), cmd.Actor, cmd.Reason)
	if state == dose.StateMissed {
		if missed, found := dose.StandingTerminal(occurrence); found {
			skipped.CorrelationID = missed.ID
		}
	}

	if err := repository.RetryWrite(ctx, func() error { return eventLog.Append(ctx, skipped) }); err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to append skipped event: %v", err))
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to commit transaction: %v", err))
	}

	publishDoseEvent(ctx, h.eventBus, skipped)
	return skipped, nil
}

// SnoozeDoseWithUoWHandler handles snooze submissions
type SnoozeDoseWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
}

// NewSnoozeDoseWithUoWHandler creates a new snooze handler
func NewSnoozeDoseWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
) *SnoozeDoseWithUoWHandler {
	return &SnoozeDoseWithUoWHandler{
		uowFactory: uowFactory,
		eventBus:   eventBus,
	}
}

// Handle processes the snooze command
func (h *SnoozeDoseWithUoWHandler) Handle(ctx context.Context, cmd *SnoozeDose) (*event.DoseEvent, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if cmd.Actor == "" {
		return nil, errors.NewValidationError("actor is required")
	}

	scheduledFor, err := parseOccurrenceTime(cmd.CommandID, cmd.ScheduledFor)
	if err != nil {
		return nil, err
	}

	minutes := cmd.SnoozeMinutes
	if minutes <= 0 {
		minutes = DefaultSnoozeMinutes
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to begin transaction: %v", err))
	}

	eventLog := uow.EventLog()
	occurrence, err := eventLog.ByOccurrence(ctx, cmd.CommandID, scheduledFor)
	if err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to read occurrence: %v", err))
	}

	scheduled, ok := dose.ScheduledEvent(occurrence)
	if !ok {
		uow.Rollback(ctx)
		return nil, errors.NewNotFoundError("dose occurrence")
	}

	state := dose.Resolve(occurrence)
	if state != dose.StateScheduled && state != dose.StateSnoozed {
		uow.Rollback(ctx)
		return nil, errors.NewValidationError(fmt.Sprintf("dose is already %s", state))
	}

	now := time.Now().UTC()
	snoozed := event.NewDoseSnoozed(scheduled, now, now.Add(time.Duration(minutes)*time.Minute), cmd.Actor)

	if err := repository.RetryWrite(ctx, func() error { return eventLog.Append(ctx, snoozed) }); err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to append snoozed event: %v", err))
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to commit transaction: %v", err))
	}

	publishDoseEvent(ctx, h.eventBus, snoozed)
	return snoozed, nil
}

// UndoDoseTakenWithUoWHandler handles the 30-second undo window. Elapsed
// time is computed from the stored taken event's timestamp; a
// client-supplied remaining time is never trusted.
type UndoDoseTakenWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
	undoWindow time.Duration
}

// NewUndoDoseTakenWithUoWHandler creates a new undo handler
func NewUndoDoseTakenWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
	undoWindow time.Duration,
) *UndoDoseTakenWithUoWHandler {
	if undoWindow <= 0 {
		undoWindow = DefaultUndoWindow
	}
	return &UndoDoseTakenWithUoWHandler{
		uowFactory: uowFactory,
		eventBus:   eventBus,
		undoWindow: undoWindow,
	}
}

// Handle processes the undo command
func (h *UndoDoseTakenWithUoWHandler) Handle(ctx context.Context, cmd *UndoDoseTaken) (*event.DoseEvent, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if cmd.Actor == "" {
		return nil, errors.NewValidationError("actor is required")
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, errors.NewValidationError("reason is required to undo a taken dose")
	}

	scheduledFor, err := parseOccurrenceTime(cmd.CommandID, cmd.ScheduledFor)
	if err != nil {
		return nil, err
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to begin transaction: %v", err))
	}

	eventLog := uow.EventLog()
	occurrence, err := eventLog.ByOccurrence(ctx, cmd.CommandID, scheduledFor)
	if err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to read occurrence: %v", err))
	}

	taken, found := dose.StandingTerminal(occurrence)
	if !found || taken.Type != event.DoseTaken {
		uow.Rollback(ctx)
		return nil, errors.NewValidationError("no taken dose to undo for this occurrence")
	}

	elapsed := time.Since(taken.Timing.Timestamp)
	if elapsed > h.undoWindow {
		uow.Rollback(ctx)
		return nil, errors.NewExpiredWindowError(
			fmt.Sprintf("undo window of %s has elapsed; use the correction workflow instead", h.undoWindow))
	}

	undone := event.NewDoseTakenUndone(taken, cmd.Actor, cmd.Reason)
	if err := repository.RetryWrite(ctx, func() error { return eventLog.Append(ctx, undone) }); err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to append undo event: %v", err))
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to commit transaction: %v", err))
	}

	publishDoseEvent(ctx, h.eventBus, undone)
	return undone, nil
}

// CorrectDoseWithUoWHandler handles post-window corrections. The correction
// supersedes the prior terminal event for reporting without deleting it.
type CorrectDoseWithUoWHandler struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
}

// NewCorrectDoseWithUoWHandler creates a new correction handler
func NewCorrectDoseWithUoWHandler(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
) *CorrectDoseWithUoWHandler {
	return &CorrectDoseWithUoWHandler{
		uowFactory: uowFactory,
		eventBus:   eventBus,
	}
}

// Handle processes the correction command
func (h *CorrectDoseWithUoWHandler) Handle(ctx context.Context, cmd *CorrectDose) (*event.DoseEvent, error) {
	if cmd == nil {
		return nil, errors.NewValidationError("command cannot be nil")
	}
	if cmd.Actor == "" {
		return nil, errors.NewValidationError("actor is required")
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, errors.NewValidationError("reason is required for a correction")
	}

	outcome := cmd.CorrectedOutcome
	if outcome != string(dose.StateMissed) && outcome != string(dose.StateSkipped) && outcome != string(dose.StateRescheduled) {
		return nil, errors.NewValidationError("corrected_outcome must be missed, skipped or rescheduled")
	}

	scheduledFor, err := parseOccurrenceTime(cmd.CommandID, cmd.ScheduledFor)
	if err != nil {
		return nil, err
	}

	uow := h.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to begin transaction: %v", err))
	}

	eventLog := uow.EventLog()
	occurrence, err := eventLog.ByOccurrence(ctx, cmd.CommandID, scheduledFor)
	if err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to read occurrence: %v", err))
	}

	target, found := dose.StandingTerminal(occurrence)
	if !found {
		uow.Rollback(ctx)
		return nil, errors.NewValidationError("occurrence has no terminal outcome to correct")
	}

	correction := event.NewDoseCorrection(target, correctionTypeFor(target.Type), outcome, cmd.Actor, cmd.Reason)
	if err := repository.RetryWrite(ctx, func() error { return eventLog.Append(ctx, correction) }); err != nil {
		uow.Rollback(ctx)
		return nil, errors.NewStoreError(fmt.Sprintf("failed to append correction event: %v", err))
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, errors.NewStoreError(fmt.Sprintf("failed to commit transaction: %v", err))
	}

	publishDoseEvent(ctx, h.eventBus, correction)
	return correction, nil
}

func correctionTypeFor(target event.DoseEventType) event.DoseEventType {
	switch target {
	case event.DoseMissed:
		return event.DoseMissedCorrected
	case event.DoseSkipped:
		return event.DoseSkippedCorrected
	default:
		return event.DoseTakenCorrected
	}
}

func parseOccurrenceTime(commandID, scheduledFor string) (time.Time, error) {
	if commandID == "" {
		return time.Time{}, errors.NewValidationError("command_id is required")
	}
	if scheduledFor == "" {
		return time.Time{}, errors.NewValidationError("scheduled_for is required")
	}
	parsed, err := time.Parse(time.RFC3339, scheduledFor)
	if err != nil {
		return time.Time{}, errors.NewValidationError(fmt.Sprintf("invalid scheduled_for format: %v", err))
	}
	return parsed.UTC(), nil
}

func publishDoseEvent(ctx context.Context, eventBus bus.EventBus, e *event.DoseEvent) {
	if err := eventBus.Publish(ctx, e); err != nil {
		log.Warn().Str("event_type", e.EventType()).Err(err).Msg("failed to publish dose event")
	}
}
