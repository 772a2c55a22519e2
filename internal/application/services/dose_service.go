package services

import (
	"context"

	"dosewise/internal/application/command"
	"dosewise/internal/application/query"
	"dosewise/internal/domain/event"
	"dosewise/internal/infrastructure/projection"
	"dosewise/pkg/errors"
)

// DoseService orchestrates dose action and timeline operations
type DoseService struct {
	// Command handlers (using Unit of Work)
	markTakenHandler   *command.MarkDoseTakenWithUoWHandler
	markSkippedHandler *command.MarkDoseSkippedWithUoWHandler
	snoozeHandler      *command.SnoozeDoseWithUoWHandler
	undoTakenHandler   *command.UndoDoseTakenWithUoWHandler
	correctHandler     *command.CorrectDoseWithUoWHandler

	// Query handlers
	patientTimelineHandler *query.GetDoseTimelineHandler
	commandTimelineHandler *query.GetCommandTimelineHandler
	occurrenceHandler      *query.GetOccurrenceHandler

	evaluator *AdherenceEvaluator
}

func NewDoseService(
	markTakenHandler *command.MarkDoseTakenWithUoWHandler,
	markSkippedHandler *command.MarkDoseSkippedWithUoWHandler,
	snoozeHandler *command.SnoozeDoseWithUoWHandler,
	undoTakenHandler *command.UndoDoseTakenWithUoWHandler,
	correctHandler *command.CorrectDoseWithUoWHandler,
	patientTimelineHandler *query.GetDoseTimelineHandler,
	commandTimelineHandler *query.GetCommandTimelineHandler,
	occurrenceHandler *query.GetOccurrenceHandler,
	evaluator *AdherenceEvaluator,
) *DoseService {
	return &DoseService{
		markTakenHandler:       markTakenHandler,
		markSkippedHandler:     markSkippedHandler,
		snoozeHandler:          snoozeHandler,
		undoTakenHandler:       undoTakenHandler,
		correctHandler:         correctHandler,
		patientTimelineHandler: patientTimelineHandler,
		commandTimelineHandler: commandTimelineHandler,
		occurrenceHandler:      occurrenceHandler,
		evaluator:              evaluator,
	}
}

// Command operations
func (s *DoseService) MarkTaken(ctx context.Context, cmd command.MarkDoseTaken) (*event.DoseEvent, error) {
	return s.markTakenHandler.Handle(ctx, &cmd)
}

func (s *DoseService) MarkSkipped(ctx context.Context, cmd command.MarkDoseSkipped) (*event.DoseEvent, error) {
	return s.markSkippedHandler.Handle(ctx, &cmd)
}

func (s *DoseService) Snooze(ctx context.Context, cmd command.SnoozeDose) (*event.DoseEvent, error) {
	return s.snoozeHandler.Handle(ctx, &cmd)
}

func (s *DoseService) UndoTaken(ctx context.Context, cmd command.UndoDoseTaken) (*event.DoseEvent, error) {
	return s.undoTakenHandler.Handle(ctx, &cmd)
}

func (s *DoseService) Correct(ctx context.Context, cmd command.CorrectDose) (*event.DoseEvent, error) {
	return s.correctHandler.Handle(ctx, &cmd)
}

// Query operations
func (s *DoseService) PatientTimeline(ctx context.Context, query query.GetDoseTimeline) ([]*projection.TimelineEntry, error) {
	return s.patientTimelineHandler.Handle(ctx, query)
}

func (s *DoseService) CommandTimeline(ctx context.Context, query query.GetCommandTimeline) ([]*projection.TimelineEntry, error) {
	return s.commandTimelineHandler.Handle(ctx, query)
}

func (s *DoseService) Occurrence(ctx context.Context, query query.GetOccurrence) (*projection.TimelineEntry, error) {
	return s.occurrenceHandler.Handle(ctx, query)
}

// AdherenceReport computes a read-only adherence report; no pattern events
// are recorded
func (s *DoseService) AdherenceReport(ctx context.Context, patientID, commandID string) (*AdherenceReport, error) {
	if patientID == "" {
		return nil, errors.NewValidationError("patient ID is required")
	}
	report, err := s.evaluator.Report(ctx, patientID, commandID)
	if err != nil {
		return nil, errors.NewInternalError("failed to compute adherence report")
	}
	return report, nil
}
