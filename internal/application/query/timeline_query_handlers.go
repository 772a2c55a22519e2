package query

import (
	"context"
	"strings"
	"time"

	"dosewise/internal/infrastructure/projection"
	"dosewise/pkg/errors"
)

// Queries
type GetDoseTimeline struct {
	PatientID string `json:"patient_id"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

type GetCommandTimeline struct {
	CommandID string `json:"command_id"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

type GetOccurrence struct {
	CommandID    string `json:"command_id"`
	ScheduledFor string `json:"scheduled_for"`
}

// GetDoseTimelineHandler returns a patient's dose timeline from the read model
type GetDoseTimelineHandler struct {
	timelineProjection projection.DoseTimelineProjection
}

func NewGetDoseTimelineHandler(timelineProjection projection.DoseTimelineProjection) *GetDoseTimelineHandler {
	return &GetDoseTimelineHandler{
		timelineProjection: timelineProjection,
	}
}

func (h *GetDoseTimelineHandler) Handle(ctx context.Context, query GetDoseTimeline) ([]*projection.TimelineEntry, error) {
	if strings.TrimSpace(query.PatientID) == "" {
		return nil, errors.NewValidationError("patient ID is required")
	}

	from, to, err := parseRange(query.From, query.To)
	if err != nil {
		return nil, err
	}

	entries, perr := h.timelineProjection.ListByPatient(ctx, query.PatientID, from, to)
	if perr != nil {
		return nil, errors.NewInternalError("failed to get dose timeline")
	}

	return entries, nil
}

// GetCommandTimelineHandler returns one medication's dose timeline
type GetCommandTimelineHandler struct {
	timelineProjection projection.DoseTimelineProjection
}

func NewGetCommandTimelineHandler(timelineProjection projection.DoseTimelineProjection) *GetCommandTimelineHandler {
	return &GetCommandTimelineHandler{
		timelineProjection: timelineProjection,
	}
}

func (h *GetCommandTimelineHandler) Handle(ctx context.Context, query GetCommandTimeline) ([]*projection.TimelineEntry, error) {
	if strings.TrimSpace(query.CommandID) == "" {
		return nil, errors.NewValidationError("command ID is required")
	}

	from, to, err := parseRange(query.From, query.To)
	if err != nil {
		return nil, err
	}

	entries, perr := h.timelineProjection.ListByCommand(ctx, query.CommandID, from, to)
	if perr != nil {
		return nil, errors.NewInternalError("failed to get dose timeline")
	}

	return entries, nil
}

// GetOccurrenceHandler returns one occurrence's current state
type GetOccurrenceHandler struct {
	timelineProjection projection.DoseTimelineProjection
}

func NewGetOccurrenceHandler(timelineProjection projection.DoseTimelineProjection) *GetOccurrenceHandler {
	return &GetOccurrenceHandler{
		timelineProjection: timelineProjection,
	}
}

func (h *GetOccurrenceHandler) Handle(ctx context.Context, query GetOccurrence) (*projection.TimelineEntry, error) {
	if strings.TrimSpace(query.CommandID) == "" {
		return nil, errors.NewValidationError("command ID is required")
	}
	scheduledFor, err := time.Parse(time.RFC3339, query.ScheduledFor)
	if err != nil {
		return nil, errors.NewValidationError("invalid scheduled_for format, expected RFC3339")
	}

	entry, perr := h.timelineProjection.GetByOccurrence(ctx, query.CommandID, scheduledFor.UTC())
	if perr != nil {
		return nil, errors.NewNotFoundError("dose occurrence")
	}

	return entry, nil
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	if fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return from, to, errors.NewValidationError("invalid from format, expected RFC3339")
		}
		from = parsed.UTC()
	}
	if toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return from, to, errors.NewValidationError("invalid to format, expected RFC3339")
		}
		to = parsed.UTC()
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, errors.NewValidationError("to must not precede from")
	}
	return from, to, nil
}
