package repository

import (
	"context"
	"time"

	"dosewise/internal/domain/event"
)

// EventLog is the append-only store of dose lifecycle events. Events are
// never updated or deleted. Concurrent appends are safe; duplicate scheduled
// events for one (command, scheduledFor) pair are rejected with
// errors.ErrDuplicateOccurrence by a store-level uniqueness constraint.
type EventLog interface {
	// Append stores one event
	Append(ctx context.Context, e *event.DoseEvent) error

	// AppendBatch stores a batch of events, skipping duplicates. It
	// returns the number actually inserted.
	AppendBatch(ctx context.Context, events []*event.DoseEvent) (int, error)

	// ByOccurrence returns every event referencing one (command,
	// scheduledFor) pair, ordered by append time
	ByOccurrence(ctx context.Context, commandID string, scheduledFor time.Time) ([]*event.DoseEvent, error)

	// ScheduledWithGraceElapsed returns scheduled events whose grace
	// window closed after since and at or before the cutoff. The lower
	// bound keeps a sweep from rescanning the full history.
	ScheduledWithGraceElapsed(ctx context.Context, since, cutoff time.Time) ([]*event.DoseEvent, error)

	// HasScheduled reports whether a scheduled event exists for the pair
	HasScheduled(ctx context.Context, commandID string, scheduledFor time.Time) (bool, error)

	// ByPatientSince returns a patient's events newer than the cutoff
	ByPatientSince(ctx context.Context, patientID string, since time.Time) ([]*event.DoseEvent, error)

	// ByCommandSince returns a command's events newer than the cutoff
	ByCommandSince(ctx context.Context, commandID string, since time.Time) ([]*event.DoseEvent, error)
}
