package event

import (
	"time"

	"github.com/google/uuid"
)

// DoseEventType classifies entries in the dose event log
type DoseEventType string

const (
	DoseScheduled        DoseEventType = "scheduled"
	DoseTaken            DoseEventType = "taken"
	DoseMissed           DoseEventType = "missed"
	DoseSkipped          DoseEventType = "skipped"
	DoseSnoozed          DoseEventType = "snoozed"
	DoseRescheduled      DoseEventType = "rescheduled"
	DoseTakenUndone      DoseEventType = "taken_undone"
	DoseTakenCorrected   DoseEventType = "taken_corrected"
	DoseMissedCorrected  DoseEventType = "missed_corrected"
	DoseSkippedCorrected DoseEventType = "skipped_corrected"
	PatternDetected      DoseEventType = "pattern_detected"
)

// IsTerminal reports whether the type settles an occurrence's outcome
func (t DoseEventType) IsTerminal() bool {
	return t == DoseTaken || t == DoseMissed || t == DoseSkipped
}

// IsCorrective reports whether the type supersedes another event
func (t DoseEventType) IsCorrective() bool {
	switch t {
	case DoseTakenUndone, DoseTakenCorrected, DoseMissedCorrected, DoseSkippedCorrected:
		return true
	}
	return false
}

// DoseTiming captures when an event happened relative to its occurrence
type DoseTiming struct {
	Timestamp      time.Time `bson:"timestamp" json:"timestamp"`
	ScheduledFor   time.Time `bson:"scheduled_for" json:"scheduled_for"`
	GracePeriodEnd time.Time `bson:"grace_period_end" json:"grace_period_end"`
	IsOnTime       bool      `bson:"is_on_time" json:"is_on_time"`
	MinutesLate    int       `bson:"minutes_late" json:"minutes_late"`
}

// DosePayload carries event-specific data
type DosePayload struct {
	ActualTime       *time.Time `bson:"actual_time,omitempty" json:"actual_time,omitempty"`
	Dosage           string     `bson:"dosage,omitempty" json:"dosage,omitempty"`
	Actor            string     `bson:"actor,omitempty" json:"actor,omitempty"`
	Note             string     `bson:"note,omitempty" json:"note,omitempty"`
	Reason           string     `bson:"reason,omitempty" json:"reason,omitempty"`
	SnoozeUntil      *time.Time `bson:"snooze_until,omitempty" json:"snooze_until,omitempty"`
	CorrectedOutcome string     `bson:"corrected_outcome,omitempty" json:"corrected_outcome,omitempty"`
	PatternType      string     `bson:"pattern_type,omitempty" json:"pattern_type,omitempty"`
	PatternSeverity  string     `bson:"pattern_severity,omitempty" json:"pattern_severity,omitempty"`
}

// DoseEvent is one immutable fact in a medication's dose history. Events are
// only ever appended; undo and correction supersede earlier events through
// CorrelationID, never by mutation.
type DoseEvent struct {
	ID            string        `bson:"_id" json:"id"`
	CommandID     string        `bson:"command_id" json:"command_id"`
	PatientID     string        `bson:"patient_id" json:"patient_id"`
	Type          DoseEventType `bson:"event_type" json:"event_type"`
	Payload       DosePayload   `bson:"payload" json:"payload"`
	Timing        DoseTiming    `bson:"timing" json:"timing"`
	CorrelationID string        `bson:"correlation_id,omitempty" json:"correlation_id,omitempty"`
}

func (e *DoseEvent) EventType() string     { return string(e.Type) }
func (e *DoseEvent) AggregateID() string   { return e.CommandID }
func (e *DoseEvent) OccurredAt() time.Time { return e.Timing.Timestamp }
func (e *DoseEvent) Version() int          { return 0 }

// NewDoseScheduled builds the event the occurrence generator appends for one
// future dose instant. GracePeriodEnd is precomputed so the missed-dose sweep
// can query on it directly.
func NewDoseScheduled(commandID, patientID string, scheduledFor, gracePeriodEnd time.Time, dosage string) *DoseEvent {
	return &DoseEvent{
		ID:        uuid.New().String(),
		CommandID: commandID,
		PatientID: patientID,
		Type:      DoseScheduled,
		Payload: DosePayload{
			Dosage: dosage,
		},
		Timing: DoseTiming{
			Timestamp:      time.Now().UTC(),
			ScheduledFor:   scheduledFor,
			GracePeriodEnd: gracePeriodEnd,
		},
	}
}

// NewDoseTaken builds a taken event. On-time status and lateness are computed
// from the stored occurrence times, never from caller-supplied values.
func NewDoseTaken(scheduled *DoseEvent, actualTime time.Time, actor, note string) *DoseEvent {
	return &DoseEvent{
		ID:        uuid.New().String(),
		CommandID: scheduled.CommandID,
		PatientID: scheduled.PatientID,
		Type:      DoseTaken,
		Payload: DosePayload{
			ActualTime: &actualTime,
			Dosage:     scheduled.Payload.Dosage,
			Actor:      actor,
			Note:       note,
		},
		Timing: timingFor(scheduled, actualTime),
	}
}

// NewDoseSkipped builds a skipped event
func NewDoseSkipped(scheduled *DoseEvent, actualTime time.Time, actor, reason string) *DoseEvent {
	return &DoseEvent{
		ID:        uuid.New().String(),
		CommandID: scheduled.CommandID,
		PatientID: scheduled.PatientID,
		Type:      DoseSkipped,
		Payload: DosePayload{
			ActualTime: &actualTime,
			Dosage:     scheduled.Payload.Dosage,
			Actor:      actor,
			Reason:     reason,
		},
		Timing: timingFor(scheduled, actualTime),
	}
}

// NewDoseSnoozed builds a snoozed event
func NewDoseSnoozed(scheduled *DoseEvent, actualTime, snoozeUntil time.Time, actor string) *DoseEvent {
	return &DoseEvent{
		ID:        uuid.New().String(),
		CommandID: scheduled.CommandID,
		PatientID: scheduled.PatientID,
		Type:      DoseSnoozed,
		Payload: DosePayload{
			ActualTime:  &actualTime,
			Actor:       actor,
			SnoozeUntil: &snoozeUntil,
		},
		Timing: timingFor(scheduled, actualTime),
	}
}

// NewDoseMissed builds the event the missed-dose detector appends once an
// occurrence's grace window elapses without a terminal event
func NewDoseMissed(scheduled *DoseEvent, detectedAt time.Time) *DoseEvent {
	return &DoseEvent{
		ID:        uuid.New().String(),
		CommandID: scheduled.CommandID,
		PatientID: scheduled.PatientID,
		Type:      DoseMissed,
		Payload: DosePayload{
			Dosage: scheduled.Payload.Dosage,
			Actor:  "system",
		},
		Timing: DoseTiming{
			Timestamp:      detectedAt,
			ScheduledFor:   scheduled.Timing.ScheduledFor,
			GracePeriodEnd: scheduled.Timing.GracePeriodEnd,
			IsOnTime:       false,
			MinutesLate:    minutesLate(scheduled.Timing.ScheduledFor, detectedAt),
		},
	}
}

// NewDoseTakenUndone builds the undo event correlated to the taken event it
// reverses
func NewDoseTakenUndone(taken *DoseEvent, actor, reason string) *DoseEvent {
	return &DoseEvent{
		ID:        uuid.New().String(),
		CommandID: taken.CommandID,
		PatientID: taken.PatientID,
		Type:      DoseTakenUndone,
		Payload: DosePayload{
			Actor:  actor,
			Reason: reason,
		},
		Timing: DoseTiming{
			Timestamp:      time.Now().UTC(),
			ScheduledFor:   taken.Timing.ScheduledFor,
			GracePeriodEnd: taken.Timing.GracePeriodEnd,
		},
		CorrelationID: taken.ID,
	}
}

// NewDoseCorrection builds a correction event that supersedes a prior
// terminal event for reporting without deleting it
func NewDoseCorrection(target *DoseEvent, correctionType DoseEventType, correctedOutcome, actor, reason string) *DoseEvent {
	return &DoseEvent{
		ID:        uuid.New().String(),
		CommandID: target.CommandID,
		PatientID: target.PatientID,
		Type:      correctionType,
		Payload: DosePayload{
			Actor:            actor,
			Reason:           reason,
			CorrectedOutcome: correctedOutcome,
		},
		Timing: DoseTiming{
			Timestamp:      time.Now().UTC(),
			ScheduledFor:   target.Timing.ScheduledFor,
			GracePeriodEnd: target.Timing.GracePeriodEnd,
		},
		CorrelationID: target.ID,
	}
}

// NewLateTaken builds a taken event that supersedes an existing missed event.
// A dose reported after detection still counts as taken for reporting.
func NewLateTaken(missed *DoseEvent, actualTime time.Time, actor, note string) *DoseEvent {
	e := NewDoseTaken(missed, actualTime, actor, note)
	e.CorrelationID = missed.ID
	return e
}

// NewPatternDetected records an adherence pattern flagged for a patient
func NewPatternDetected(commandID, patientID, patternType, severity, note string) *DoseEvent {
	return &DoseEvent{
		ID:        uuid.New().String(),
		CommandID: commandID,
		PatientID: patientID,
		Type:      PatternDetected,
		Payload: DosePayload{
			Actor:           "system",
			Note:            note,
			PatternType:     patternType,
			PatternSeverity: severity,
		},
		Timing: DoseTiming{
			Timestamp: time.Now().UTC(),
		},
	}
}

func timingFor(scheduled *DoseEvent, actualTime time.Time) DoseTiming {
	return DoseTiming{
		Timestamp:      time.Now().UTC(),
		ScheduledFor:   scheduled.Timing.ScheduledFor,
		GracePeriodEnd: scheduled.Timing.GracePeriodEnd,
		IsOnTime:       !actualTime.After(scheduled.Timing.GracePeriodEnd),
		MinutesLate:    minutesLate(scheduled.Timing.ScheduledFor, actualTime),
	}
}

func minutesLate(scheduledFor, actual time.Time) int {
	if !actual.After(scheduledFor) {
		return 0
	}
	return int(actual.Sub(scheduledFor) / time.Minute)
}
