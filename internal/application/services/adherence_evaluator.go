package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dosewise/internal/domain/dose"
	"dosewise/internal/domain/event"
	"dosewise/internal/domain/repository"
	"dosewise/internal/infrastructure/bus"
	"dosewise/internal/infrastructure/notify"

	"github.com/rs/zerolog/log"
)

// Pattern type identifiers emitted by the evaluator
const (
	PatternConsecutiveMissed = "consecutive_missed"
	PatternLowAdherenceRate  = "low_adherence_rate"
)

// Severity tiers, ordered mildest to worst
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// AdherenceThresholds maps adherence rate floors to severities. A rate at or
// above Low is unremarkable; below Critical is the worst tier.
type AdherenceThresholds struct {
	Low               float64
	Medium            float64
	High              float64
	ConsecutiveMissed int
}

// DefaultThresholds returns the standard severity cutoffs
func DefaultThresholds() AdherenceThresholds {
	return AdherenceThresholds{
		Low:               0.90,
		Medium:            0.70,
		High:              0.50,
		ConsecutiveMissed: 3,
	}
}

// PatternRecord is one detected risk pattern for a patient
type PatternRecord struct {
	PatientID     string    `json:"patient_id"`
	CommandID     string    `json:"command_id,omitempty"`
	PatternType   string    `json:"pattern_type"`
	Severity      string    `json:"severity"`
	AdherenceRate float64   `json:"adherence_rate,omitempty"`
	MissedStreak  int       `json:"missed_streak,omitempty"`
	WindowDays    int       `json:"window_days"`
	DetectedAt    time.Time `json:"detected_at"`
	Description   string    `json:"description"`
}

// AdherenceReport is the full evaluation output for one patient
type AdherenceReport struct {
	PatientID        string          `json:"patient_id"`
	WindowDays       int             `json:"window_days"`
	TakenCount       int             `json:"taken_count"`
	MissedCount      int             `json:"missed_count"`
	SkippedCount     int             `json:"skipped_count"`
	AdherenceRate    float64         `json:"adherence_rate"`
	Patterns         []PatternRecord `json:"patterns"`
	AlertsDispatched int             `json:"alerts_dispatched"`
	EvaluatedAt      time.Time       `json:"evaluated_at"`
}

// AdherenceEvaluator scans a patient's recent dose history for risk
// patterns. It produces data and hands alerts to the external dispatcher;
// delivery is not its concern.
type AdherenceEvaluator struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
	notifier   notify.Notifier
	thresholds AdherenceThresholds
	windowDays int
}

// NewAdherenceEvaluator creates a new adherence evaluator
func NewAdherenceEvaluator(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
	notifier notify.Notifier,
	thresholds AdherenceThresholds,
	windowDays int,
) *AdherenceEvaluator {
	if windowDays <= 0 {
		windowDays = 30
	}
	if thresholds.Low == 0 && thresholds.Medium == 0 && thresholds.High == 0 {
		thresholds = DefaultThresholds()
	}
	if thresholds.ConsecutiveMissed <= 0 {
		thresholds.ConsecutiveMissed = 3
	}
	return &AdherenceEvaluator{
		uowFactory: uowFactory,
		eventBus:   eventBus,
		notifier:   notifier,
		thresholds: thresholds,
		windowDays: windowDays,
	}
}

// EvaluatePatient evaluates every command of one patient over the rolling
// window, appends pattern events for anything found, and dispatches alerts
// for medium-or-worse severities.
func (e *AdherenceEvaluator) EvaluatePatient(ctx context.Context, patientID string) (*AdherenceReport, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient id is required")
	}
	return e.evaluate(ctx, patientID, "")
}

// EvaluateCommand restricts the evaluation to one medication command
func (e *AdherenceEvaluator) EvaluateCommand(ctx context.Context, patientID, commandID string) (*AdherenceReport, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient id is required")
	}
	if commandID == "" {
		return nil, fmt.Errorf("command id is required")
	}
	return e.evaluate(ctx, patientID, commandID)
}

// Report computes the adherence report without recording pattern events or
// dispatching alerts. Used by read-only queries.
func (e *AdherenceEvaluator) Report(ctx context.Context, patientID, commandID string) (*AdherenceReport, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient id is required")
	}

	now := time.Now().UTC()
	since := now.AddDate(0, 0, -e.windowDays)

	uow := e.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin report transaction: %w", err)
	}

	events, err := e.loadEvents(ctx, uow.EventLog(), patientID, commandID, since)
	if err != nil {
		uow.Rollback(ctx)
		return nil, err
	}

	if cerr := uow.Commit(ctx); cerr != nil {
		return nil, fmt.Errorf("failed to commit report transaction: %w", cerr)
	}

	return e.buildReport(patientID, events, now), nil
}

func (e *AdherenceEvaluator) loadEvents(ctx context.Context, eventLog repository.EventLog, patientID, commandID string, since time.Time) ([]*event.DoseEvent, error) {
	var events []*event.DoseEvent
	var err error
	if commandID != "" {
		events, err = eventLog.ByCommandSince(ctx, commandID, since)
	} else {
		events, err = eventLog.ByPatientSince(ctx, patientID, since)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dose history: %w", err)
	}
	return events, nil
}

func (e *AdherenceEvaluator) evaluate(ctx context.Context, patientID, commandID string) (*AdherenceReport, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -e.windowDays)

	uow := e.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin evaluation transaction: %w", err)
	}

	eventLog := uow.EventLog()
	events, err := e.loadEvents(ctx, eventLog, patientID, commandID, since)
	if err != nil {
		uow.Rollback(ctx)
		return nil, err
	}

	report := e.buildReport(patientID, events, now)

	for _, p := range report.Patterns {
		pe := event.NewPatternDetected(p.CommandID, patientID, p.PatternType, p.Severity, p.Description)
		if aerr := repository.RetryWrite(ctx, func() error { return eventLog.Append(ctx, pe) }); aerr != nil {
			log.Warn().Str("patient_id", patientID).Err(aerr).Msg("failed to record pattern event")
			continue
		}
		if perr := e.eventBus.Publish(ctx, pe); perr != nil {
			log.Warn().Str("patient_id", patientID).Err(perr).Msg("failed to publish pattern event")
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit evaluation transaction: %w", err)
	}

	report.AlertsDispatched = e.dispatchAlerts(ctx, report)
	return report, nil
}

// buildReport computes outcome counts and risk patterns from raw events.
// Skipped doses are deliberate decisions, so they are excluded from the
// adherence denominator.
func (e *AdherenceEvaluator) buildReport(patientID string, events []*event.DoseEvent, now time.Time) *AdherenceReport {
	report := &AdherenceReport{
		PatientID:   patientID,
		WindowDays:  e.windowDays,
		EvaluatedAt: now,
	}

	byOccurrence := groupByOccurrence(events)

	type outcome struct {
		commandID    string
		scheduledFor time.Time
		state        dose.State
	}
	var outcomes []outcome
	for _, occ := range byOccurrence {
		scheduled, ok := dose.ScheduledEvent(occ)
		if !ok {
			continue
		}
		state := dose.Resolve(occ)
		switch state {
		case dose.StateTaken:
			report.TakenCount++
		case dose.StateMissed:
			report.MissedCount++
		case dose.StateSkipped:
			report.SkippedCount++
		default:
			continue
		}
		outcomes = append(outcomes, outcome{
			commandID:    scheduled.CommandID,
			scheduledFor: scheduled.Timing.ScheduledFor,
			state:        state,
		})
	}

	denominator := report.TakenCount + report.MissedCount
	if denominator > 0 {
		report.AdherenceRate = float64(report.TakenCount) / float64(denominator)
	} else {
		report.AdherenceRate = 1.0
	}

	if denominator > 0 && report.AdherenceRate < e.thresholds.Low {
		report.Patterns = append(report.Patterns, PatternRecord{
			PatientID:     patientID,
			PatternType:   PatternLowAdherenceRate,
			Severity:      e.rateSeverity(report.AdherenceRate),
			AdherenceRate: report.AdherenceRate,
			WindowDays:    e.windowDays,
			DetectedAt:    now,
			Description: fmt.Sprintf("adherence rate %.0f%% over the last %d days",
				report.AdherenceRate*100, e.windowDays),
		})
	}

	// consecutive missed runs are tracked per command in scheduled order
	sort.Slice(outcomes, func(i, j int) bool {
		if outcomes[i].commandID != outcomes[j].commandID {
			return outcomes[i].commandID < outcomes[j].commandID
		}
		return outcomes[i].scheduledFor.Before(outcomes[j].scheduledFor)
	})

	streak := 0
	prevCommand := ""
	flush := func(commandID string) {
		if streak >= e.thresholds.ConsecutiveMissed {
			severity := SeverityHigh
			if streak >= 5 {
				severity = SeverityCritical
			}
			report.Patterns = append(report.Patterns, PatternRecord{
				PatientID:    patientID,
				CommandID:    commandID,
				PatternType:  PatternConsecutiveMissed,
				Severity:     severity,
				MissedStreak: streak,
				WindowDays:   e.windowDays,
				DetectedAt:   now,
				Description:  fmt.Sprintf("%d consecutive missed doses", streak),
			})
		}
		streak = 0
	}
	for _, o := range outcomes {
		if o.commandID != prevCommand {
			flush(prevCommand)
			prevCommand = o.commandID
		}
		if o.state == dose.StateMissed {
			streak++
			continue
		}
		flush(o.commandID)
	}
	flush(prevCommand)

	return report
}

func (e *AdherenceEvaluator) rateSeverity(rate float64) string {
	switch {
	case rate >= e.thresholds.Low:
		return SeverityLow
	case rate >= e.thresholds.Medium:
		return SeverityMedium
	case rate >= e.thresholds.High:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// dispatchAlerts hands medium-or-worse patterns to the notifier and returns
// how many alerts actually went out
func (e *AdherenceEvaluator) dispatchAlerts(ctx context.Context, report *AdherenceReport) int {
	if e.notifier == nil {
		return 0
	}
	sent := 0
	for _, p := range report.Patterns {
		if p.Severity == SeverityLow {
			continue
		}
		alert := notify.Alert{
			PatientID:   report.PatientID,
			CommandID:   p.CommandID,
			PatternType: p.PatternType,
			Severity:    p.Severity,
			Message:     p.Description,
			Recipients:  []string{report.PatientID},
		}
		if err := e.notifier.Dispatch(ctx, alert); err != nil {
			log.Warn().Str("patient_id", report.PatientID).Err(err).Msg("alert dispatch failed")
			continue
		}
		sent++
	}
	return sent
}

type occurrenceKey struct {
	commandID    string
	scheduledFor int64
}

func groupByOccurrence(events []*event.DoseEvent) map[occurrenceKey][]*event.DoseEvent {
	grouped := make(map[occurrenceKey][]*event.DoseEvent)
	for _, e := range events {
		if e.Type == event.PatternDetected {
			continue
		}
		key := occurrenceKey{e.CommandID, e.Timing.ScheduledFor.UTC().Unix()}
		grouped[key] = append(grouped[key], e)
	}
	return grouped
}
