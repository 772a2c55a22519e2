package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dosewise/internal/domain/dose"
	"dosewise/internal/domain/event"
	"dosewise/internal/domain/repository"
	"dosewise/internal/infrastructure/bus"

	"github.com/rs/zerolog/log"
)

// SweepError records a per-occurrence failure during a sweep
type SweepError struct {
	CommandID    string `json:"command_id"`
	ScheduledFor string `json:"scheduled_for"`
	Message      string `json:"message"`
}

// SweepResult summarizes one detection sweep
type SweepResult struct {
	OccurrencesExamined int          `json:"occurrences_examined"`
	MissedDetected      int          `json:"missed_detected"`
	EvaluationsRun      int          `json:"evaluations_run"`
	NotificationsSent   int          `json:"notifications_sent"`
	Errors              []SweepError `json:"errors,omitempty"`
	StartedAt           time.Time    `json:"started_at"`
	FinishedAt          time.Time    `json:"finished_at"`
}

// MissedDoseDetector periodically sweeps scheduled occurrences whose grace
// window has closed and records a missed event for each. An occurrence that
// was ever taken or skipped is never marked missed, and the sweep re-checks
// that inside the same transaction as the append.
type MissedDoseDetector struct {
	uowFactory repository.UnitOfWorkFactory
	eventBus   bus.EventBus
	evaluator  *AdherenceEvaluator
	interval   time.Duration
	timeout    time.Duration
	lookback   time.Duration
	stopChan   chan struct{}
	running    bool
	mu         sync.Mutex
}

// DefaultSweepLookback bounds how far back a sweep looks for elapsed grace
// windows. Anything older was either resolved by an earlier sweep or is too
// stale to alert on.
const DefaultSweepLookback = 7 * 24 * time.Hour

// NewMissedDoseDetector creates a new missed dose detector
func NewMissedDoseDetector(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
	evaluator *AdherenceEvaluator,
	interval time.Duration,
	timeout time.Duration,
	lookback time.Duration,
) *MissedDoseDetector {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if lookback <= 0 {
		lookback = DefaultSweepLookback
	}
	return &MissedDoseDetector{
		uowFactory: uowFactory,
		eventBus:   eventBus,
		evaluator:  evaluator,
		interval:   interval,
		timeout:    timeout,
		lookback:   lookback,
		stopChan:   make(chan struct{}),
	}
}

// Start launches the periodic sweep loop
func (d *MissedDoseDetector) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	log.Info().Dur("interval", d.interval).Msg("Missed dose detector started")
	go d.run(ctx)
}

// Stop halts the periodic loop
func (d *MissedDoseDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.running = false
	close(d.stopChan)
	log.Info().Msg("Missed dose detector stopped")
}

func (d *MissedDoseDetector) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, d.timeout)
			result, err := d.Sweep(sweepCtx)
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("Missed dose sweep failed")
				continue
			}
			log.Info().
				Int("examined", result.OccurrencesExamined).
				Int("missed", result.MissedDetected).
				Int("notifications", result.NotificationsSent).
				Int("errors", len(result.Errors)).
				Msg("Missed dose sweep completed")
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep finds every scheduled occurrence with an elapsed grace window and,
// where no terminal outcome exists yet, appends a missed event. Failures are
// isolated per occurrence so one bad record never stalls the sweep.
func (d *MissedDoseDetector) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{StartedAt: time.Now().UTC()}

	uow := d.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin sweep transaction: %w", err)
	}

	eventLog := uow.EventLog()
	now := time.Now().UTC()
	candidates, err := eventLog.ScheduledWithGraceElapsed(ctx, now.Add(-d.lookback), now)
	if err != nil {
		uow.Rollback(ctx)
		return nil, fmt.Errorf("failed to query elapsed occurrences: %w", err)
	}

	var published []*event.DoseEvent
	patients := make(map[string]struct{})

	for _, scheduled := range candidates {
		result.OccurrencesExamined++

		occurrence, oerr := eventLog.ByOccurrence(ctx, scheduled.CommandID, scheduled.Timing.ScheduledFor)
		if oerr != nil {
			result.Errors = append(result.Errors, sweepError(scheduled, oerr))
			continue
		}
		if dose.HasTakenOrSkipped(occurrence) {
			continue
		}
		if _, terminal := dose.StandingTerminal(occurrence); terminal {
			continue
		}

		missed := event.NewDoseMissed(scheduled, time.Now().UTC())
		if aerr := repository.RetryWrite(ctx, func() error { return eventLog.Append(ctx, missed) }); aerr != nil {
			result.Errors = append(result.Errors, sweepError(scheduled, aerr))
			continue
		}
		result.MissedDetected++
		published = append(published, missed)
		patients[scheduled.PatientID] = struct{}{}
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sweep transaction: %w", err)
	}

	for _, e := range published {
		if perr := d.eventBus.Publish(ctx, e); perr != nil {
			log.Warn().Str("command_id", e.CommandID).Err(perr).Msg("failed to publish missed event")
		}
	}

	if d.evaluator != nil {
		for patientID := range patients {
			report, eerr := d.evaluator.EvaluatePatient(ctx, patientID)
			if eerr != nil {
				log.Warn().Str("patient_id", patientID).Err(eerr).Msg("adherence evaluation failed")
				continue
			}
			result.EvaluationsRun++
			result.NotificationsSent += report.AlertsDispatched
		}
	}

	result.FinishedAt = time.Now().UTC()
	return result, nil
}

func sweepError(scheduled *event.DoseEvent, err error) SweepError {
	return SweepError{
		CommandID:    scheduled.CommandID,
		ScheduledFor: scheduled.Timing.ScheduledFor.Format(time.RFC3339),
		Message:      err.Error(),
	}
}
