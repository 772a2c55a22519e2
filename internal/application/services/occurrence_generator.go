package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dosewise/internal/domain/aggregate"
	"dosewise/internal/domain/event"
	"dosewise/internal/domain/grace"
	"dosewise/internal/domain/repository"
	"dosewise/internal/domain/timezone"
	"dosewise/internal/infrastructure/bus"

	"github.com/rs/zerolog/log"
)

// DefaultGenerationHorizonDays is how far ahead occurrences are materialized
const DefaultGenerationHorizonDays = 30

// GenerationError records a per-command failure without aborting the run
type GenerationError struct {
	CommandID string `json:"command_id"`
	Message   string `json:"message"`
}

// GenerationResult summarizes one generation run
type GenerationResult struct {
	Processed       int               `json:"processed"`
	EventsGenerated int               `json:"events_generated"`
	Errors          []GenerationError `json:"errors,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
}

// OccurrenceGenerator materializes scheduled dose events over a rolling
// horizon. Runs are idempotent: the event log's uniqueness constraint on
// (command, scheduled time) makes a rerun a no-op for already-covered days.
type OccurrenceGenerator struct {
	uowFactory  repository.UnitOfWorkFactory
	eventBus    bus.EventBus
	calendar    grace.HolidayCalendar
	horizonDays int
	interval    time.Duration
	stopChan    chan struct{}
	running     bool
	mu          sync.Mutex
}

// NewOccurrenceGenerator creates a new occurrence generator
func NewOccurrenceGenerator(
	uowFactory repository.UnitOfWorkFactory,
	eventBus bus.EventBus,
	calendar grace.HolidayCalendar,
	horizonDays int,
	interval time.Duration,
) *OccurrenceGenerator {
	if horizonDays <= 0 {
		horizonDays = DefaultGenerationHorizonDays
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if calendar == nil {
		calendar = grace.NoHolidays{}
	}
	return &OccurrenceGenerator{
		uowFactory:  uowFactory,
		eventBus:    eventBus,
		calendar:    calendar,
		horizonDays: horizonDays,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the periodic generation loop
func (g *OccurrenceGenerator) Start(ctx context.Context) {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	g.running = true
	g.mu.Unlock()

	log.Info().
		Dur("interval", g.interval).
		Int("horizon_days", g.horizonDays).
		Msg("Occurrence generator started")

	go g.run(ctx)
}

// Stop halts the periodic loop
func (g *OccurrenceGenerator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	g.running = false
	close(g.stopChan)
	log.Info().Msg("Occurrence generator stopped")
}

func (g *OccurrenceGenerator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	// cover commands created since the last process start
	g.generateTick(ctx, false)

	for {
		select {
		case <-ticker.C:
			g.generateTick(ctx, true)
		case <-g.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (g *OccurrenceGenerator) generateTick(ctx context.Context, gateByMidnight bool) {
	result, err := g.Generate(ctx, time.Now().UTC(), gateByMidnight)
	if err != nil {
		log.Error().Err(err).Msg("Occurrence generation run failed")
		return
	}
	log.Info().
		Int("processed", result.Processed).
		Int("events_generated", result.EventsGenerated).
		Int("errors", len(result.Errors)).
		Msg("Occurrence generation run completed")
}

// GenerateAll regenerates the horizon for every eligible command regardless
// of local time. Used by the admin trigger and on-demand backfills.
func (g *OccurrenceGenerator) GenerateAll(ctx context.Context) (*GenerationResult, error) {
	return g.Generate(ctx, time.Now().UTC(), false)
}

// Generate walks every scheduling-eligible command and appends the scheduled
// events missing from its horizon. When gateByMidnight is set, a command is
// only processed while its local clock sits inside the midnight window, so
// each patient's day rolls over at their own midnight.
func (g *OccurrenceGenerator) Generate(ctx context.Context, now time.Time, gateByMidnight bool) (*GenerationResult, error) {
	result := &GenerationResult{StartedAt: now}

	uow := g.uowFactory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin generation transaction: %w", err)
	}

	commands, err := uow.MedicationCommandRepository().ListSchedulingEligible(ctx)
	if err != nil {
		uow.Rollback(ctx)
		return nil, fmt.Errorf("failed to list eligible commands: %w", err)
	}

	eventLog := uow.EventLog()
	var published []*event.DoseEvent

	for _, cmd := range commands {
		loc, lerr := timezone.LocationFor(cmd.Schedule().Timezone)
		if lerr != nil {
			result.Errors = append(result.Errors, GenerationError{
				CommandID: cmd.ID(),
				Message:   fmt.Sprintf("unresolvable timezone %q: %v", cmd.Schedule().Timezone, lerr),
			})
			continue
		}

		if gateByMidnight && !timezone.WithinMidnightWindow(now, loc, timezone.DefaultMidnightWindow) {
			continue
		}
		result.Processed++

		events, gerr := g.generateForCommand(cmd, loc, now)
		if gerr != nil {
			result.Errors = append(result.Errors, GenerationError{
				CommandID: cmd.ID(),
				Message:   gerr.Error(),
			})
			continue
		}
		// drop occurrences already materialized by a previous run so a
		// rerun neither re-appends nor re-publishes them; the uniqueness
		// constraint in AppendBatch still backstops concurrent runs
		fresh := events[:0]
		for _, e := range events {
			exists, herr := eventLog.HasScheduled(ctx, e.CommandID, e.Timing.ScheduledFor)
			if herr != nil {
				result.Errors = append(result.Errors, GenerationError{
					CommandID: cmd.ID(),
					Message:   fmt.Sprintf("occurrence lookup failed: %v", herr),
				})
				fresh = nil
				break
			}
			if !exists {
				fresh = append(fresh, e)
			}
		}
		if len(fresh) == 0 {
			continue
		}

		var inserted int
		aerr := repository.RetryWrite(ctx, func() error {
			var werr error
			inserted, werr = eventLog.AppendBatch(ctx, fresh)
			return werr
		})
		if aerr != nil {
			result.Errors = append(result.Errors, GenerationError{
				CommandID: cmd.ID(),
				Message:   fmt.Sprintf("append failed: %v", aerr),
			})
			continue
		}
		result.EventsGenerated += inserted
		if inserted > 0 {
			published = append(published, fresh...)
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit generation transaction: %w", err)
	}

	for _, e := range published {
		if perr := g.eventBus.Publish(ctx, e); perr != nil {
			log.Warn().Str("command_id", e.CommandID).Err(perr).Msg("failed to publish scheduled event")
		}
	}

	result.FinishedAt = time.Now().UTC()
	return result, nil
}

// generateForCommand produces the scheduled events for one command from
// today through the horizon, honoring the schedule's start and end bounds.
func (g *OccurrenceGenerator) generateForCommand(cmd *aggregate.MedicationCommand, loc *time.Location, now time.Time) ([]*event.DoseEvent, error) {
	schedule := cmd.Schedule()

	// start and end are calendar dates, so they resolve to the patient's
	// midnight rather than the stored instant's local day
	from := timezone.LocalMidnight(now, loc)
	if start := timezone.CalendarDay(schedule.StartDate, loc); start.After(from) {
		from = start
	}

	until := timezone.LocalMidnight(now, loc).AddDate(0, 0, g.horizonDays)
	if !schedule.IsIndefinite && schedule.EndDate != nil {
		// doses on the end date itself are still due
		end := timezone.CalendarDay(*schedule.EndDate, loc).AddDate(0, 0, 1)
		if end.Before(until) {
			until = end
		}
	}

	times := schedule.Times
	if len(times) == 0 {
		return nil, fmt.Errorf("schedule has no dose times")
	}

	var events []*event.DoseEvent
	for day := from; day.Before(until); day = day.AddDate(0, 0, 1) {
		if !dueOnDay(schedule, day) {
			continue
		}
		for _, tod := range times {
			scheduledFor, err := timezone.At(day, tod, loc)
			if err != nil {
				return nil, fmt.Errorf("invalid dose time %q: %w", tod, err)
			}
			if scheduledFor.Before(now) {
				continue
			}
			graceEnd := grace.PeriodEnd(cmd.GraceTier(), scheduledFor, loc, g.calendar)
			events = append(events, event.NewDoseScheduled(
				cmd.ID(), cmd.PatientID(), scheduledFor.UTC(), graceEnd.UTC(), schedule.DosageAmount))
		}
	}
	return events, nil
}

// dueOnDay reports whether the cadence lands a dose on the given local day
func dueOnDay(schedule aggregate.Schedule, day time.Time) bool {
	switch schedule.Frequency {
	case aggregate.FrequencyDaily, aggregate.FrequencyTwiceDaily,
		aggregate.FrequencyThreeTimesDaily, aggregate.FrequencyFourTimesDaily:
		return true
	case aggregate.FrequencyWeekly:
		if len(schedule.DaysOfWeek) == 0 {
			return day.Weekday() == schedule.StartDate.Weekday()
		}
		for _, wd := range schedule.DaysOfWeek {
			if day.Weekday() == wd {
				return true
			}
		}
		return false
	case aggregate.FrequencyMonthly:
		target := schedule.DayOfMonth
		if target == 0 {
			target = schedule.StartDate.Day()
		}
		if day.Day() == target {
			return true
		}
		// short months: clamp to the last day
		return target > daysInMonth(day) && day.Day() == daysInMonth(day)
	case aggregate.FrequencyAsNeeded:
		return false
	default:
		log.Warn().
			Str("frequency", string(schedule.Frequency)).
			Msg("unknown frequency, falling back to daily cadence")
		return true
	}
}

func daysInMonth(day time.Time) int {
	return time.Date(day.Year(), day.Month()+1, 0, 0, 0, 0, 0, day.Location()).Day()
}
