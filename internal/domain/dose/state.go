package dose

import (
	"sort"

	"dosewise/internal/domain/event"
)

// State is the derived current state of one dose occurrence
type State string

const (
	StateScheduled   State = "scheduled"
	StateTaken       State = "taken"
	StateMissed      State = "missed"
	StateSkipped     State = "skipped"
	StateSnoozed     State = "snoozed"
	StateRescheduled State = "rescheduled"
	StateUnknown     State = "unknown"
)

// IsTerminal reports whether the state settles the occurrence
func (s State) IsTerminal() bool {
	return s == StateTaken || s == StateMissed || s == StateSkipped
}

// Resolve derives the current state of an occurrence from its event list.
// Undo and correction events always take precedence over the event they
// correlate to, regardless of timestamp; among the remaining standing events
// the latest by timestamp wins.
func Resolve(events []*event.DoseEvent) State {
	standing := standingEvents(events)
	if len(standing) == 0 {
		return StateUnknown
	}

	latest := standing[len(standing)-1]
	switch latest.Type {
	case event.DoseScheduled:
		return StateScheduled
	case event.DoseTaken:
		return StateTaken
	case event.DoseMissed:
		return StateMissed
	case event.DoseSkipped:
		return StateSkipped
	case event.DoseSnoozed:
		return StateSnoozed
	case event.DoseRescheduled:
		return StateRescheduled
	case event.DoseTakenUndone:
		// the taken event was reverted; the occurrence is scheduled again
		return StateScheduled
	case event.DoseTakenCorrected, event.DoseMissedCorrected, event.DoseSkippedCorrected:
		return correctedState(latest)
	}
	return StateUnknown
}

// StandingTerminal returns the occurrence's effective terminal event, if any.
// A terminal event superseded by an undo or correction does not count.
func StandingTerminal(events []*event.DoseEvent) (*event.DoseEvent, bool) {
	standing := standingEvents(events)
	for i := len(standing) - 1; i >= 0; i-- {
		if standing[i].Type.IsTerminal() {
			return standing[i], true
		}
	}
	return nil, false
}

// HasTakenOrSkipped reports whether a standing taken or skipped event exists.
// The missed-dose detector uses this as its append guard: an in-flight taken
// always wins over a missed determination.
func HasTakenOrSkipped(events []*event.DoseEvent) bool {
	standing := standingEvents(events)
	for _, e := range standing {
		if e.Type == event.DoseTaken || e.Type == event.DoseSkipped {
			return true
		}
	}
	return false
}

// ScheduledEvent returns the occurrence's scheduled event, if present
func ScheduledEvent(events []*event.DoseEvent) (*event.DoseEvent, bool) {
	for _, e := range events {
		if e.Type == event.DoseScheduled {
			return e, true
		}
	}
	return nil, false
}

// standingEvents filters out superseded events and sorts the rest by
// timestamp ascending
func standingEvents(events []*event.DoseEvent) []*event.DoseEvent {
	superseded := make(map[string]bool)
	for _, e := range events {
		if e.CorrelationID != "" {
			superseded[e.CorrelationID] = true
		}
	}

	var standing []*event.DoseEvent
	for _, e := range events {
		if e.Type == event.PatternDetected {
			continue
		}
		if superseded[e.ID] {
			continue
		}
		standing = append(standing, e)
	}

	sort.SliceStable(standing, func(i, j int) bool {
		return standing[i].Timing.Timestamp.Before(standing[j].Timing.Timestamp)
	})
	return standing
}

func correctedState(e *event.DoseEvent) State {
	switch e.Payload.CorrectedOutcome {
	case string(StateMissed):
		return StateMissed
	case string(StateSkipped):
		return StateSkipped
	case string(StateRescheduled):
		return StateRescheduled
	case string(StateTaken):
		return StateTaken
	}
	return StateUnknown
}
