package projection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dosewise/internal/domain/dose"
	"dosewise/internal/domain/event"
)

// TimelineEntry is the read model for one dose occurrence. It folds the
// occurrence's event history into the fields a timeline view needs.
type TimelineEntry struct {
	CommandID     string     `json:"command_id" bson:"command_id"`
	PatientID     string     `json:"patient_id" bson:"patient_id"`
	ScheduledFor  time.Time  `json:"scheduled_for" bson:"scheduled_for"`
	GraceEnd      time.Time  `json:"grace_end" bson:"grace_end"`
	State         string     `json:"state" bson:"state"`
	Dosage        string     `json:"dosage,omitempty" bson:"dosage,omitempty"`
	ActualTime    *time.Time `json:"actual_time,omitempty" bson:"actual_time,omitempty"`
	IsOnTime      bool       `json:"is_on_time" bson:"is_on_time"`
	MinutesLate   int        `json:"minutes_late" bson:"minutes_late"`
	LastActor     string     `json:"last_actor,omitempty" bson:"last_actor,omitempty"`
	LastNote      string     `json:"last_note,omitempty" bson:"last_note,omitempty"`
	LastEventType string     `json:"last_event_type" bson:"last_event_type"`
	UpdatedAt     time.Time  `json:"updated_at" bson:"updated_at"`
}

// DoseTimelineProjection defines operations for the dose timeline read model
type DoseTimelineProjection interface {
	GetByOccurrence(ctx context.Context, commandID string, scheduledFor time.Time) (*TimelineEntry, error)
	ListByPatient(ctx context.Context, patientID string, from, to time.Time) ([]*TimelineEntry, error)
	ListByCommand(ctx context.Context, commandID string, from, to time.Time) ([]*TimelineEntry, error)

	// Event handler
	HandleDoseEvent(ctx context.Context, e *event.DoseEvent) error
}

// InMemoryDoseTimelineProjection implements DoseTimelineProjection in memory
type InMemoryDoseTimelineProjection struct {
	entries map[timelineKey]*TimelineEntry
	history map[timelineKey][]*event.DoseEvent
	mutex   sync.RWMutex
}

type timelineKey struct {
	commandID    string
	scheduledFor int64
}

func NewInMemoryDoseTimelineProjection() DoseTimelineProjection {
	return &InMemoryDoseTimelineProjection{
		entries: make(map[timelineKey]*TimelineEntry),
		history: make(map[timelineKey][]*event.DoseEvent),
	}
}

func (p *InMemoryDoseTimelineProjection) GetByOccurrence(ctx context.Context, commandID string, scheduledFor time.Time) (*TimelineEntry, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	entry, exists := p.entries[keyFor(commandID, scheduledFor)]
	if !exists {
		return nil, fmt.Errorf("timeline entry not found")
	}

	return entry, nil
}

func (p *InMemoryDoseTimelineProjection) ListByPatient(ctx context.Context, patientID string, from, to time.Time) ([]*TimelineEntry, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	var entries []*TimelineEntry
	for _, entry := range p.entries {
		if entry.PatientID != patientID {
			continue
		}
		if inRange(entry.ScheduledFor, from, to) {
			entries = append(entries, entry)
		}
	}

	sortEntries(entries)
	return entries, nil
}

func (p *InMemoryDoseTimelineProjection) ListByCommand(ctx context.Context, commandID string, from, to time.Time) ([]*TimelineEntry, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	var entries []*TimelineEntry
	for _, entry := range p.entries {
		if entry.CommandID != commandID {
			continue
		}
		if inRange(entry.ScheduledFor, from, to) {
			entries = append(entries, entry)
		}
	}

	sortEntries(entries)
	return entries, nil
}

// HandleDoseEvent folds one event into the occurrence's entry. Events may
// replay in any order; the entry is rebuilt from the full history each time,
// so applying the same event twice is harmless.
func (p *InMemoryDoseTimelineProjection) HandleDoseEvent(ctx context.Context, e *event.DoseEvent) error {
	if e == nil {
		return fmt.Errorf("nil dose event")
	}
	if e.Type == event.PatternDetected {
		return nil
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	key := keyFor(e.CommandID, e.Timing.ScheduledFor)
	for _, seen := range p.history[key] {
		if seen.ID == e.ID {
			return nil
		}
	}
	p.history[key] = append(p.history[key], e)
	p.entries[key] = foldOccurrence(p.history[key])

	return nil
}

func keyFor(commandID string, scheduledFor time.Time) timelineKey {
	return timelineKey{commandID, scheduledFor.UTC().Unix()}
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

func sortEntries(entries []*TimelineEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ScheduledFor.Before(entries[j].ScheduledFor)
	})
}

// foldOccurrence derives the displayed entry from an occurrence's events
func foldOccurrence(events []*event.DoseEvent) *TimelineEntry {
	scheduled, ok := dose.ScheduledEvent(events)
	if !ok {
		// terminal events can arrive before their scheduled event during
		// replay; fall back to the first event's identity fields
		scheduled = events[0]
	}

	entry := &TimelineEntry{
		CommandID:    scheduled.CommandID,
		PatientID:    scheduled.PatientID,
		ScheduledFor: scheduled.Timing.ScheduledFor,
		GraceEnd:     scheduled.Timing.GracePeriodEnd,
		Dosage:       scheduled.Payload.Dosage,
		State:        string(dose.Resolve(events)),
	}

	if terminal, found := dose.StandingTerminal(events); found {
		entry.LastActor = terminal.Payload.Actor
		entry.LastNote = terminal.Payload.Note
		entry.LastEventType = string(terminal.Type)
		entry.IsOnTime = terminal.Timing.IsOnTime
		entry.MinutesLate = terminal.Timing.MinutesLate
		if terminal.Payload.ActualTime != nil {
			entry.ActualTime = terminal.Payload.ActualTime
		}
	} else {
		entry.LastEventType = string(events[len(events)-1].Type)
	}

	latest := events[0].Timing.Timestamp
	for _, e := range events {
		if e.Timing.Timestamp.After(latest) {
			latest = e.Timing.Timestamp
		}
	}
	entry.UpdatedAt = latest

	return entry
}
