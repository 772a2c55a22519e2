package eventstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dosewise/internal/domain/aggregate"
	"dosewise/internal/domain/event"
	"dosewise/internal/domain/repository"
	"dosewise/pkg/errors"
)

// occurrenceKey identifies one (command, scheduledFor) pair
type occurrenceKey struct {
	commandID    string
	scheduledFor int64
}

// MemoryEventLog is an in-memory EventLog used by tests and local dev mode.
// It enforces the same uniqueness constraint as the Mongo index: at most one
// scheduled event per (command, scheduledFor) pair.
type MemoryEventLog struct {
	events    []*event.DoseEvent
	scheduled map[occurrenceKey]bool
	mutex     sync.RWMutex
}

// NewMemoryEventLog returns an empty in-memory event log
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{
		scheduled: make(map[occurrenceKey]bool),
	}
}

func keyFor(e *event.DoseEvent) occurrenceKey {
	return occurrenceKey{
		commandID:    e.CommandID,
		scheduledFor: e.Timing.ScheduledFor.UTC().Unix(),
	}
}

// Append stores one event, rejecting duplicate scheduled occurrences
func (s *MemoryEventLog) Append(ctx context.Context, e *event.DoseEvent) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if e.Type == event.DoseScheduled {
		k := keyFor(e)
		if s.scheduled[k] {
			return errors.ErrDuplicateOccurrence
		}
		s.scheduled[k] = true
	}

	s.events = append(s.events, e)
	return nil
}

// AppendBatch stores events one by one, skipping duplicates
func (s *MemoryEventLog) AppendBatch(ctx context.Context, events []*event.DoseEvent) (int, error) {
	inserted := 0
	for _, e := range events {
		err := s.Append(ctx, e)
		if err == errors.ErrDuplicateOccurrence {
			continue
		}
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// ByOccurrence returns all events for one (command, scheduledFor) pair
func (s *MemoryEventLog) ByOccurrence(ctx context.Context, commandID string, scheduledFor time.Time) ([]*event.DoseEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []*event.DoseEvent
	for _, e := range s.events {
		if e.CommandID == commandID && e.Timing.ScheduledFor.UTC().Unix() == scheduledFor.UTC().Unix() {
			result = append(result, e)
		}
	}
	sortByTimestamp(result)
	return result, nil
}

// ScheduledWithGraceElapsed returns scheduled events whose grace window has
// closed inside (since, cutoff]
func (s *MemoryEventLog) ScheduledWithGraceElapsed(ctx context.Context, since, cutoff time.Time) ([]*event.DoseEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []*event.DoseEvent
	for _, e := range s.events {
		if e.Type == event.DoseScheduled &&
			e.Timing.GracePeriodEnd.After(since) &&
			!e.Timing.GracePeriodEnd.After(cutoff) {
			result = append(result, e)
		}
	}
	sortByTimestamp(result)
	return result, nil
}

// HasScheduled reports whether the pair already has a scheduled event
func (s *MemoryEventLog) HasScheduled(ctx context.Context, commandID string, scheduledFor time.Time) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.scheduled[occurrenceKey{commandID: commandID, scheduledFor: scheduledFor.UTC().Unix()}], nil
}

// ByPatientSince returns a patient's events newer than the cutoff
func (s *MemoryEventLog) ByPatientSince(ctx context.Context, patientID string, since time.Time) ([]*event.DoseEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []*event.DoseEvent
	for _, e := range s.events {
		if e.PatientID == patientID && e.Timing.Timestamp.After(since) {
			result = append(result, e)
		}
	}
	sortByTimestamp(result)
	return result, nil
}

// ByCommandSince returns a command's events newer than the cutoff
func (s *MemoryEventLog) ByCommandSince(ctx context.Context, commandID string, since time.Time) ([]*event.DoseEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []*event.DoseEvent
	for _, e := range s.events {
		if e.CommandID == commandID && e.Timing.Timestamp.After(since) {
			result = append(result, e)
		}
	}
	sortByTimestamp(result)
	return result, nil
}

func sortByTimestamp(events []*event.DoseEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timing.Timestamp.Before(events[j].Timing.Timestamp)
	})
}

// MemoryCommandRepository is an in-memory MedicationCommandRepository with
// the same version-checked save semantics as the Mongo implementation
type MemoryCommandRepository struct {
	commands map[string]*aggregate.MedicationCommand
	versions map[string]int
	mutex    sync.RWMutex
}

// NewMemoryCommandRepository returns an empty in-memory command store
func NewMemoryCommandRepository() *MemoryCommandRepository {
	return &MemoryCommandRepository{
		commands: make(map[string]*aggregate.MedicationCommand),
		versions: make(map[string]int),
	}
}

// Save inserts or conditionally replaces a command
func (r *MemoryCommandRepository) Save(ctx context.Context, cmd *aggregate.MedicationCommand) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	pending := len(cmd.GetUncommittedEvents())
	expected := cmd.GetVersion() - pending

	if stored, exists := r.versions[cmd.GetID()]; exists {
		if stored != expected {
			return repository.ErrVersionConflict
		}
	} else if expected != 0 {
		return repository.ErrCommandNotFound
	}

	r.commands[cmd.GetID()] = cmd
	r.versions[cmd.GetID()] = cmd.GetVersion()
	cmd.MarkEventsAsCommitted()
	return nil
}

// PatchFields applies a partial update under the same version gate as Save.
// Unlike Mongo's generic $set, only the verification patch paths are
// understood here.
func (r *MemoryCommandRepository) PatchFields(ctx context.Context, id string, expectedVersion int, fields map[string]interface{}) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cmd, exists := r.commands[id]
	if !exists {
		return repository.ErrCommandNotFound
	}
	if r.versions[id] != expectedVersion {
		return repository.ErrVersionConflict
	}

	for path := range fields {
		switch path {
		case "medication.verification", "medication.drug_reference_id":
		default:
			return fmt.Errorf("unsupported patch path %q", path)
		}
	}
	status, _ := fields["medication.verification"].(string)
	if aggregate.VerificationStatus(status) != aggregate.VerificationVerified {
		return fmt.Errorf("unsupported verification patch value %q", status)
	}

	referenceID, _ := fields["medication.drug_reference_id"].(string)
	cmd.MarkVerified(referenceID)
	cmd.SetVersion(expectedVersion + 1)
	r.versions[id] = expectedVersion + 1
	return nil
}

// GetByID retrieves a command
func (r *MemoryCommandRepository) GetByID(ctx context.Context, id string) (*aggregate.MedicationCommand, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	cmd, exists := r.commands[id]
	if !exists {
		return nil, repository.ErrCommandNotFound
	}
	return cmd, nil
}

// ListByPatient returns all commands for one patient
func (r *MemoryCommandRepository) ListByPatient(ctx context.Context, patientID string) ([]*aggregate.MedicationCommand, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*aggregate.MedicationCommand
	for _, cmd := range r.commands {
		if cmd.PatientID() == patientID {
			result = append(result, cmd)
		}
	}
	return result, nil
}

// ListSchedulingEligible returns commands eligible for occurrence generation
func (r *MemoryCommandRepository) ListSchedulingEligible(ctx context.Context) ([]*aggregate.MedicationCommand, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*aggregate.MedicationCommand
	for _, cmd := range r.commands {
		if cmd.SchedulingEligible() {
			result = append(result, cmd)
		}
	}
	return result, nil
}
