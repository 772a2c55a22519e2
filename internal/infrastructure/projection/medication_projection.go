package projection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"dosewise/internal/domain/event"
)

// MedicationReadModel represents the read model for medication commands
type MedicationReadModel struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patient_id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"`
	Route        string    `json:"route"`
	Frequency    string    `json:"frequency"`
	Times        []string  `json:"times"`
	Timezone     string    `json:"timezone"`
	GraceTier    string    `json:"grace_tier"`
	Status       string    `json:"status"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	StatusActor  string    `json:"status_actor,omitempty"`
	Discontinued bool      `json:"discontinued"`
}

// MedicationProjection defines operations for the medication read model
type MedicationProjection interface {
	GetByID(ctx context.Context, id string) (*MedicationReadModel, error)
	ListByPatient(ctx context.Context, patientID string) ([]*MedicationReadModel, error)
	Search(ctx context.Context, patientID, name string) ([]*MedicationReadModel, error)

	// Event handlers
	HandleMedicationCreated(ctx context.Context, event *event.MedicationCreated) error
	HandleScheduleUpdated(ctx context.Context, event *event.MedicationScheduleUpdated) error
	HandleStatusChanged(ctx context.Context, event *event.MedicationStatusChanged) error
	HandleGraceTierChanged(ctx context.Context, event *event.MedicationGraceTierChanged) error
}

// InMemoryMedicationProjection implements MedicationProjection in memory
type InMemoryMedicationProjection struct {
	medications map[string]*MedicationReadModel
	mutex       sync.RWMutex
}

func NewInMemoryMedicationProjection() MedicationProjection {
	return &InMemoryMedicationProjection{
		medications: make(map[string]*MedicationReadModel),
	}
}

func (p *InMemoryMedicationProjection) GetByID(ctx context.Context, id string) (*MedicationReadModel, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	med, exists := p.medications[id]
	if !exists {
		return nil, fmt.Errorf("medication not found")
	}

	return med, nil
}

func (p *InMemoryMedicationProjection) ListByPatient(ctx context.Context, patientID string) ([]*MedicationReadModel, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	var meds []*MedicationReadModel
	for _, med := range p.medications {
		if med.PatientID == patientID {
			meds = append(meds, med)
		}
	}

	return meds, nil
}

func (p *InMemoryMedicationProjection) Search(ctx context.Context, patientID, name string) ([]*MedicationReadModel, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	var meds []*MedicationReadModel
	for _, med := range p.medications {
		matchesPatient := patientID == "" || med.PatientID == patientID
		matchesName := name == "" || strings.Contains(strings.ToLower(med.Name), strings.ToLower(name))

		if matchesPatient && matchesName {
			meds = append(meds, med)
		}
	}

	return meds, nil
}

// Event handlers
func (p *InMemoryMedicationProjection) HandleMedicationCreated(ctx context.Context, event *event.MedicationCreated) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.medications[event.CommandID] = &MedicationReadModel{
		ID:        event.CommandID,
		PatientID: event.PatientID,
		Name:      event.Name,
		Dosage:    event.Dosage,
		Route:     event.Route,
		Frequency: event.Schedule.Frequency,
		Times:     event.Schedule.Times,
		Timezone:  event.Schedule.Timezone,
		GraceTier: event.GraceTier,
		Status:    "active",
		Version:   1,
		CreatedAt: event.Timestamp,
		UpdatedAt: event.Timestamp,
	}

	return nil
}

func (p *InMemoryMedicationProjection) HandleScheduleUpdated(ctx context.Context, event *event.MedicationScheduleUpdated) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	med, exists := p.medications[event.CommandID]
	if !exists {
		return fmt.Errorf("medication not found for schedule update")
	}

	med.Frequency = event.Schedule.Frequency
	med.Times = event.Schedule.Times
	med.Timezone = event.Schedule.Timezone
	med.Version = event.EventVersion
	med.UpdatedAt = event.Timestamp

	return nil
}

func (p *InMemoryMedicationProjection) HandleStatusChanged(ctx context.Context, event *event.MedicationStatusChanged) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	med, exists := p.medications[event.CommandID]
	if !exists {
		return fmt.Errorf("medication not found for status change")
	}

	med.Status = event.NewStatus
	med.StatusActor = event.Actor
	med.Discontinued = event.NewStatus == "discontinued"
	med.Version = event.EventVersion
	med.UpdatedAt = event.Timestamp

	return nil
}

func (p *InMemoryMedicationProjection) HandleGraceTierChanged(ctx context.Context, event *event.MedicationGraceTierChanged) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	med, exists := p.medications[event.CommandID]
	if !exists {
		return fmt.Errorf("medication not found for grace tier change")
	}

	med.GraceTier = event.NewTier
	med.Version = event.EventVersion
	med.UpdatedAt = event.Timestamp

	return nil
}
