package event

import "time"

// ScheduleData mirrors the schedule configuration inside command lifecycle
// events
type ScheduleData struct {
	Frequency    string     `json:"frequency"`
	Times        []string   `json:"times"`
	DaysOfWeek   []int      `json:"days_of_week,omitempty"`
	DayOfMonth   int        `json:"day_of_month,omitempty"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	IsIndefinite bool       `json:"is_indefinite"`
	DosageAmount string     `json:"dosage_amount,omitempty"`
	Timezone     string     `json:"timezone"`
}

// MedicationCreated event
type MedicationCreated struct {
	CommandID  string       `json:"command_id"`
	PatientID  string       `json:"patient_id"`
	Name       string       `json:"name"`
	Dosage     string       `json:"dosage"`
	Route      string       `json:"route"`
	GraceTier  string       `json:"grace_tier"`
	Schedule   ScheduleData `json:"schedule"`
	Actor      string       `json:"actor"`
	Timestamp  time.Time    `json:"timestamp"`
}

func (e *MedicationCreated) EventType() string     { return "MedicationCreated" }
func (e *MedicationCreated) AggregateID() string   { return e.CommandID }
func (e *MedicationCreated) OccurredAt() time.Time { return e.Timestamp }
func (e *MedicationCreated) Version() int          { return 1 }

// MedicationScheduleUpdated event
type MedicationScheduleUpdated struct {
	CommandID    string       `json:"command_id"`
	Schedule     ScheduleData `json:"schedule"`
	Actor        string       `json:"actor"`
	EventVersion int          `json:"version"`
	Timestamp    time.Time    `json:"timestamp"`
}

func (e *MedicationScheduleUpdated) EventType() string     { return "MedicationScheduleUpdated" }
func (e *MedicationScheduleUpdated) AggregateID() string   { return e.CommandID }
func (e *MedicationScheduleUpdated) OccurredAt() time.Time { return e.Timestamp }
func (e *MedicationScheduleUpdated) Version() int          { return e.EventVersion }

// MedicationStatusChanged event
type MedicationStatusChanged struct {
	CommandID    string    `json:"command_id"`
	OldStatus    string    `json:"old_status"`
	NewStatus    string    `json:"new_status"`
	Actor        string    `json:"actor"`
	EventVersion int       `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *MedicationStatusChanged) EventType() string     { return "MedicationStatusChanged" }
func (e *MedicationStatusChanged) AggregateID() string   { return e.CommandID }
func (e *MedicationStatusChanged) OccurredAt() time.Time { return e.Timestamp }
func (e *MedicationStatusChanged) Version() int          { return e.EventVersion }

// MedicationGraceTierChanged event
type MedicationGraceTierChanged struct {
	CommandID    string    `json:"command_id"`
	OldTier      string    `json:"old_tier"`
	NewTier      string    `json:"new_tier"`
	Actor        string    `json:"actor"`
	EventVersion int       `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *MedicationGraceTierChanged) EventType() string     { return "MedicationGraceTierChanged" }
func (e *MedicationGraceTierChanged) AggregateID() string   { return e.CommandID }
func (e *MedicationGraceTierChanged) OccurredAt() time.Time { return e.Timestamp }
func (e *MedicationGraceTierChanged) Version() int          { return e.EventVersion }
