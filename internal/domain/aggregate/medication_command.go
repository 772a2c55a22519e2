package aggregate

import (
	"fmt"
	"time"

	"dosewise/internal/domain/event"
	"dosewise/internal/domain/grace"

	"github.com/google/uuid"
)

// Frequency describes how often doses recur
type Frequency string

const (
	FrequencyDaily           Frequency = "daily"
	FrequencyTwiceDaily      Frequency = "twice_daily"
	FrequencyThreeTimesDaily Frequency = "three_times_daily"
	FrequencyFourTimesDaily  Frequency = "four_times_daily"
	FrequencyWeekly          Frequency = "weekly"
	FrequencyMonthly         Frequency = "monthly"
	FrequencyAsNeeded        Frequency = "as_needed"
)

// IsValid reports whether the frequency is a known value
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyTwiceDaily, FrequencyThreeTimesDaily,
		FrequencyFourTimesDaily, FrequencyWeekly, FrequencyMonthly, FrequencyAsNeeded:
		return true
	}
	return false
}

// CommandStatus is the lifecycle status of a medication command
type CommandStatus string

const (
	StatusActive       CommandStatus = "active"
	StatusPaused       CommandStatus = "paused"
	StatusHeld         CommandStatus = "held"
	StatusDiscontinued CommandStatus = "discontinued"
)

// VerificationStatus captures the outcome of the drug-name lookup
type VerificationStatus string

const (
	VerificationVerified   VerificationStatus = "verified"
	VerificationUnverified VerificationStatus = "unverified"
)

// MedicationInfo describes what is being taken
type MedicationInfo struct {
	Name            string             `json:"name"`
	Dosage          string             `json:"dosage"`
	Route           string             `json:"route"`
	DrugReferenceID string             `json:"drug_reference_id,omitempty"`
	Verification    VerificationStatus `json:"verification"`
}

// Schedule describes when doses recur, in the patient's local time
type Schedule struct {
	Frequency    Frequency      `json:"frequency"`
	Times        []string       `json:"times"`
	DaysOfWeek   []time.Weekday `json:"days_of_week,omitempty"`
	DayOfMonth   int            `json:"day_of_month,omitempty"`
	StartDate    time.Time      `json:"start_date"`
	EndDate      *time.Time     `json:"end_date,omitempty"`
	IsIndefinite bool           `json:"is_indefinite"`
	DosageAmount string         `json:"dosage_amount,omitempty"`
	Timezone     string         `json:"timezone"`
}

// ReminderConfig controls reminder emission for a command
type ReminderConfig struct {
	Enabled          bool     `json:"enabled"`
	LeadTimesMinutes []int    `json:"lead_times_minutes,omitempty"`
	Channels         []string `json:"channels,omitempty"`
}

// MedicationCommand is the authoritative configuration for one prescribed
// medication of one patient. It is mutated by replacement with a version
// check; dose history lives in the event log, never here.
type MedicationCommand struct {
	id              string
	patientID       string
	medication      MedicationInfo
	schedule        Schedule
	reminders       ReminderConfig
	graceTier       grace.Tier
	status          CommandStatus
	statusChangedAt time.Time
	statusChangedBy string
	createdAt       time.Time
	updatedAt       time.Time
	version         int

	uncommittedEvents []event.DomainEvent
}

// NewMedicationCommand creates a command, classifying the grace tier from
// the medication name
func NewMedicationCommand(patientID string, medication MedicationInfo, schedule Schedule, reminders ReminderConfig, actor string) (*MedicationCommand, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patientID cannot be empty")
	}
	if medication.Name == "" {
		return nil, fmt.Errorf("medication name cannot be empty")
	}
	if actor == "" {
		return nil, fmt.Errorf("actor cannot be empty")
	}
	if err := validateSchedule(schedule); err != nil {
		return nil, err
	}
	if medication.Verification == "" {
		medication.Verification = VerificationUnverified
	}

	tier := grace.Classify(medication.Name)
	if schedule.Frequency == FrequencyAsNeeded {
		tier = grace.TierPRN
	}

	now := time.Now().UTC()
	cmd := &MedicationCommand{
		id:              uuid.New().String(),
		patientID:       patientID,
		medication:      medication,
		schedule:        schedule,
		reminders:       reminders,
		graceTier:       tier,
		status:          StatusActive,
		statusChangedAt: now,
		statusChangedBy: actor,
		createdAt:       now,
		updatedAt:       now,
		version:         1,
	}

	cmd.raiseEvent(&event.MedicationCreated{
		CommandID: cmd.id,
		PatientID: patientID,
		Name:      medication.Name,
		Dosage:    medication.Dosage,
		Route:     medication.Route,
		GraceTier: string(tier),
		Schedule:  scheduleData(schedule),
		Actor:     actor,
		Timestamp: now,
	})

	return cmd, nil
}

// UpdateSchedule replaces the schedule configuration
func (c *MedicationCommand) UpdateSchedule(schedule Schedule, actor string) error {
	if c.status == StatusDiscontinued {
		return fmt.Errorf("cannot update a discontinued medication")
	}
	if err := validateSchedule(schedule); err != nil {
		return err
	}

	c.raiseEvent(&event.MedicationScheduleUpdated{
		CommandID:    c.id,
		Schedule:     scheduleData(schedule),
		Actor:        actor,
		EventVersion: c.version + 1,
		Timestamp:    time.Now().UTC(),
	})

	return nil
}

// Pause suspends occurrence generation without losing configuration
func (c *MedicationCommand) Pause(actor string) error {
	return c.changeStatus(StatusPaused, actor)
}

// Resume reactivates a paused or held medication
func (c *MedicationCommand) Resume(actor string) error {
	if c.status == StatusDiscontinued {
		return fmt.Errorf("cannot resume a discontinued medication")
	}
	return c.changeStatus(StatusActive, actor)
}

// Hold marks the medication clinically held
func (c *MedicationCommand) Hold(actor string) error {
	return c.changeStatus(StatusHeld, actor)
}

// Discontinue ends the medication. The command and its history are retained;
// discontinuation is a status transition, never a delete.
func (c *MedicationCommand) Discontinue(actor string) error {
	return c.changeStatus(StatusDiscontinued, actor)
}

// SetGraceTier overrides the keyword-derived tier
func (c *MedicationCommand) SetGraceTier(tier grace.Tier, actor string) error {
	if !tier.IsValid() {
		return fmt.Errorf("invalid grace tier: %s", tier)
	}
	if tier == c.graceTier {
		return fmt.Errorf("medication already in tier %s", tier)
	}

	c.raiseEvent(&event.MedicationGraceTierChanged{
		CommandID:    c.id,
		OldTier:      string(c.graceTier),
		NewTier:      string(tier),
		Actor:        actor,
		EventVersion: c.version + 1,
		Timestamp:    time.Now().UTC(),
	})

	return nil
}

// MarkVerified records the drug-name verification outcome
func (c *MedicationCommand) MarkVerified(referenceID string) {
	c.medication.Verification = VerificationVerified
	c.medication.DrugReferenceID = referenceID
	c.updatedAt = time.Now().UTC()
}

// SchedulingEligible reports whether the generator should produce
// occurrences for this command
func (c *MedicationCommand) SchedulingEligible() bool {
	return c.status == StatusActive &&
		c.schedule.Frequency != FrequencyAsNeeded &&
		c.reminders.Enabled
}

func (c *MedicationCommand) changeStatus(newStatus CommandStatus, actor string) error {
	if c.status == newStatus {
		return fmt.Errorf("medication is already %s", newStatus)
	}

	c.raiseEvent(&event.MedicationStatusChanged{
		CommandID:    c.id,
		OldStatus:    string(c.status),
		NewStatus:    string(newStatus),
		Actor:        actor,
		EventVersion: c.version + 1,
		Timestamp:    time.Now().UTC(),
	})

	return nil
}

func (c *MedicationCommand) GetUncommittedEvents() []event.DomainEvent {
	return c.uncommittedEvents
}

func (c *MedicationCommand) ClearUncommittedEvents() {
	c.uncommittedEvents = nil
}

func (c *MedicationCommand) raiseEvent(ev event.DomainEvent) {
	c.uncommittedEvents = append(c.uncommittedEvents, ev)
	c.applyEvent(ev)
}

func (c *MedicationCommand) applyEvent(ev event.DomainEvent) error {
	switch e := ev.(type) {
	case *event.MedicationCreated:
		c.id = e.CommandID
		c.patientID = e.PatientID
		c.medication.Name = e.Name
		c.medication.Dosage = e.Dosage
		c.medication.Route = e.Route
		c.graceTier = grace.Tier(e.GraceTier)
		c.schedule = scheduleFromData(e.Schedule)
		c.status = StatusActive
		c.statusChangedAt = e.Timestamp
		c.statusChangedBy = e.Actor
		c.createdAt = e.Timestamp
		c.updatedAt = e.Timestamp
		c.version = 1

	case *event.MedicationScheduleUpdated:
		c.schedule = scheduleFromData(e.Schedule)
		c.version = e.EventVersion
		c.updatedAt = e.Timestamp

	case *event.MedicationStatusChanged:
		c.status = CommandStatus(e.NewStatus)
		c.statusChangedAt = e.Timestamp
		c.statusChangedBy = e.Actor
		c.version = e.EventVersion
		c.updatedAt = e.Timestamp

	case *event.MedicationGraceTierChanged:
		c.graceTier = grace.Tier(e.NewTier)
		c.version = e.EventVersion
		c.updatedAt = e.Timestamp

	default:
		return fmt.Errorf("unknown event type: %T", ev)
	}

	return nil
}

func validateSchedule(s Schedule) error {
	if !s.Frequency.IsValid() {
		return fmt.Errorf("invalid frequency: %s", s.Frequency)
	}
	if s.Frequency != FrequencyAsNeeded && len(s.Times) == 0 {
		return fmt.Errorf("scheduled medications require at least one time of day")
	}
	for _, t := range s.Times {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("invalid time of day %q: must be 24-hour HH:MM", t)
		}
	}
	if s.StartDate.IsZero() {
		return fmt.Errorf("start date is required")
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("end date must not be before start date")
	}
	if s.Frequency == FrequencyMonthly && (s.DayOfMonth < 1 || s.DayOfMonth > 31) {
		return fmt.Errorf("monthly schedules require a day of month between 1 and 31")
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q", s.Timezone)
		}
	}
	return nil
}

func scheduleData(s Schedule) event.ScheduleData {
	days := make([]int, 0, len(s.DaysOfWeek))
	for _, d := range s.DaysOfWeek {
		days = append(days, int(d))
	}
	return event.ScheduleData{
		Frequency:    string(s.Frequency),
		Times:        s.Times,
		DaysOfWeek:   days,
		DayOfMonth:   s.DayOfMonth,
		StartDate:    s.StartDate,
		EndDate:      s.EndDate,
		IsIndefinite: s.IsIndefinite,
		DosageAmount: s.DosageAmount,
		Timezone:     s.Timezone,
	}
}

func scheduleFromData(d event.ScheduleData) Schedule {
	days := make([]time.Weekday, 0, len(d.DaysOfWeek))
	for _, v := range d.DaysOfWeek {
		days = append(days, time.Weekday(v))
	}
	return Schedule{
		Frequency:    Frequency(d.Frequency),
		Times:        d.Times,
		DaysOfWeek:   days,
		DayOfMonth:   d.DayOfMonth,
		StartDate:    d.StartDate,
		EndDate:      d.EndDate,
		IsIndefinite: d.IsIndefinite,
		DosageAmount: d.DosageAmount,
		Timezone:     d.Timezone,
	}
}

// Getters
func (c *MedicationCommand) ID() string                 { return c.id }
func (c *MedicationCommand) PatientID() string          { return c.patientID }
func (c *MedicationCommand) Medication() MedicationInfo { return c.medication }
func (c *MedicationCommand) Schedule() Schedule         { return c.schedule }
func (c *MedicationCommand) Reminders() ReminderConfig  { return c.reminders }
func (c *MedicationCommand) GraceTier() grace.Tier      { return c.graceTier }
func (c *MedicationCommand) Status() CommandStatus      { return c.status }
func (c *MedicationCommand) StatusChangedAt() time.Time { return c.statusChangedAt }
func (c *MedicationCommand) StatusChangedBy() string    { return c.statusChangedBy }
func (c *MedicationCommand) CreatedAt() time.Time       { return c.createdAt }
func (c *MedicationCommand) UpdatedAt() time.Time       { return c.updatedAt }
func (c *MedicationCommand) Version() int               { return c.version }

// Entity interface implementation
func (c *MedicationCommand) GetID() string    { return c.id }
func (c *MedicationCommand) GetVersion() int  { return c.version }
func (c *MedicationCommand) SetVersion(v int) { c.version = v }

// MarkEventsAsCommitted clears uncommitted events after a successful save
func (c *MedicationCommand) MarkEventsAsCommitted() {
	c.uncommittedEvents = nil
}

// Rehydrate restores aggregate state from a stored snapshot without raising
// events. Used by repositories when loading.
func Rehydrate(
	id, patientID string,
	medication MedicationInfo,
	schedule Schedule,
	reminders ReminderConfig,
	tier grace.Tier,
	status CommandStatus,
	statusChangedAt time.Time,
	statusChangedBy string,
	createdAt, updatedAt time.Time,
	version int,
) *MedicationCommand {
	return &MedicationCommand{
		id:              id,
		patientID:       patientID,
		medication:      medication,
		schedule:        schedule,
		reminders:       reminders,
		graceTier:       tier,
		status:          status,
		statusChangedAt: statusChangedAt,
		statusChangedBy: statusChangedBy,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
		version:         version,
	}
}
