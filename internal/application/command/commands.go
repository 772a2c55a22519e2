package command

// Medication configuration commands

type CreateMedication struct {
	PatientID string `json:"patient_id"`

	Name            string `json:"name"`
	Dosage          string `json:"dosage"`
	Route           string `json:"route"`
	DrugReferenceID string `json:"drug_reference_id,omitempty"`

	Frequency    string   `json:"frequency"`
	Times        []string `json:"times"`
	DaysOfWeek   []int    `json:"days_of_week,omitempty"`
	DayOfMonth   int      `json:"day_of_month,omitempty"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date,omitempty"`
	IsIndefinite bool     `json:"is_indefinite"`
	DosageAmount string   `json:"dosage_amount,omitempty"`
	Timezone     string   `json:"timezone"`

	RemindersEnabled bool     `json:"reminders_enabled"`
	LeadTimesMinutes []int    `json:"lead_times_minutes,omitempty"`
	Channels         []string `json:"channels,omitempty"`

	Actor string `json:"actor"`
}

type UpdateMedicationSchedule struct {
	CommandID string `json:"command_id"`
	Version   int    `json:"version"`

	Frequency    string   `json:"frequency"`
	Times        []string `json:"times"`
	DaysOfWeek   []int    `json:"days_of_week,omitempty"`
	DayOfMonth   int      `json:"day_of_month,omitempty"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date,omitempty"`
	IsIndefinite bool     `json:"is_indefinite"`
	DosageAmount string   `json:"dosage_amount,omitempty"`
	Timezone     string   `json:"timezone"`

	Actor string `json:"actor"`
}

type ChangeMedicationStatus struct {
	CommandID string `json:"command_id"`
	Version   int    `json:"version"`
	Status    string `json:"status"`
	Actor     string `json:"actor"`
}

type VerifyMedication struct {
	CommandID string `json:"command_id"`
	Actor     string `json:"actor"`
}

// Dose action commands

type MarkDoseTaken struct {
	CommandID    string `json:"command_id"`
	ScheduledFor string `json:"scheduled_for"`
	ActualTime   string `json:"actual_time,omitempty"`
	Actor        string `json:"actor"`
	Note         string `json:"note,omitempty"`
}

type MarkDoseSkipped struct {
	CommandID    string `json:"command_id"`
	ScheduledFor string `json:"scheduled_for"`
	Actor        string `json:"actor"`
	Reason       string `json:"reason"`
}

type SnoozeDose struct {
	CommandID     string `json:"command_id"`
	ScheduledFor  string `json:"scheduled_for"`
	SnoozeMinutes int    `json:"snooze_minutes,omitempty"`
	Actor         string `json:"actor"`
}

type UndoDoseTaken struct {
	CommandID    string `json:"command_id"`
	ScheduledFor string `json:"scheduled_for"`
	Actor        string `json:"actor"`
	Reason       string `json:"reason"`
}

type CorrectDose struct {
	CommandID        string `json:"command_id"`
	ScheduledFor     string `json:"scheduled_for"`
	CorrectedOutcome string `json:"corrected_outcome"`
	Actor            string `json:"actor"`
	Reason           string `json:"reason"`
}
