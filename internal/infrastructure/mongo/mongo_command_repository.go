package mongo

import (
	"context"
	"fmt"
	"time"

	"dosewise/internal/domain/aggregate"
	"dosewise/internal/domain/grace"
	"dosewise/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CommandRepository implements MedicationCommandRepository with MongoDB
// persistence. Every mutation is a version-checked conditional write; a
// stale version surfaces as repository.ErrVersionConflict.
type CommandRepository struct {
	collection *mongo.Collection
	session    mongo.Session
}

// NewCommandRepository creates a MongoDB medication command repository
func NewCommandRepository(database *mongo.Database) *CommandRepository {
	return &CommandRepository{
		collection: database.Collection("medication_commands"),
	}
}

// SetTransaction implements TransactionalRepository
func (r *CommandRepository) SetTransaction(tx interface{}) {
	if tx == nil {
		r.session = nil
		return
	}
	if session, ok := tx.(mongo.Session); ok {
		r.session = session
	}
}

// GetTransaction implements TransactionalRepository
func (r *CommandRepository) GetTransaction() interface{} {
	return r.session
}

// IsTransactional implements TransactionalRepository
func (r *CommandRepository) IsTransactional() bool {
	return r.session != nil
}

type medicationDoc struct {
	Name            string `bson:"name"`
	Dosage          string `bson:"dosage"`
	Route           string `bson:"route"`
	DrugReferenceID string `bson:"drug_reference_id,omitempty"`
	Verification    string `bson:"verification"`
}

type scheduleDoc struct {
	Frequency    string     `bson:"frequency"`
	Times        []string   `bson:"times"`
	DaysOfWeek   []int      `bson:"days_of_week,omitempty"`
	DayOfMonth   int        `bson:"day_of_month,omitempty"`
	StartDate    time.Time  `bson:"start_date"`
	EndDate      *time.Time `bson:"end_date,omitempty"`
	IsIndefinite bool       `bson:"is_indefinite"`
	DosageAmount string     `bson:"dosage_amount,omitempty"`
	Timezone     string     `bson:"timezone,omitempty"`
}

type remindersDoc struct {
	Enabled          bool     `bson:"enabled"`
	LeadTimesMinutes []int    `bson:"lead_times_minutes,omitempty"`
	Channels         []string `bson:"channels,omitempty"`
}

type commandDoc struct {
	ID              string        `bson:"_id"`
	PatientID       string        `bson:"patient_id"`
	Medication      medicationDoc `bson:"medication"`
	Schedule        scheduleDoc   `bson:"schedule"`
	Reminders       remindersDoc  `bson:"reminders"`
	GraceTier       string        `bson:"grace_tier"`
	Status          string        `bson:"status"`
	StatusChangedAt time.Time     `bson:"status_changed_at"`
	StatusChangedBy string        `bson:"status_changed_by"`
	CreatedAt       time.Time     `bson:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at"`
	Version         int           `bson:"version"`
}

// Save inserts a new command or conditionally replaces an existing one
func (r *CommandRepository) Save(ctx context.Context, cmd *aggregate.MedicationCommand) error {
	ctxToUse := ctx
	if r.session != nil {
		ctxToUse = mongo.NewSessionContext(ctx, r.session)
	}

	doc := docFromAggregate(cmd)
	expectedVersion := cmd.GetVersion() - len(cmd.GetUncommittedEvents())

	if expectedVersion <= 0 {
		if _, err := r.collection.InsertOne(ctxToUse, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return repository.ErrVersionConflict
			}
			return fmt.Errorf("failed to insert medication command: %w", err)
		}
		cmd.MarkEventsAsCommitted()
		return nil
	}

	// Conditional replace: the filter pins the version we read
	result, err := r.collection.UpdateOne(ctxToUse,
		bson.M{"_id": cmd.GetID(), "version": expectedVersion},
		bson.M{"$set": doc},
	)
	if err != nil {
		return fmt.Errorf("failed to update medication command: %w", err)
	}
	if result.MatchedCount == 0 {
		count, countErr := r.collection.CountDocuments(ctxToUse, bson.M{"_id": cmd.GetID()})
		if countErr == nil && count == 0 {
			return repository.ErrCommandNotFound
		}
		return repository.ErrVersionConflict
	}

	cmd.MarkEventsAsCommitted()
	return nil
}

// PatchFields applies a partial update with dotted field paths, still gated
// by the version check. Field paths use the stored document layout, e.g.
// "medication.verification".
func (r *CommandRepository) PatchFields(ctx context.Context, id string, expectedVersion int, fields map[string]interface{}) error {
	ctxToUse := ctx
	if r.session != nil {
		ctxToUse = mongo.NewSessionContext(ctx, r.session)
	}

	set := bson.M{"version": expectedVersion + 1, "updated_at": time.Now().UTC()}
	for path, value := range fields {
		set[path] = value
	}

	result, err := r.collection.UpdateOne(ctxToUse,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to patch medication command: %w", err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}

// GetByID retrieves a command by ID
func (r *CommandRepository) GetByID(ctx context.Context, id string) (*aggregate.MedicationCommand, error) {
	ctxToUse := ctx
	if r.session != nil {
		ctxToUse = mongo.NewSessionContext(ctx, r.session)
	}

	var doc commandDoc
	err := r.collection.FindOne(ctxToUse, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, repository.ErrCommandNotFound
		}
		return nil, fmt.Errorf("failed to get medication command: %w", err)
	}

	return aggregateFromDoc(&doc), nil
}

// ListByPatient returns all commands for one patient
func (r *CommandRepository) ListByPatient(ctx context.Context, patientID string) ([]*aggregate.MedicationCommand, error) {
	return r.list(ctx, bson.M{"patient_id": patientID})
}

// ListSchedulingEligible returns active, non-PRN, reminder-enabled commands
func (r *CommandRepository) ListSchedulingEligible(ctx context.Context) ([]*aggregate.MedicationCommand, error) {
	return r.list(ctx, bson.M{
		"status":             string(aggregate.StatusActive),
		"schedule.frequency": bson.M{"$ne": string(aggregate.FrequencyAsNeeded)},
		"reminders.enabled":  true,
	})
}

func (r *CommandRepository) list(ctx context.Context, filter bson.M) ([]*aggregate.MedicationCommand, error) {
	ctxToUse := ctx
	if r.session != nil {
		ctxToUse = mongo.NewSessionContext(ctx, r.session)
	}

	cursor, err := r.collection.Find(ctxToUse, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list medication commands: %w", err)
	}
	defer cursor.Close(ctxToUse)

	var commands []*aggregate.MedicationCommand
	for cursor.Next(ctxToUse) {
		var doc commandDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode medication command: %w", err)
		}
		commands = append(commands, aggregateFromDoc(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error listing medication commands: %w", err)
	}

	return commands, nil
}

func docFromAggregate(cmd *aggregate.MedicationCommand) commandDoc {
	med := cmd.Medication()
	sched := cmd.Schedule()
	rem := cmd.Reminders()

	days := make([]int, 0, len(sched.DaysOfWeek))
	for _, d := range sched.DaysOfWeek {
		days = append(days, int(d))
	}

	return commandDoc{
		ID:        cmd.GetID(),
		PatientID: cmd.PatientID(),
		Medication: medicationDoc{
			Name:            med.Name,
			Dosage:          med.Dosage,
			Route:           med.Route,
			DrugReferenceID: med.DrugReferenceID,
			Verification:    string(med.Verification),
		},
		Schedule: scheduleDoc{
			Frequency:    string(sched.Frequency),
			Times:        sched.Times,
			DaysOfWeek:   days,
			DayOfMonth:   sched.DayOfMonth,
			StartDate:    sched.StartDate,
			EndDate:      sched.EndDate,
			IsIndefinite: sched.IsIndefinite,
			DosageAmount: sched.DosageAmount,
			Timezone:     sched.Timezone,
		},
		Reminders: remindersDoc{
			Enabled:          rem.Enabled,
			LeadTimesMinutes: rem.LeadTimesMinutes,
			Channels:         rem.Channels,
		},
		GraceTier:       string(cmd.GraceTier()),
		Status:          string(cmd.Status()),
		StatusChangedAt: cmd.StatusChangedAt(),
		StatusChangedBy: cmd.StatusChangedBy(),
		CreatedAt:       cmd.CreatedAt(),
		UpdatedAt:       cmd.UpdatedAt(),
		Version:         cmd.GetVersion(),
	}
}

func aggregateFromDoc(doc *commandDoc) *aggregate.MedicationCommand {
	days := make([]time.Weekday, 0, len(doc.Schedule.DaysOfWeek))
	for _, d := range doc.Schedule.DaysOfWeek {
		days = append(days, time.Weekday(d))
	}

	return aggregate.Rehydrate(
		doc.ID,
		doc.PatientID,
		aggregate.MedicationInfo{
			Name:            doc.Medication.Name,
			Dosage:          doc.Medication.Dosage,
			Route:           doc.Medication.Route,
			DrugReferenceID: doc.Medication.DrugReferenceID,
			Verification:    aggregate.VerificationStatus(doc.Medication.Verification),
		},
		aggregate.Schedule{
			Frequency:    aggregate.Frequency(doc.Schedule.Frequency),
			Times:        doc.Schedule.Times,
			DaysOfWeek:   days,
			DayOfMonth:   doc.Schedule.DayOfMonth,
			StartDate:    doc.Schedule.StartDate,
			EndDate:      doc.Schedule.EndDate,
			IsIndefinite: doc.Schedule.IsIndefinite,
			DosageAmount: doc.Schedule.DosageAmount,
			Timezone:     doc.Schedule.Timezone,
		},
		aggregate.ReminderConfig{
			Enabled:          doc.Reminders.Enabled,
			LeadTimesMinutes: doc.Reminders.LeadTimesMinutes,
			Channels:         doc.Reminders.Channels,
		},
		grace.Tier(doc.GraceTier),
		aggregate.CommandStatus(doc.Status),
		doc.StatusChangedAt,
		doc.StatusChangedBy,
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.Version,
	)
}
