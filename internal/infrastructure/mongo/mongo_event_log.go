package mongo

import (
	"context"
	"fmt"
	"time"

	"dosewise/internal/domain/event"
	"dosewise/pkg/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventLog implements the append-only dose event log on MongoDB. A unique
// partial index on (command_id, scheduled_for) for scheduled events makes
// concurrent generator runs safe: the second writer gets a duplicate-key
// error, surfaced as errors.ErrDuplicateOccurrence.
type EventLog struct {
	collection *mongo.Collection
	session    mongo.Session
}

// NewEventLog creates the MongoDB event log and ensures its indexes
func NewEventLog(ctx context.Context, database *mongo.Database) (*EventLog, error) {
	log := &EventLog{
		collection: database.Collection("medication_events"),
	}
	if err := log.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return log, nil
}

func (l *EventLog) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "command_id", Value: 1},
				{Key: "timing.scheduled_for", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"event_type": string(event.DoseScheduled)}),
		},
		{
			Keys: bson.D{
				{Key: "event_type", Value: 1},
				{Key: "timing.grace_period_end", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "patient_id", Value: 1},
				{Key: "timing.timestamp", Value: 1},
			},
		},
	}

	if _, err := l.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create event log indexes: %w", err)
	}
	return nil
}

// SetTransaction implements TransactionalRepository
func (l *EventLog) SetTransaction(tx interface{}) {
	if tx == nil {
		l.session = nil
		return
	}
	if session, ok := tx.(mongo.Session); ok {
		l.session = session
	}
}

// GetTransaction implements TransactionalRepository
func (l *EventLog) GetTransaction() interface{} {
	return l.session
}

// IsTransactional implements TransactionalRepository
func (l *EventLog) IsTransactional() bool {
	return l.session != nil
}

func (l *EventLog) ctx(ctx context.Context) context.Context {
	if l.session != nil {
		return mongo.NewSessionContext(ctx, l.session)
	}
	return ctx
}

// Append inserts one immutable event
func (l *EventLog) Append(ctx context.Context, e *event.DoseEvent) error {
	_, err := l.collection.InsertOne(l.ctx(ctx), e)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.ErrDuplicateOccurrence
		}
		return fmt.Errorf("failed to append dose event: %w", err)
	}
	return nil
}

// AppendBatch inserts events one by one so a duplicate only suppresses
// itself, not the rest of the batch
func (l *EventLog) AppendBatch(ctx context.Context, events []*event.DoseEvent) (int, error) {
	inserted := 0
	for _, e := range events {
		err := l.Append(ctx, e)
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

// ByOccurrence returns every event for one (command, scheduledFor) pair
func (l *EventLog) ByOccurrence(ctx context.Context, commandID string, scheduledFor time.Time) ([]*event.DoseEvent, error) {
	return l.find(ctx, bson.M{
		"command_id":           commandID,
		"timing.scheduled_for": scheduledFor,
	})
}

// ScheduledWithGraceElapsed returns scheduled events whose grace window
// closed inside (since, cutoff]. The lower bound keeps the query off the
// long tail of historical occurrences.
func (l *EventLog) ScheduledWithGraceElapsed(ctx context.Context, since, cutoff time.Time) ([]*event.DoseEvent, error) {
	return l.find(ctx, bson.M{
		"event_type":              string(event.DoseScheduled),
		"timing.grace_period_end": bson.M{"$gt": since, "$lte": cutoff},
	})
}

// HasScheduled reports whether a scheduled event exists for the pair
func (l *EventLog) HasScheduled(ctx context.Context, commandID string, scheduledFor time.Time) (bool, error) {
	count, err := l.collection.CountDocuments(l.ctx(ctx), bson.M{
		"command_id":           commandID,
		"timing.scheduled_for": scheduledFor,
		"event_type":           string(event.DoseScheduled),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check scheduled occurrence: %w", err)
	}
	return count > 0, nil
}

// ByPatientSince returns a patient's events newer than the cutoff
func (l *EventLog) ByPatientSince(ctx context.Context, patientID string, since time.Time) ([]*event.DoseEvent, error) {
	return l.find(ctx, bson.M{
		"patient_id":       patientID,
		"timing.timestamp": bson.M{"$gt": since},
	})
}

// ByCommandSince returns a command's events newer than the cutoff
func (l *EventLog) ByCommandSince(ctx context.Context, commandID string, since time.Time) ([]*event.DoseEvent, error) {
	return l.find(ctx, bson.M{
		"command_id":       commandID,
		"timing.timestamp": bson.M{"$gt": since},
	})
}

func (l *EventLog) find(ctx context.Context, filter bson.M) ([]*event.DoseEvent, error) {
	ctxToUse := l.ctx(ctx)

	opts := options.Find().SetSort(bson.D{{Key: "timing.timestamp", Value: 1}})
	cursor, err := l.collection.Find(ctxToUse, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query dose events: %w", err)
	}
	defer cursor.Close(ctxToUse)

	var events []*event.DoseEvent
	for cursor.Next(ctxToUse) {
		var e event.DoseEvent
		if err := cursor.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode dose event: %w", err)
		}
		events = append(events, &e)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error querying dose events: %w", err)
	}

	return events, nil
}
