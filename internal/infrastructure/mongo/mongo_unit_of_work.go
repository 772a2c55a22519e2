package mongo

import (
	"context"
	"fmt"
	"sync"

	"dosewise/internal/domain/repository"

	"go.mongodb.org/mongo-driver/mongo"
)

// UnitOfWork implements the unit of work pattern over MongoDB sessions
type UnitOfWork struct {
	client        *mongo.Client
	database      *mongo.Database
	session       mongo.Session
	mutex         sync.Mutex
	inTransaction bool

	commandRepo *CommandRepository
	eventLog    *EventLog
}

// NewUnitOfWork creates a MongoDB unit of work. The event log's indexes are
// assumed to exist already (created at startup).
func NewUnitOfWork(client *mongo.Client, database *mongo.Database) *UnitOfWork {
	return &UnitOfWork{
		client:   client,
		database: database,
	}
}

// Begin starts a new transaction
func (uow *UnitOfWork) Begin(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.inTransaction {
		return fmt.Errorf("unit of work is already in transaction")
	}

	session, err := uow.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	uow.session = session
	uow.inTransaction = true
	uow.bindSession()

	return nil
}

// Commit commits the current transaction
func (uow *UnitOfWork) Commit(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if !uow.inTransaction {
		return fmt.Errorf("no active transaction to commit")
	}

	if err := uow.session.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	uow.endTransaction(ctx)
	return nil
}

// Rollback aborts the current transaction
func (uow *UnitOfWork) Rollback(ctx context.Context) error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if !uow.inTransaction {
		return fmt.Errorf("no active transaction to rollback")
	}

	if err := uow.session.AbortTransaction(ctx); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	uow.endTransaction(ctx)
	return nil
}

// MedicationCommandRepository returns the command repository bound to this
// unit of work
func (uow *UnitOfWork) MedicationCommandRepository() repository.MedicationCommandRepository {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.commandRepo == nil {
		uow.commandRepo = NewCommandRepository(uow.database)
		if uow.inTransaction {
			uow.commandRepo.SetTransaction(uow.session)
		}
	}
	return uow.commandRepo
}

// EventLog returns the event log bound to this unit of work
func (uow *UnitOfWork) EventLog() repository.EventLog {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.eventLog == nil {
		uow.eventLog = &EventLog{collection: uow.database.Collection("medication_events")}
		if uow.inTransaction {
			uow.eventLog.SetTransaction(uow.session)
		}
	}
	return uow.eventLog
}

// Close releases session resources
func (uow *UnitOfWork) Close() error {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()

	if uow.session != nil {
		uow.session.EndSession(context.Background())
		uow.session = nil
	}
	uow.inTransaction = false
	return nil
}

// IsInTransaction reports whether a transaction is active
func (uow *UnitOfWork) IsInTransaction() bool {
	uow.mutex.Lock()
	defer uow.mutex.Unlock()
	return uow.inTransaction
}

func (uow *UnitOfWork) bindSession() {
	if uow.commandRepo != nil {
		uow.commandRepo.SetTransaction(uow.session)
	}
	if uow.eventLog != nil {
		uow.eventLog.SetTransaction(uow.session)
	}
}

func (uow *UnitOfWork) endTransaction(ctx context.Context) {
	uow.session.EndSession(ctx)
	uow.session = nil
	uow.inTransaction = false

	if uow.commandRepo != nil {
		uow.commandRepo.SetTransaction(nil)
	}
	if uow.eventLog != nil {
		uow.eventLog.SetTransaction(nil)
	}
}

// UnitOfWorkFactory creates MongoDB units of work
type UnitOfWorkFactory struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewUnitOfWorkFactory creates a factory bound to one client and database
func NewUnitOfWorkFactory(client *mongo.Client, database *mongo.Database) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{
		client:   client,
		database: database,
	}
}

// CreateUnitOfWork returns a fresh unit of work
func (f *UnitOfWorkFactory) CreateUnitOfWork() repository.UnitOfWork {
	return NewUnitOfWork(f.client, f.database)
}
