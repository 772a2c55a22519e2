package eventstore

import (
	"context"

	"dosewise/internal/domain/repository"
)

// MemoryUnitOfWork is a unit of work over the in-memory stores. Begin,
// Commit and Rollback are no-ops; the in-memory stores apply writes
// immediately.
type MemoryUnitOfWork struct {
	commandRepo   *MemoryCommandRepository
	eventLog      *MemoryEventLog
	inTransaction bool
}

// NewMemoryUnitOfWork wraps the shared in-memory stores
func NewMemoryUnitOfWork(commandRepo *MemoryCommandRepository, eventLog *MemoryEventLog) *MemoryUnitOfWork {
	return &MemoryUnitOfWork{
		commandRepo: commandRepo,
		eventLog:    eventLog,
	}
}

func (uow *MemoryUnitOfWork) Begin(ctx context.Context) error {
	uow.inTransaction = true
	return nil
}

func (uow *MemoryUnitOfWork) Commit(ctx context.Context) error {
	uow.inTransaction = false
	return nil
}

func (uow *MemoryUnitOfWork) Rollback(ctx context.Context) error {
	uow.inTransaction = false
	return nil
}

func (uow *MemoryUnitOfWork) MedicationCommandRepository() repository.MedicationCommandRepository {
	return uow.commandRepo
}

func (uow *MemoryUnitOfWork) EventLog() repository.EventLog {
	return uow.eventLog
}

func (uow *MemoryUnitOfWork) Close() error {
	return nil
}

func (uow *MemoryUnitOfWork) IsInTransaction() bool {
	return uow.inTransaction
}

// MemoryUnitOfWorkFactory hands out units of work over one shared pair of
// in-memory stores
type MemoryUnitOfWorkFactory struct {
	CommandRepo *MemoryCommandRepository
	Log         *MemoryEventLog
}

// NewMemoryUnitOfWorkFactory creates the shared stores and the factory
func NewMemoryUnitOfWorkFactory() *MemoryUnitOfWorkFactory {
	return &MemoryUnitOfWorkFactory{
		CommandRepo: NewMemoryCommandRepository(),
		Log:         NewMemoryEventLog(),
	}
}

// CreateUnitOfWork returns a unit of work over the shared stores
func (f *MemoryUnitOfWorkFactory) CreateUnitOfWork() repository.UnitOfWork {
	return NewMemoryUnitOfWork(f.CommandRepo, f.Log)
}
