package repository

import (
	"context"
)

// UnitOfWork manages repositories and transaction scope for one operation
type UnitOfWork interface {
	// Transaction management
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Repository factory methods
	MedicationCommandRepository() MedicationCommandRepository
	EventLog() EventLog

	// Resource management
	Close() error

	// Transaction state
	IsInTransaction() bool
}

// UnitOfWorkFactory creates new unit of work instances
type UnitOfWorkFactory interface {
	CreateUnitOfWork() UnitOfWork
}

// TransactionalRepository extends a repository with transaction support
type TransactionalRepository interface {
	// Set transaction context for the repository
	SetTransaction(tx interface{})

	// Get current transaction context
	GetTransaction() interface{}

	// Check if repository is in transaction
	IsTransactional() bool
}
