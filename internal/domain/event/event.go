package event

import "time"

// DomainEvent is the contract every event in the system satisfies
type DomainEvent interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
	Version() int
}
