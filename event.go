package eventflow

import "time"

// EventToStore represents an event that is to be appended to the journal
type EventToStore struct {
	Event any

	// Optional
	ID                 string
	CausationEventID   string
	CorrelationEventID string
	Meta               map[string]string
	OccurredOn         time.Time
}

// StoredEvent holds journaled event data and meta data
type StoredEvent struct {
	Event any
	Meta  map[string]string

	ID                 string
	Sequence           uint64
	Type               string
	CausationEventID   *string
	CorrelationEventID *string
	StreamID           string
	StreamVersion      int64
	OccurredOn         time.Time
}

// OutboxItem holds an outbound notification that was committed
// atomically with the events of the same transaction.
// Sequence and CorrelationID are stable across redeliveries and can be
// used by consumers as idempotency keys
type OutboxItem struct {
	Notification any

	Sequence      uint64
	StreamID      string
	CorrelationID string
	Type          string
	CreatedAt     time.Time
	SentAt        *time.Time
}
