// Package backend implements the event-sourced command handling runtime:
// aggregate state reconstruction from the journal under snapshotting, the
// transactional command handler with optimistic concurrency retry, and the
// caches that make both fast. The user supplies a Model - a pure pair of
// event folder and command decider - and the backend drives the
// fold-decide-commit loop against an eventflow store.
package backend

import (
	"time"

	uuid2 "github.com/google/uuid"

	"github.com/anovik/eventflow/decision"
)

// Model is the user-supplied domain capability.
// S is the aggregate state, C the command payload, E the event, R the
// rejection reason and N the outbound notification type
type Model[S, C, E, R, N any] interface {
	// Initial returns the state of a stream with no events
	Initial() S

	// Transition folds a single event into the state. A non-empty slice of
	// rejections marks the event as inapplicable and the stream as
	// conflicted from that point on
	Transition(s S, e E) (S, []R)

	// Decide runs a command against the current state producing a decision
	// along with the notifications to publish once it commits
	Decide(s S, cmd CommandMessage[C]) decision.Response[R, E, N, struct{}]
}

// CommandMessage carries a command addressed to a stream.
// ID is the idempotency key - once the id is recorded as processed,
// processing it again is a no-op. Rejected commands are not recorded unless
// durable rejections are enabled, so by default they are decided again
type CommandMessage[C any] struct {
	ID       string
	Address  string
	Payload  C
	Meta     map[string]string
	IssuedAt time.Time
}

// NewCommand constructs a command message addressed to the given stream
// with a fresh UUIDv7 id
func NewCommand[C any](address string, payload C) CommandMessage[C] {
	var id string

	if uuid, err := uuid2.NewV7(); err == nil {
		id = uuid.String()
	}

	return CommandMessage[C]{
		ID:       id,
		Address:  address,
		Payload:  payload,
		IssuedAt: time.Now().UTC(),
	}
}
