package backend_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anovik/eventflow"
	"github.com/anovik/eventflow/backend"
	"github.com/anovik/eventflow/decision"
)

// account is the aggregate state used throughout the backend tests
type account struct {
	Balance int
}

type accountCommand struct {
	Kind   string
	Amount int
}

type accountEvent struct {
	Kind   string
	Amount int
}

type accountNote struct {
	Kind   string
	Amount int
}

// accountModel is a minimal bank account domain. The Poison event kind can
// never be folded which is how the tests produce conflicted streams
type accountModel struct {
	decideCalls int
}

func (m *accountModel) Initial() account { return account{} }

func (m *accountModel) Transition(s account, e accountEvent) (account, []string) {
	switch e.Kind {
	case "Deposited":
		s.Balance += e.Amount

		return s, nil
	case "Withdrawn":
		if s.Balance < e.Amount {
			return s, []string{"InsufficientFunds"}
		}

		s.Balance -= e.Amount

		return s, nil
	}

	return s, []string{fmt.Sprintf("UnknownEvent(%s)", e.Kind)}
}

func (m *accountModel) Decide(s account, cmd backend.CommandMessage[accountCommand]) decision.Response[string, accountEvent, accountNote, struct{}] {
	m.decideCalls++

	amount := cmd.Payload.Amount

	switch cmd.Payload.Kind {
	case "Deposit":
		return decision.Of[accountNote](
			decision.Accept[string](accountEvent{Kind: "Deposited", Amount: amount}),
		).Publish(accountNote{Kind: "Deposited", Amount: amount})

	case "Withdraw":
		if s.Balance < amount {
			return decision.Of[accountNote](
				decision.Reject[accountEvent, struct{}]("InsufficientFunds"),
			)
		}

		return decision.Of[accountNote](
			decision.Accept[string](accountEvent{Kind: "Withdrawn", Amount: amount}),
		).Publish(accountNote{Kind: "Withdrawn", Amount: amount})

	case "WithdrawNotify":
		if s.Balance < amount {
			return decision.Of[accountNote](
				decision.Reject[accountEvent, struct{}]("InsufficientFunds"),
			).PublishOnRejection(accountNote{Kind: "Declined", Amount: amount})
		}

		return decision.Of[accountNote](
			decision.Accept[string](accountEvent{Kind: "Withdrawn", Amount: amount}),
		)

	case "Noop":
		return decision.Of[accountNote](decision.Pure[string, accountEvent](struct{}{}))
	}

	return decision.Of[accountNote](
		decision.Reject[accountEvent, struct{}]("UnknownCommand"),
	)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		streams:  make(map[string][]eventflow.StoredEvent),
		commands: make(map[string]bool),
	}
}

// fakeStore is an in-memory stand-in for the eventflow store honouring the
// same optimistic concurrency and idempotency contracts
type fakeStore struct {
	mu sync.Mutex

	streams  map[string][]eventflow.StoredEvent
	outbox   []eventflow.OutboxItem
	commands map[string]bool

	seq       uint64
	outboxSeq uint64

	appends   int
	conflicts int
	wantErr   error
}

func (f *fakeStore) AppendStream(_ context.Context, stream string, expectedVer int64, events []eventflow.EventToStore, opts ...eventflow.AppendOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.appends++

	if f.wantErr != nil {
		return f.wantErr
	}

	if f.conflicts > 0 {
		f.conflicts--

		return eventflow.ErrConcurrencyCheckFailed
	}

	var cfg eventflow.AppendConfig

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	if cfg.CommandID != "" && f.commands[cfg.CommandID] {
		return eventflow.ErrCommandAlreadyProcessed
	}

	if len(events) > 0 && expectedVer != int64(len(f.streams[stream])) {
		return eventflow.ErrConcurrencyCheckFailed
	}

	for i, evt := range events {
		f.seq++

		f.streams[stream] = append(f.streams[stream], eventflow.StoredEvent{
			Event:         evt.Event,
			Meta:          evt.Meta,
			ID:            fmt.Sprintf("event-%d", f.seq),
			Sequence:      f.seq,
			StreamID:      stream,
			StreamVersion: expectedVer + int64(i) + 1,
			OccurredOn:    time.Now().UTC(),
		})
	}

	for _, n := range cfg.Notifications {
		f.outboxSeq++

		f.outbox = append(f.outbox, eventflow.OutboxItem{
			Notification:  n,
			Sequence:      f.outboxSeq,
			StreamID:      stream,
			CorrelationID: cfg.CorrelationID,
			CreatedAt:     time.Now().UTC(),
		})
	}

	if cfg.CommandID != "" {
		f.commands[cfg.CommandID] = true
	}

	return nil
}

func (f *fakeStore) ReadStream(_ context.Context, stream string) ([]eventflow.StoredEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	events := f.streams[stream]

	if len(events) == 0 {
		return nil, eventflow.ErrStreamNotFound
	}

	out := make([]eventflow.StoredEvent, len(events))
	copy(out, events)

	return out, nil
}

func (f *fakeStore) ReadStreamAfter(_ context.Context, stream string, version int64) ([]eventflow.StoredEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []eventflow.StoredEvent

	for _, evt := range f.streams[stream] {
		if evt.StreamVersion > version {
			out = append(out, evt)
		}
	}

	return out, nil
}

func (f *fakeStore) IsCommandProcessed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.commands[id], nil
}

func (f *fakeStore) seed(stream string, events ...accountEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, evt := range events {
		f.seq++

		f.streams[stream] = append(f.streams[stream], eventflow.StoredEvent{
			Event:         evt,
			ID:            fmt.Sprintf("event-%d", f.seq),
			Sequence:      f.seq,
			StreamID:      stream,
			StreamVersion: int64(len(f.streams[stream]) + 1),
			OccurredOn:    time.Now().UTC(),
		})
	}
}

var errBoom = errors.New("boom")
