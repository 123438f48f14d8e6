package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/anovik/eventflow"
)

// ErrUnexpectedEventType is returned when a journaled event cannot be
// asserted to the model's event type - usually a sign of an encoder
// misconfiguration rather than a domain conflict
var ErrUnexpectedEventType = errors.New("unexpected event type in stream")

// EventStore is the slice of the eventflow store the runtime consumes
type EventStore interface {
	AppendStream(ctx context.Context, stream string, expectedVer int64, events []eventflow.EventToStore, opts ...eventflow.AppendOpt) error
	ReadStream(ctx context.Context, stream string) ([]eventflow.StoredEvent, error)
	ReadStreamAfter(ctx context.Context, stream string, version int64) ([]eventflow.StoredEvent, error)
	IsCommandProcessed(ctx context.Context, id string) (bool, error)
}

// NewRepository constructs a repository over the given store and model.
// snapshots may be nil in which case every Get folds the full stream
func NewRepository[S, C, E, R, N any](
	store EventStore,
	model Model[S, C, E, R, N],
	snapshots SnapshotCache[S]) *Repository[S, C, E, R, N] {

	return &Repository[S, C, E, R, N]{
		store:     store,
		model:     model,
		snapshots: snapshots,
	}
}

// Repository reconstructs current aggregate state from a snapshot plus the
// journal tail
type Repository[S, C, E, R, N any] struct {
	store     EventStore
	model     Model[S, C, E, R, N]
	snapshots SnapshotCache[S]
}

// Get returns the current state of the given stream. A stream with no
// events yields a valid initial state at version 0. Fold rejections surface
// as a conflicted state, journal errors propagate unchanged
func (r *Repository[S, C, E, R, N]) Get(ctx context.Context, stream string) (AggregateState[S, E, R], error) {
	st := AggregateState[S, E, R]{
		State: r.model.Initial(),
	}

	if r.snapshots != nil {
		cached, err := r.snapshots.Get(ctx, stream)
		if err != nil {
			return st, err
		}

		if cached != nil {
			st.State = cached.State
			st.Version = cached.Version
		}
	}

	from := st.Version

	events, err := r.store.ReadStreamAfter(ctx, stream, st.Version)
	if err != nil {
		return st, err
	}

	for _, evt := range events {
		next, err := r.step(st, evt)
		if err != nil {
			return st, err
		}

		st = next

		if st.Conflicted() {
			break
		}
	}

	if !st.Conflicted() && st.Version > from && r.snapshots != nil {
		// best-effort write back, snapshots are rebuildable
		_ = r.snapshots.Put(ctx, stream, ValidState[S]{
			State:   st.State,
			Version: st.Version,
		})
	}

	return st, nil
}

// History streams the sequence of aggregate states, one per journaled
// event, ending after the first conflicted state (inclusive) or at end of
// stream (io.EOF on Err). Call again to restart from the beginning
func (r *Repository[S, C, E, R, N]) History(ctx context.Context, stream string) (History[S, E, R], error) {
	events, err := r.store.ReadStream(ctx, stream)
	if err != nil {
		return History[S, E, R]{}, err
	}

	h := History[S, E, R]{
		Err:    make(chan error, 1),
		States: make(chan AggregateState[S, E, R]),
		close:  make(chan struct{}, 1),
	}

	go func() {
		st := AggregateState[S, E, R]{
			State: r.model.Initial(),
		}

		for _, evt := range events {
			next, err := r.step(st, evt)
			if err != nil {
				h.Err <- err

				return
			}

			st = next

			select {
			case h.States <- st:
			case <-h.close:
				h.Err <- eventflow.ErrSubscriptionClosedByClient

				return
			case <-ctx.Done():
				h.Err <- ctx.Err()

				return
			}

			if st.Conflicted() {
				break
			}
		}

		h.Err <- io.EOF
	}()

	return h, nil
}

// History is a stream of successive aggregate states
type History[S, E, R any] struct {
	Err    chan error
	States chan AggregateState[S, E, R]

	close chan struct{}
}

// Close stops the history stream
func (h History[S, E, R]) Close() {
	if h.close == nil {
		return
	}

	h.close <- struct{}{}
}

func (r *Repository[S, C, E, R, N]) step(st AggregateState[S, E, R], evt eventflow.StoredEvent) (AggregateState[S, E, R], error) {
	payload, ok := evt.Event.(E)
	if !ok {
		return st, fmt.Errorf("%w: %s at version %d", ErrUnexpectedEventType, evt.Type, evt.StreamVersion)
	}

	next, rejections := r.model.Transition(st.State, payload)

	if len(rejections) > 0 {
		evt := evt

		return AggregateState[S, E, R]{
			State:   st.State,
			Version: st.Version,
			OnEvent: &evt,
			Errors:  rejections,
		}, nil
	}

	return AggregateState[S, E, R]{
		State:   next,
		Version: evt.StreamVersion,
	}, nil
}
