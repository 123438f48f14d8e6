package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anovik/eventflow"
)

// ErrTooManyRetries is returned when the optimistic concurrency conflict
// persists through all retry attempts
var ErrTooManyRetries = errors.New("too many retries")

// CommandHandler is the transactional heart of the backend - it loads the
// aggregate, runs the decider and commits events, notifications and the
// command record as a single unit, retrying version conflicts with
// exponential backoff
type CommandHandler[S, C, E, R, N any] struct {
	store     EventStore
	model     Model[S, C, E, R, N]
	repo      *Repository[S, C, E, R, N]
	snapshots SnapshotCache[S]
	commands  *CommandStore

	maxRetry          int
	retryInitialDelay time.Duration
	durableRejections bool
}

// Process runs the command to completion and returns its business outcome.
// A nil rejection slice with a nil error means the command was accepted
// (or was an already-processed duplicate, or decided to change nothing).
// A non-empty rejection slice is the domain saying no - it is a value, not
// an error, and is never retried. Errors are infrastructure failures and
// context cancellation, propagated unchanged
func (h *CommandHandler[S, C, E, R, N]) Process(ctx context.Context, cmd CommandMessage[C]) ([]R, error) {
	if cmd.ID == "" {
		return nil, fmt.Errorf("command id must be provided")
	}

	if cmd.Address == "" {
		return nil, fmt.Errorf("command address must be provided")
	}

	if h.commands != nil && h.commands.Contains(cmd.ID) {
		return nil, nil
	}

	processed, err := h.store.IsCommandProcessed(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}

	if processed {
		h.record(cmd.ID)

		return nil, nil
	}

	for attempt := 0; ; attempt++ {
		rejections, conflict, err := h.attempt(ctx, cmd)
		if err != nil || !conflict {
			return rejections, err
		}

		if attempt >= h.maxRetry {
			return nil, fmt.Errorf("%w: command %s on stream %s", ErrTooManyRetries, cmd.ID, cmd.Address)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(h.retryInitialDelay << attempt):
		}
	}
}

// attempt performs a single load-decide-commit cycle. The second return
// value signals a version conflict that should be retried
func (h *CommandHandler[S, C, E, R, N]) attempt(ctx context.Context, cmd CommandMessage[C]) ([]R, bool, error) {
	st, err := h.repo.Get(ctx, cmd.Address)
	if err != nil {
		return nil, false, err
	}

	if st.Conflicted() {
		// the stream itself cannot fold - reject without running the decider
		return st.Errors, false, nil
	}

	resp := h.model.Decide(st.State, cmd)

	if resp.Decision.Rejected() {
		if err := h.commitRejection(ctx, cmd, st.Version, resp.Notifications); err != nil {
			return nil, false, err
		}

		// not recorded in the cache by default - deciding is pure and the
		// stream is unchanged, so a retried command re-evaluates to the
		// exact same rejection instead of reporting an empty success
		if h.durableRejections {
			h.record(cmd.ID)
		}

		return resp.Decision.Rejections(), false, nil
	}

	events := resp.Decision.Events()

	if len(events) == 0 && len(resp.Notifications) == 0 {
		// indecisive with no outward effects, nothing to commit
		h.record(cmd.ID)

		return nil, false, nil
	}

	evts := make([]eventflow.EventToStore, len(events))

	for i, e := range events {
		evts[i] = eventflow.EventToStore{
			Event: e,
			Meta:  cmd.Meta,
		}
	}

	err = h.store.AppendStream(
		ctx,
		cmd.Address,
		st.Version,
		evts,
		eventflow.WithNotifications(anys(resp.Notifications)...),
		eventflow.WithCommandID(cmd.ID),
		eventflow.WithCorrelationID(cmd.ID),
	)

	if errors.Is(err, eventflow.ErrConcurrencyCheckFailed) {
		return nil, true, nil
	}

	if errors.Is(err, eventflow.ErrCommandAlreadyProcessed) {
		// another handler won the race with the same command
		h.record(cmd.ID)

		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	h.record(cmd.ID)
	h.updateSnapshot(ctx, cmd.Address, st, events)

	return nil, false, nil
}

// commitRejection publishes rejection notifications (those added with
// PublishOnRejection) and optionally a durable command record. Without
// either there is nothing to write - rejection is a pure business outcome
func (h *CommandHandler[S, C, E, R, N]) commitRejection(ctx context.Context, cmd CommandMessage[C], version int64, notifications []N) error {
	if len(notifications) == 0 && !h.durableRejections {
		return nil
	}

	opts := []eventflow.AppendOpt{
		eventflow.WithCorrelationID(cmd.ID),
		eventflow.WithNotifications(anys(notifications)...),
	}

	if h.durableRejections {
		opts = append(opts, eventflow.WithCommandID(cmd.ID))
	}

	err := h.store.AppendStream(ctx, cmd.Address, version, nil, opts...)
	if errors.Is(err, eventflow.ErrCommandAlreadyProcessed) {
		return nil
	}

	return err
}

// updateSnapshot folds the freshly committed events onto the loaded state
// and writes the result back, best-effort
func (h *CommandHandler[S, C, E, R, N]) updateSnapshot(ctx context.Context, stream string, st AggregateState[S, E, R], events []E) {
	if h.snapshots == nil {
		return
	}

	next := st.State
	version := st.Version

	for _, e := range events {
		s, rejections := h.model.Transition(next, e)
		if len(rejections) > 0 {
			return
		}

		next = s
		version++
	}

	_ = h.snapshots.Put(ctx, stream, ValidState[S]{
		State:   next,
		Version: version,
	})
}

func (h *CommandHandler[S, C, E, R, N]) record(id string) {
	if h.commands != nil {
		h.commands.Add(id)
	}
}

func anys[N any](ns []N) []any {
	if len(ns) == 0 {
		return nil
	}

	out := make([]any, len(ns))

	for i, n := range ns {
		out[i] = n
	}

	return out
}
