// Package outbox drains committed notifications from the store and hands
// them to a sender, acknowledging delivered batches. Delivery is
// at-least-once - a crash between send and acknowledge causes the same
// items to be delivered again with identical sequence numbers, so senders
// and their downstream consumers must be idempotent.
package outbox

import (
	"context"
	"errors"
	"log"

	"github.com/anovik/eventflow"
)

// Source is the slice of the eventflow store the relay consumes
type Source interface {
	SubscribeOutbox(ctx context.Context, opts ...eventflow.SubAllOpt) (eventflow.OutboxSubscription, error)
	MarkAllAsSent(ctx context.Context, items []eventflow.OutboxItem) error
}

// Sender delivers a batch of outbox items downstream
type Sender interface {
	Send(ctx context.Context, items []eventflow.OutboxItem) error
}

// SenderFunc adapts a function to the Sender interface
type SenderFunc func(ctx context.Context, items []eventflow.OutboxItem) error

// Send implements Sender
func (f SenderFunc) Send(ctx context.Context, items []eventflow.OutboxItem) error {
	return f(ctx, items)
}

// RelayCfg (configure using RelayOpt)
type RelayCfg struct {
	batchSize int
}

// RelayOpt represents a relay configuration option
type RelayOpt func(RelayCfg) RelayCfg

// WithSendBatchSize caps how many pending items are delivered per Send call
func WithSendBatchSize(n int) RelayOpt {
	return func(cfg RelayCfg) RelayCfg {
		cfg.batchSize = n

		return cfg
	}
}

// NewRelay constructs a relay which drains src into sender
// TODO Configure logger
func NewRelay(src Source, sender Sender, opts ...RelayOpt) *Relay {
	cfg := RelayCfg{
		batchSize: 100,
	}

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	return &Relay{
		src:    src,
		sender: sender,
		cfg:    cfg,
		logger: log.Default(),
	}
}

// Relay is a long-running outbox drain loop. It scans pending items in
// sequence order, delivers them in batches and marks delivered batches as
// sent. Items are only acknowledged after a successful send, the pending
// scan is re-driven on every failure
type Relay struct {
	src    Source
	sender Sender
	cfg    RelayCfg
	logger *log.Logger
}

// Run starts the relay and blocks until the context is cancelled.
// Send and storage failures while draining are logged and the drain resumes
// from the first unacknowledged item. A failure to subscribe to the outbox
// is logged and returned
func (r *Relay) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		sub, err := r.src.SubscribeOutbox(ctx, eventflow.WithBatchSize(r.cfg.batchSize))
		if err != nil {
			r.logErr(err)

			return err
		}

		stop, err := r.run(ctx, sub)

		sub.Close()

		if stop {
			return nil
		}

		if err != nil {
			r.logErr(err)
		}
	}
}

func (r *Relay) run(ctx context.Context, sub eventflow.OutboxSubscription) (bool, error) {
	for {
		select {
		case item := <-sub.Items:
			batch := r.collect(sub, item)

			if err := r.sender.Send(ctx, batch); err != nil {
				// not acknowledged - the batch stays pending and will be
				// delivered again with the same sequence numbers
				return false, err
			}

			if err := r.src.MarkAllAsSent(ctx, batch); err != nil {
				return false, err
			}

		case err := <-sub.Err:
			if errors.Is(err, eventflow.ErrSubscriptionClosedByClient) {
				return true, nil
			}

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true, nil
			}

			return false, err

		case <-ctx.Done():
			return true, nil
		}
	}
}

// collect drains whatever is already buffered on the subscription without
// blocking, up to the configured batch size
func (r *Relay) collect(sub eventflow.OutboxSubscription, first eventflow.OutboxItem) []eventflow.OutboxItem {
	batch := []eventflow.OutboxItem{first}

	for len(batch) < r.cfg.batchSize {
		select {
		case item := <-sub.Items:
			batch = append(batch, item)
		default:
			return batch
		}
	}

	return batch
}

func (r *Relay) logErr(err error) {
	r.logger.Printf("outbox relay error: %v", err)
}
