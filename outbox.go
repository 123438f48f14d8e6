package eventflow

import (
	"context"
	"time"
)

type gormOutboxItem struct {
	Sequence      uint64 `gorm:"autoIncrement;primaryKey"`
	StreamID      string `gorm:"index"`
	CorrelationID string `gorm:"index"`
	Type          string
	Data          string
	CreatedAt     time.Time
	SentAt        *time.Time `gorm:"index"`
}

// TableName returns gorm table name
func (oi *gormOutboxItem) TableName() string { return "outbox" }

// OutboxSubscription streams pending outbox items in sequence order.
// After the initial scan of unsent items it keeps polling for new ones,
// so a drained subscription blocks until more items get committed
type OutboxSubscription struct {
	Err   chan error
	Items chan OutboxItem

	close chan struct{}
}

// Close closes the subscription and halts the polling of the database
func (s OutboxSubscription) Close() {
	if s.close == nil {
		return
	}

	s.close <- struct{}{}
}

// ReadOutbox performs a one-shot scan of pending (unsent) outbox items in
// sequence order, up to the provided limit
func (s *Store) ReadOutbox(ctx context.Context, limit int) ([]OutboxItem, error) {
	var items []gormOutboxItem

	if err := s.db.
		WithContext(ctx).
		Where("sent_at IS NULL").
		Order("sequence asc").
		Limit(limit).
		Find(&items).Error; err != nil {

		return nil, err
	}

	return s.decodeOutboxItems(items)
}

// SubscribeOutbox creates a subscription which streams pending outbox items.
// The reader is pull-based - items are fetched in batches and the consumer's
// processing rate governs the drain. Items remain visible to future
// subscriptions until acknowledged with MarkAllAsSent, which is what makes
// delivery at-least-once
func (s *Store) SubscribeOutbox(ctx context.Context, opts ...SubAllOpt) (OutboxSubscription, error) {
	cfg, err := newSubAllConfig(opts...)
	if err != nil {
		return OutboxSubscription{}, err
	}

	sub := OutboxSubscription{
		Err:   make(chan error, 1),
		Items: make(chan OutboxItem, cfg.batchSize),
		close: make(chan struct{}, 1),
	}

	go func() {
		// sequence of the last item handed to the consumer, so that slow
		// acknowledgements do not cause duplicate emissions within the
		// lifetime of a single subscription
		var after uint64

		for {
			select {
			case <-sub.close:
				sub.Err <- ErrSubscriptionClosedByClient

				return
			case <-ctx.Done():
				sub.Err <- ctx.Err()

				return
			case <-time.After(cfg.pollInterval):
				var items []gormOutboxItem

				if err := s.db.
					Where("sent_at IS NULL").
					Where("sequence > ?", after).
					Order("sequence asc").
					Limit(cfg.batchSize).
					Find(&items).Error; err != nil {
					sub.Err <- err

					return
				}

				if len(items) == 0 {
					break
				}

				after = items[len(items)-1].Sequence

				decoded, err := s.decodeOutboxItems(items)
				if err != nil {
					sub.Err <- err

					return
				}

				for _, item := range decoded {
					sub.Items <- item
				}
			}
		}
	}()

	return sub, nil
}

// MarkAllAsSent durably acknowledges the provided outbox items. Exactly the
// given sequence numbers become invisible to future reads
func (s *Store) MarkAllAsSent(ctx context.Context, items []OutboxItem) error {
	if len(items) == 0 {
		return nil
	}

	seqs := make([]uint64, len(items))

	for i, item := range items {
		seqs[i] = item.Sequence
	}

	return s.db.
		WithContext(ctx).
		Model(&gormOutboxItem{}).
		Where("sequence IN ?", seqs).
		Update("sent_at", time.Now().UTC()).Error
}

func (s *Store) decodeOutboxItems(items []gormOutboxItem) ([]OutboxItem, error) {
	out := make([]OutboxItem, len(items))

	for i, item := range items {
		data, err := s.enc.Decode(&EncodedEvt{
			Data: item.Data,
			Type: item.Type,
		})
		if err != nil {
			return nil, err
		}

		out[i] = OutboxItem{
			Notification:  data,
			Sequence:      item.Sequence,
			StreamID:      item.StreamID,
			CorrelationID: item.CorrelationID,
			Type:          item.Type,
			CreatedAt:     item.CreatedAt,
			SentAt:        item.SentAt,
		}
	}

	return out, nil
}
