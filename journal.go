package eventflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// SubAllConfig (configure using SubAllOpt)
type SubAllConfig struct {
	offset       uint64
	batchSize    int
	pollInterval time.Duration
}

// SubAllOpt represents a subscription / read option
type SubAllOpt func(SubAllConfig) SubAllConfig

// WithOffset is a subscription / read all option that indicates an offset in
// the journal from which to start reading events (exclusive)
func WithOffset(offset uint64) SubAllOpt {
	return func(cfg SubAllConfig) SubAllConfig {
		cfg.offset = offset

		return cfg
	}
}

// WithBatchSize is a subscription / read all option that specifies the read
// batch size (limit) when reading events from the journal
func WithBatchSize(size int) SubAllOpt {
	return func(cfg SubAllConfig) SubAllConfig {
		cfg.batchSize = size

		return cfg
	}
}

// WithPollInterval is a subscription / read all option that specifies the
// polling interval of the underlying database
func WithPollInterval(d time.Duration) SubAllOpt {
	return func(cfg SubAllConfig) SubAllConfig {
		cfg.pollInterval = d

		return cfg
	}
}

func newSubAllConfig(opts ...SubAllOpt) (SubAllConfig, error) {
	cfg := SubAllConfig{
		offset:       0,
		batchSize:    100,
		pollInterval: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	if cfg.batchSize < 1 {
		return cfg, fmt.Errorf("batch size should be at least 1")
	}

	return cfg, nil
}

// Subscription represents a journal subscription that is used for streaming
// incoming events
type Subscription struct {
	// Err chan will produce any errors that might occur while reading events
	// If Err produces io.EOF error, that indicates that we have caught up
	// with the journal and that there are no more events to read after which
	// the subscription itself will continue polling the journal for new events
	// each time we empty the Err channel. This means that reading from Err (in
	// case of io.EOF) can be strategically used in order to achieve backpressure
	Err       chan error
	EventData chan StoredEvent

	close chan struct{}
}

// Close closes the subscription and halts the polling of the database
func (s Subscription) Close() {
	if s.close == nil {
		return
	}

	s.close <- struct{}{}
}

// ReadAll will read all events from the journal by internally creating a
// subscription and depleting it until io.EOF is encountered
// WARNING: Use with caution as this method will read the entire journal
// in a blocking fashion (probably best used in combination with offset option)
func (s *Store) ReadAll(ctx context.Context, opts ...SubAllOpt) ([]StoredEvent, error) {
	sub, err := s.SubscribeAll(ctx, opts...)
	if err != nil {
		return nil, err
	}

	defer sub.Close()

	var events []StoredEvent

	for {
		select {
		case data := <-sub.EventData:
			events = append(events, data)

		case err := <-sub.Err:
			if errors.Is(err, io.EOF) {
				return events, nil
			}

			return nil, err
		}
	}
}

// ReadAllAfter reads all events with a sequence number greater than seqNr
func (s *Store) ReadAllAfter(ctx context.Context, seqNr uint64, opts ...SubAllOpt) ([]StoredEvent, error) {
	return s.ReadAll(ctx, append(opts, WithOffset(seqNr))...)
}

// SubscribeAll will create a subscription which can be used to stream all
// events in an orderly fashion. This mechanism should probably be mostly
// useful for building projections and feeding read models
func (s *Store) SubscribeAll(ctx context.Context, opts ...SubAllOpt) (Subscription, error) {
	cfg, err := newSubAllConfig(opts...)
	if err != nil {
		return Subscription{}, err
	}

	sub := Subscription{
		Err:       make(chan error, 1),
		EventData: make(chan StoredEvent, cfg.batchSize),
		close:     make(chan struct{}, 1),
	}

	go func() {
		var done error

		for {
			select {
			case <-sub.close:
				sub.Err <- ErrSubscriptionClosedByClient

				return
			case <-ctx.Done():
				sub.Err <- ctx.Err()

				return
			case <-time.After(cfg.pollInterval):
				// Make sure client reads all buffered events
				if done != nil {
					if len(sub.EventData) != 0 {
						break
					}

					sub.Err <- done

					return
				}

				var evts []gormEvent

				if err := s.db.
					Where("sequence > ?", cfg.offset).
					Order("sequence asc").
					Limit(cfg.batchSize).
					Find(&evts).Error; err != nil {
					done = err

					break
				}

				if len(evts) == 0 {
					sub.Err <- io.EOF

					break
				}

				cfg.offset = evts[len(evts)-1].Sequence

				decoded, err := s.decodeEvents(evts)
				if err != nil {
					done = err

					break
				}

				for _, evt := range decoded {
					sub.EventData <- evt
				}
			}
		}
	}()

	return sub, nil
}

// StreamSubscription represents a subscription which produces ids of streams
// that have new events appended to them. It is used as a cross-stream wake-up
// mechanism for outbox relays and read model projectors
type StreamSubscription struct {
	Err     chan error
	Streams chan string

	close chan struct{}
}

// Close closes the subscription and halts the polling of the database
func (s StreamSubscription) Close() {
	if s.close == nil {
		return
	}

	s.close <- struct{}{}
}

// SubscribeStreams will create a subscription which produces the id of every
// stream as new events get committed to it (in global commit order)
func (s *Store) SubscribeStreams(ctx context.Context, opts ...SubAllOpt) (StreamSubscription, error) {
	cfg, err := newSubAllConfig(opts...)
	if err != nil {
		return StreamSubscription{}, err
	}

	if cfg.offset == 0 {
		// start from the current journal tail - stream notifications
		// are wake-ups, not a replay mechanism
		var tail uint64

		err := s.db.WithContext(ctx).
			Model(&gormEvent{}).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&tail).Error
		if err != nil {
			return StreamSubscription{}, err
		}

		cfg.offset = tail
	}

	sub := StreamSubscription{
		Err:     make(chan error, 1),
		Streams: make(chan string, cfg.batchSize),
		close:   make(chan struct{}, 1),
	}

	go func() {
		for {
			select {
			case <-sub.close:
				sub.Err <- ErrSubscriptionClosedByClient

				return
			case <-ctx.Done():
				sub.Err <- ctx.Err()

				return
			case <-time.After(cfg.pollInterval):
				var evts []gormEvent

				if err := s.db.
					Select("sequence", "stream_id").
					Where("sequence > ?", cfg.offset).
					Order("sequence asc").
					Limit(cfg.batchSize).
					Find(&evts).Error; err != nil {
					sub.Err <- err

					return
				}

				if len(evts) == 0 {
					break
				}

				cfg.offset = evts[len(evts)-1].Sequence

				for _, evt := range evts {
					sub.Streams <- evt.StreamID
				}
			}
		}
	}()

	return sub, nil
}

// ReadStream will read all events associated with provided stream
// If there are no events stored for a given stream ErrStreamNotFound will be returned
func (s *Store) ReadStream(ctx context.Context, stream string) ([]StoredEvent, error) {
	return s.readStream(ctx, stream, "", 0)
}

// ReadStreamAfter reads events of a stream with a version strictly greater
// than the provided one. An empty result is not an error - it indicates that
// the caller is up to date with the stream
func (s *Store) ReadStreamAfter(ctx context.Context, stream string, version int64) ([]StoredEvent, error) {
	events, err := s.readStream(ctx, stream, "stream_version > ?", version)
	if errors.Is(err, ErrStreamNotFound) {
		return nil, nil
	}

	return events, err
}

// ReadStreamBefore reads events of a stream with a version strictly lower
// than the provided one
func (s *Store) ReadStreamBefore(ctx context.Context, stream string, version int64) ([]StoredEvent, error) {
	return s.readStream(ctx, stream, "stream_version < ?", version)
}

func (s *Store) readStream(ctx context.Context, stream string, versionCond string, version int64) ([]StoredEvent, error) {
	var events []gormEvent

	if len(stream) == 0 {
		return nil, fmt.Errorf("stream name must be provided")
	}

	q := s.db.
		WithContext(ctx).
		Where("stream_id = ?", stream)

	if versionCond != "" {
		q = q.Where(versionCond, version)
	}

	if err := q.
		Order("sequence asc").
		Find(&events).Error; err != nil {

		return nil, err
	}

	if len(events) == 0 {
		return nil, ErrStreamNotFound
	}

	return s.decodeEvents(events)
}

func (s *Store) decodeEvents(events []gormEvent) ([]StoredEvent, error) {
	out := make([]StoredEvent, len(events))

	for i, evt := range events {
		data, err := s.enc.Decode(&EncodedEvt{
			Data: evt.Data,
			Type: evt.Type,
		})
		if err != nil {
			return nil, err
		}

		var meta map[string]string

		if evt.Meta != nil {
			err = json.Unmarshal([]byte(*evt.Meta), &meta)
			if err != nil {
				return nil, err
			}
		}

		out[i] = StoredEvent{
			Event:              data,
			Meta:               meta,
			ID:                 evt.ID,
			Sequence:           evt.Sequence,
			Type:               evt.Type,
			CausationEventID:   evt.CausationEventID,
			CorrelationEventID: evt.CorrelationEventID,
			StreamID:           evt.StreamID,
			StreamVersion:      evt.StreamVersion,
			OccurredOn:         evt.OccurredOn,
		}
	}

	return out, nil
}

// UpdatesSubscription emits a tick whenever any stream has new events
// committed. Ticks are coalesced - a slow consumer observes at least one
// tick for any burst of commits. Used as a cross-process wake-up for outbox
// relays and projectors that keep their own cursors
type UpdatesSubscription struct {
	Err   chan error
	Ticks chan struct{}

	close chan struct{}
}

// Close closes the subscription and halts the polling of the database
func (s UpdatesSubscription) Close() {
	if s.close == nil {
		return
	}

	s.close <- struct{}{}
}

// SubscribeUpdates creates a subscription which ticks on journal growth
func (s *Store) SubscribeUpdates(ctx context.Context, opts ...SubAllOpt) (UpdatesSubscription, error) {
	streams, err := s.SubscribeStreams(ctx, opts...)
	if err != nil {
		return UpdatesSubscription{}, err
	}

	sub := UpdatesSubscription{
		Err:   make(chan error, 1),
		Ticks: make(chan struct{}, 1),
		close: make(chan struct{}, 1),
	}

	go func() {
		for {
			select {
			case <-sub.close:
				streams.Close()

				sub.Err <- ErrSubscriptionClosedByClient

				return
			case err := <-streams.Err:
				sub.Err <- err

				return
			case <-streams.Streams:
				select {
				case sub.Ticks <- struct{}{}:
				default:
				}
			}
		}
	}()

	return sub, nil
}
