// Package eventflow provides a light-weight event-sourcing storage core
// backed by sqlite or postgres. It journals domain events per stream with
// optimistic concurrency, commits outbound notifications (outbox) and
// command idempotency records atomically with those events, and offers
// polling subscriptions used to drive outbox relays and projections.
package eventflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	uuid2 "github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	// ErrStreamNotFound indicates that the requested stream does not exist in the journal
	ErrStreamNotFound = errors.New("stream not found")

	// ErrConcurrencyCheckFailed indicates that stream entry related to a particular version already exists
	ErrConcurrencyCheckFailed = errors.New("optimistic concurrency check failed: stream version exists")

	// ErrCommandAlreadyProcessed indicates that a command with the same id has already been committed
	ErrCommandAlreadyProcessed = errors.New("command already processed")

	// ErrSnapshotNotFound indicates that no snapshot has been persisted for the stream
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSubscriptionClosedByClient is produced by sub.Err if client cancels the subscription using sub.Close()
	ErrSubscriptionClosedByClient = errors.New("subscription closed by client")
)

// EncodedEvt represents an encoded event or notification used by a specific
// encoder implementation
type EncodedEvt struct {
	Data string
	Type string
}

// Encoder is used by the store in order to correctly marshal
// and unmarshal event and notification types
type Encoder interface {
	Encode(any) (*EncodedEvt, error)
	Decode(*EncodedEvt) (any, error)
}

// New constructs a new store
// enc - a specific encoder implementation (see bundled JsonEncoder) which
// needs to have both event and notification types registered
func New(enc Encoder, opts ...Option) (*Store, error) {
	if enc == nil {
		return nil, fmt.Errorf("encoder implementation must be provided")
	}

	var cfg Cfg

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	if cfg.PostgresDSN == "" && cfg.SQLitePath == "" {
		return nil, fmt.Errorf("either postgres dsn or sqlite path must be provided")
	}

	var dial gorm.Dialector

	if cfg.PostgresDSN != "" {
		dial = postgres.Open(cfg.PostgresDSN)
	}

	if cfg.SQLitePath != "" {
		dial = sqlite.Open(cfg.SQLitePath)
	}

	db, err := gorm.Open(dial, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	return &Store{
		db:  db,
		enc: enc,
	}, db.AutoMigrate(&gormEvent{}, &gormOutboxItem{}, &gormSnapshot{}, &gormCommand{})
}

// Cfg represents store configuration
type Cfg struct {
	PostgresDSN string
	SQLitePath  string
}

// Option represents store configuration option
type Option func(Cfg) Cfg

// WithPostgresDB is a store option that can be used to configure
// the store to use postgres as a backing storage (pgx driver)
func WithPostgresDB(dsn string) Option {
	return func(cfg Cfg) Cfg {
		cfg.PostgresDSN = dsn

		return cfg
	}
}

// WithSQLiteDB is a store option that can be used to configure
// the store to use sqlite as a backing storage
func WithSQLiteDB(path string) Option {
	return func(cfg Cfg) Cfg {
		cfg.SQLitePath = path

		return cfg
	}
}

// Store journals events and commits outbox notifications and command
// records in the same transaction
type Store struct {
	db  *gorm.DB
	enc Encoder
}

// Close should be called as a part of cleanup process
// in order to close the underlying sql connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

type gormEvent struct {
	ID                 string `gorm:"unique"`
	Sequence           uint64 `gorm:"autoIncrement;primaryKey"`
	Type               string
	Data               string
	Meta               *string
	CausationEventID   *string
	CorrelationEventID *string
	StreamID           string    `gorm:"index:idx_optimistic_check,unique;index"`
	StreamVersion      int64     `gorm:"index:idx_optimistic_check,unique"`
	OccurredOn         time.Time `gorm:"autoCreateTime"`
}

// TableName returns gorm table name
func (ge *gormEvent) TableName() string { return "event" }

const (
	// InitialStreamVersion can be used as an initial expectedVer for
	// new streams (as an argument to AppendStream)
	InitialStreamVersion int64 = 0
)

// AppendConfig (configure using AppendOpt)
type AppendConfig struct {
	Notifications []any
	CommandID     string
	CorrelationID string
}

// AppendOpt represents an append option
type AppendOpt func(AppendConfig) AppendConfig

// WithNotifications is an append option that commits the provided
// notifications to the outbox within the same transaction as the events
func WithNotifications(notifications ...any) AppendOpt {
	return func(cfg AppendConfig) AppendConfig {
		cfg.Notifications = append(cfg.Notifications, notifications...)

		return cfg
	}
}

// WithCommandID is an append option that records the command id within the
// same transaction as the events. A duplicate id causes the whole append
// to fail with ErrCommandAlreadyProcessed
func WithCommandID(id string) AppendOpt {
	return func(cfg AppendConfig) AppendConfig {
		cfg.CommandID = id

		return cfg
	}
}

// WithCorrelationID is an append option that tags all outbox items written
// by this append. If not provided a fresh xid is generated per append
func WithCorrelationID(id string) AppendOpt {
	return func(cfg AppendConfig) AppendConfig {
		cfg.CorrelationID = id

		return cfg
	}
}

// AppendStream will encode the provided events and try to append them to
// an indicated stream. If the stream does not exist it will be created.
// If the stream already exists an optimistic concurrency check will be
// performed using a compound key (stream-expectedVer).
// expectedVer should be InitialStreamVersion for new streams and the latest
// stream version for existing streams, otherwise ErrConcurrencyCheckFailed
// will be raised.
// Outbox notifications and the command record provided via options are
// committed in the same transaction as the events - either all become
// visible or none do
func (s *Store) AppendStream(
	ctx context.Context,
	stream string,
	expectedVer int64,
	events []EventToStore,
	opts ...AppendOpt) error {

	if len(stream) == 0 {
		return fmt.Errorf("stream name must be provided")
	}

	if expectedVer < InitialStreamVersion {
		return fmt.Errorf("expected version cannot be less than 0")
	}

	var cfg AppendConfig

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	if len(events) == 0 && len(cfg.Notifications) == 0 && cfg.CommandID == "" {
		return nil
	}

	eventsToSave, err := s.encodeEvents(stream, expectedVer, events)
	if err != nil {
		return err
	}

	itemsToSave, err := s.encodeNotifications(stream, cfg)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cfg.CommandID != "" {
			var count int64

			if err := tx.Model(&gormCommand{}).
				Where("id = ?", cfg.CommandID).
				Count(&count).Error; err != nil {
				return err
			}

			if count > 0 {
				return ErrCommandAlreadyProcessed
			}
		}

		if len(eventsToSave) > 0 {
			if err := tx.Create(&eventsToSave).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrConcurrencyCheckFailed
				}

				return err
			}
		}

		if len(itemsToSave) > 0 {
			if err := tx.Create(&itemsToSave).Error; err != nil {
				return err
			}
		}

		if cfg.CommandID != "" {
			err := tx.Create(&gormCommand{
				ID:          cfg.CommandID,
				StreamID:    stream,
				ProcessedAt: time.Now().UTC(),
			}).Error
			if err != nil {
				if isUniqueViolation(err) {
					return ErrCommandAlreadyProcessed
				}

				return err
			}
		}

		return nil
	})
}

func (s *Store) encodeEvents(stream string, expectedVer int64, events []EventToStore) ([]gormEvent, error) {
	eventsToSave := make([]gormEvent, len(events))

	for i, evt := range events {
		encoded, err := s.enc.Encode(evt.Event)
		if err != nil {
			return nil, err
		}

		expectedVer++

		event := gormEvent{
			ID:            evt.ID,
			Type:          encoded.Type,
			Data:          encoded.Data,
			StreamID:      stream,
			StreamVersion: expectedVer,
			OccurredOn:    evt.OccurredOn,
		}

		if evt.CorrelationEventID != "" {
			event.CorrelationEventID = &evt.CorrelationEventID
		}

		if evt.CausationEventID != "" {
			event.CausationEventID = &evt.CausationEventID
		}

		if evt.Meta != nil {
			m, err := json.Marshal(evt.Meta)
			if err != nil {
				return nil, err
			}

			ms := string(m)

			event.Meta = &ms
		}

		if event.ID == "" {
			uuid, err := uuid2.NewV7()
			if err != nil {
				return nil, err
			}

			event.ID = uuid.String()
		}

		if event.OccurredOn.IsZero() {
			event.OccurredOn = time.Now().UTC()
		}

		eventsToSave[i] = event
	}

	return eventsToSave, nil
}

func (s *Store) encodeNotifications(stream string, cfg AppendConfig) ([]gormOutboxItem, error) {
	if len(cfg.Notifications) == 0 {
		return nil, nil
	}

	correlationID := cfg.CorrelationID

	if correlationID == "" {
		correlationID = xid.New().String()
	}

	itemsToSave := make([]gormOutboxItem, len(cfg.Notifications))

	for i, n := range cfg.Notifications {
		encoded, err := s.enc.Encode(n)
		if err != nil {
			return nil, err
		}

		itemsToSave[i] = gormOutboxItem{
			StreamID:      stream,
			CorrelationID: correlationID,
			Type:          encoded.Type,
			Data:          encoded.Data,
			CreatedAt:     time.Now().UTC(),
		}
	}

	return itemsToSave, nil
}

func isUniqueViolation(err error) bool {
	// sqlite reports unique violations as sqlite3.Error code 19, other
	// drivers through gorm's translated ErrDuplicatedKey (TranslateError is
	// enabled in New)
	if e, ok := err.(sqlite3.Error); ok && e.Code == 19 {
		return true
	}

	return errors.Is(err, gorm.ErrDuplicatedKey)
}
