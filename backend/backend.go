package backend

import (
	"context"
	"time"
)

// Config represents backend configuration (configure using Option)
type Config struct {
	// MaxRetry is the number of retries on a version conflict
	MaxRetry int

	// RetryInitialDelay is the base for the exponential retry backoff
	RetryInitialDelay time.Duration

	// Cached controls the in-memory command idempotency cache
	Cached bool

	// CommandCacheSize is the capacity of the command idempotency cache
	CommandCacheSize int

	// MaxInMem is the capacity of the in-memory snapshot LRU
	MaxInMem int

	// MaxBuffer is the number of dirty snapshot entries that triggers a flush
	MaxBuffer int

	// MaxWait is the longest a dirty snapshot entry waits before a flush
	MaxWait time.Duration

	// DurableRejections records command ids of rejected commands in storage
	// so that retries short-circuit without re-evaluating the decider and
	// report an empty success
	DurableRejections bool

	// SnapshotStore enables the persisted snapshot cache when provided,
	// otherwise snapshots live in memory only
	SnapshotStore SnapshotStore
}

// Option represents a backend configuration option
type Option func(Config) Config

// WithMaxRetry configures the number of retries on a version conflict
func WithMaxRetry(n int) Option {
	return func(cfg Config) Config {
		cfg.MaxRetry = n

		return cfg
	}
}

// WithRetryInitialDelay configures the base backoff delay
func WithRetryInitialDelay(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.RetryInitialDelay = d

		return cfg
	}
}

// WithCommandCache toggles the in-memory command idempotency cache
func WithCommandCache(enabled bool) Option {
	return func(cfg Config) Config {
		cfg.Cached = enabled

		return cfg
	}
}

// WithCommandCacheSize configures the command cache capacity
func WithCommandCacheSize(n int) Option {
	return func(cfg Config) Config {
		cfg.CommandCacheSize = n

		return cfg
	}
}

// WithSnapshotCacheSize configures the in-memory snapshot LRU capacity
func WithSnapshotCacheSize(n int) Option {
	return func(cfg Config) Config {
		cfg.MaxInMem = n

		return cfg
	}
}

// WithSnapshotBuffer configures the dirty entry count that triggers a
// snapshot flush
func WithSnapshotBuffer(n int) Option {
	return func(cfg Config) Config {
		cfg.MaxBuffer = n

		return cfg
	}
}

// WithSnapshotMaxWait configures the longest a dirty snapshot entry waits
// before being flushed
func WithSnapshotMaxWait(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.MaxWait = d

		return cfg
	}
}

// WithSnapshotStore enables the persisted snapshot cache backed by the
// given store
func WithSnapshotStore(store SnapshotStore) Option {
	return func(cfg Config) Config {
		cfg.SnapshotStore = store

		return cfg
	}
}

// WithDurableRejections records rejected command ids in storage so retried
// rejections short-circuit without re-evaluating the decider
func WithDurableRejections() Option {
	return func(cfg Config) Config {
		cfg.DurableRejections = true

		return cfg
	}
}

// New wires a backend for the given model over the given store.
// Construction order is snapshot cache, then repository, then handler
func New[S, C, E, R, N any](store EventStore, model Model[S, C, E, R, N], opts ...Option) *Backend[S, C, E, R, N] {
	cfg := Config{
		MaxRetry:          5,
		RetryInitialDelay: 2 * time.Second,
		Cached:            true,
		CommandCacheSize:  100,
		MaxInMem:          1000,
		MaxBuffer:         100,
		MaxWait:           time.Minute,
	}

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	var snapshots SnapshotCache[S]

	if cfg.SnapshotStore != nil {
		snapshots = NewPersistedSnapshotCache[S](cfg.SnapshotStore, cfg.MaxInMem, cfg.MaxBuffer, cfg.MaxWait)
	} else {
		snapshots = NewMemorySnapshotCache[S](cfg.MaxInMem)
	}

	repo := NewRepository(store, model, snapshots)

	var commands *CommandStore

	if cfg.Cached {
		commands = NewCommandStore(cfg.CommandCacheSize)
	}

	return &Backend[S, C, E, R, N]{
		Repository: repo,
		Handler: &CommandHandler[S, C, E, R, N]{
			store:             store,
			model:             model,
			repo:              repo,
			snapshots:         snapshots,
			commands:          commands,
			maxRetry:          cfg.MaxRetry,
			retryInitialDelay: cfg.RetryInitialDelay,
			durableRejections: cfg.DurableRejections,
		},
		snapshots: snapshots,
	}
}

// Backend bundles the command handler with the repository it reads through
type Backend[S, C, E, R, N any] struct {
	Repository *Repository[S, C, E, R, N]
	Handler    *CommandHandler[S, C, E, R, N]

	snapshots SnapshotCache[S]
}

// Process applies the command, see CommandHandler.Process
func (b *Backend[S, C, E, R, N]) Process(ctx context.Context, cmd CommandMessage[C]) ([]R, error) {
	return b.Handler.Process(ctx, cmd)
}

// Close releases the backend, flushing any buffered snapshots
func (b *Backend[S, C, E, R, N]) Close() error {
	return b.snapshots.Close()
}
