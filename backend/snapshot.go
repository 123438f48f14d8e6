package backend

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/anovik/eventflow"
)

// ValidState is a cached (state, version) pair for a stream whose fold
// succeeded up to that version
type ValidState[S any] struct {
	State   S
	Version int64
}

// SnapshotCache caches (streamId -> ValidState). Get returns nil on a miss.
// Implementations are safe for concurrent use by multiple command handlers
type SnapshotCache[S any] interface {
	Get(ctx context.Context, stream string) (*ValidState[S], error)
	Put(ctx context.Context, stream string, v ValidState[S]) error
	Close() error
}

type lruEntry[S any] struct {
	stream string
	value  ValidState[S]
}

// NewMemorySnapshotCache constructs an in-memory LRU snapshot cache of the
// given capacity
func NewMemorySnapshotCache[S any](capacity int) *MemorySnapshotCache[S] {
	if capacity < 1 {
		capacity = 1
	}

	return &MemorySnapshotCache[S]{
		capacity: capacity,
		ll:       list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// MemorySnapshotCache is a fixed-capacity in-memory LRU snapshot cache
type MemorySnapshotCache[S any] struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	entries  map[string]*list.Element
}

// Get returns the cached state for the stream or nil on a miss
func (c *MemorySnapshotCache[S]) Get(_ context.Context, stream string) (*ValidState[S], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[stream]
	if !ok {
		return nil, nil
	}

	c.ll.MoveToFront(el)

	v := el.Value.(*lruEntry[S]).value

	return &v, nil
}

// Put stores the state for the stream, evicting the least recently used
// entry when over capacity
func (c *MemorySnapshotCache[S]) Put(_ context.Context, stream string, v ValidState[S]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.put(stream, v)

	return nil
}

func (c *MemorySnapshotCache[S]) put(stream string, v ValidState[S]) {
	if el, ok := c.entries[stream]; ok {
		el.Value.(*lruEntry[S]).value = v
		c.ll.MoveToFront(el)

		return
	}

	c.entries[stream] = c.ll.PushFront(&lruEntry[S]{stream: stream, value: v})

	if c.ll.Len() > c.capacity {
		back := c.ll.Back()

		c.ll.Remove(back)
		delete(c.entries, back.Value.(*lruEntry[S]).stream)
	}
}

// Close implements SnapshotCache, it is a no-op for the in-memory cache
func (c *MemorySnapshotCache[S]) Close() error { return nil }

// SnapshotStore is the persistent backing consumed by the buffered cache
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, stream string) (*eventflow.Snapshot, error)
	PutSnapshots(ctx context.Context, snaps []eventflow.Snapshot) error
}

// NewPersistedSnapshotCache constructs a snapshot cache that keeps an
// in-memory LRU of maxInMem entries and flushes dirty entries to the
// backing store whenever maxBuffer entries are dirty or maxWait has elapsed
// since the oldest dirty entry, whichever comes first. Flushes are
// coalesced per stream - only the latest version per key is written
func NewPersistedSnapshotCache[S any](
	store SnapshotStore,
	maxInMem int,
	maxBuffer int,
	maxWait time.Duration) *PersistedSnapshotCache[S] {

	if maxBuffer < 1 {
		maxBuffer = 1
	}

	c := &PersistedSnapshotCache[S]{
		mem:       NewMemorySnapshotCache[S](maxInMem),
		store:     store,
		maxBuffer: maxBuffer,
		maxWait:   maxWait,
		dirty:     make(map[string]ValidState[S]),
	}

	c.timer = time.AfterFunc(maxWait, c.flushOnTimer)
	c.timer.Stop()

	return c
}

// PersistedSnapshotCache buffers snapshot writes in front of a persistent
// store. Reads always see the freshest in-memory value, misses fall through
// to the backing store
type PersistedSnapshotCache[S any] struct {
	mem       *MemorySnapshotCache[S]
	store     SnapshotStore
	maxBuffer int
	maxWait   time.Duration

	mu     sync.Mutex
	dirty  map[string]ValidState[S]
	timer  *time.Timer
	closed bool
}

// Get returns the cached state for the stream, falling through to the
// backing store on an in-memory miss
func (c *PersistedSnapshotCache[S]) Get(ctx context.Context, stream string) (*ValidState[S], error) {
	v, _ := c.mem.Get(ctx, stream)
	if v != nil {
		return v, nil
	}

	snap, err := c.store.GetSnapshot(ctx, stream)
	if err != nil {
		if errors.Is(err, eventflow.ErrSnapshotNotFound) {
			return nil, nil
		}

		return nil, err
	}

	var state S

	if err := json.Unmarshal(snap.State, &state); err != nil {
		return nil, err
	}

	loaded := ValidState[S]{State: state, Version: snap.Version}

	_ = c.mem.Put(ctx, stream, loaded)

	return &loaded, nil
}

// Put stores the state in memory and marks the entry dirty for flushing
func (c *PersistedSnapshotCache[S]) Put(ctx context.Context, stream string, v ValidState[S]) error {
	if err := c.mem.Put(ctx, stream, v); err != nil {
		return err
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return errors.New("snapshot cache is closed")
	}

	if len(c.dirty) == 0 {
		c.timer.Reset(c.maxWait)
	}

	c.dirty[stream] = v

	if len(c.dirty) < c.maxBuffer {
		c.mu.Unlock()

		return nil
	}

	batch := c.take()

	c.mu.Unlock()

	return c.flush(ctx, batch)
}

// Close flushes remaining dirty entries and stops the flush timer
func (c *PersistedSnapshotCache[S]) Close() error {
	c.mu.Lock()

	c.closed = true
	c.timer.Stop()

	batch := c.take()

	c.mu.Unlock()

	return c.flush(context.Background(), batch)
}

// take drains the dirty buffer, must be called with mu held
func (c *PersistedSnapshotCache[S]) take() map[string]ValidState[S] {
	if len(c.dirty) == 0 {
		return nil
	}

	batch := c.dirty

	c.dirty = make(map[string]ValidState[S])
	c.timer.Stop()

	return batch
}

func (c *PersistedSnapshotCache[S]) flushOnTimer() {
	c.mu.Lock()

	batch := c.take()

	c.mu.Unlock()

	// snapshots are rebuildable so a failed background flush is dropped,
	// the entries will be re-marked dirty on the next Put
	_ = c.flush(context.Background(), batch)
}

func (c *PersistedSnapshotCache[S]) flush(ctx context.Context, batch map[string]ValidState[S]) error {
	if len(batch) == 0 {
		return nil
	}

	snaps := make([]eventflow.Snapshot, 0, len(batch))

	for stream, v := range batch {
		data, err := json.Marshal(v.State)
		if err != nil {
			return err
		}

		snaps = append(snaps, eventflow.Snapshot{
			StreamID: stream,
			Version:  v.Version,
			State:    data,
		})
	}

	return c.store.PutSnapshots(ctx, snaps)
}
