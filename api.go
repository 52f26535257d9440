package polycache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/polycache/codec"
	"github.com/unkn0wn-root/polycache/eviction"
	pr "github.com/unkn0wn-root/polycache/provider"
	"github.com/unkn0wn-root/polycache/writepolicy"
)

// SizeFunc returns the byte cost charged for a value. raw is the encoded value.
type SizeFunc func(key string, raw []byte) int64

type Cache[V any] = Manager[V] // alias -> polycache.Cache[User] or polycache.Manager[User]

// Manager is the cache. All operations are serialized by one lock per
// instance; listeners run after the lock is released.
type Manager[V any] interface {
	// Set inserts or overwrites key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	// Get returns the value, or ok=false on a miss or lazily detected expiry.
	Get(key string) (v V, ok bool)
	// Delete removes key. Absent keys are a silent no-op.
	Delete(ctx context.Context, key string) error

	SwapEvictionStrategy(s eviction.Strategy)
	SwapWritePolicy(ctx context.Context, p writepolicy.Policy) error
	Flush(ctx context.Context) (int, error)

	// Undo/Redo return false when there is nothing to undo/redo.
	Undo(ctx context.Context) (bool, error)
	Redo(ctx context.Context) (bool, error)

	TakeSnapshot(ctx context.Context) (*Snapshot, error)
	RestoreSnapshot(ctx context.Context, s *Snapshot) error

	Metrics() Metrics
	// AddListener subscribes l to lifecycle events and returns its unsubscribe func.
	AddListener(l Listener) (remove func())

	// TTL returns the remaining lifetime: -1 if key has no TTL, -2 if absent or expired.
	TTL(key string) time.Duration
	// Stored reads the durable copy of key from the backing store.
	Stored(ctx context.Context, key string) (v V, ok bool, err error)
	Len() int

	// Halted reports whether an enforcement runaway stopped the manager.
	Halted() bool
	// Resume clears the halt after the faulty strategy has been replaced.
	Resume()

	// Close flushes pending writes and closes the backing store.
	Close(ctx context.Context) error
}

// Options configure a Manager. Namespace, Codec and both capacities are
// required; everything else has defaults.
type Options[V any] struct {
	// Required
	Namespace     string // isolates this cache's keys in a shared backing store
	Codec         c.Codec[V]
	CapacityItems int
	CapacityBytes int64

	Eviction    eviction.Strategy  // nil => LRU
	WritePolicy writepolicy.Policy // nil => write-through
	Store       pr.Provider        // nil => in-process memory store

	Logger      Logger     // nil => NopLogger
	Listeners   []Listener // subscribed before the first operation
	ComputeSize SizeFunc   // nil => len(raw)

	MaxHistory       int              // undo depth; 0 => 1024, <0 => unbounded
	EnforcementLimit int              // eviction loop cap; 0 => 10000
	Clock            func() time.Time // nil => time.Now
}

func New[V any](opts Options[V]) (Manager[V], error) {
	return newManager[V](opts)
}
