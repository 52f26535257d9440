// Package provider defines the backing store polycache persists into.
//
// The backing store is the durable side of the cache: write-through sets land
// here immediately, write-back sets land on flush. Any byte store can serve
// as long as it is byte-for-byte transparent: Get must return exactly the
// []byte previously passed to Set for a key.
//
// The keyspace "store:<ns>:" is owned by polycache. Values under it are framed
// records; foreign writes are treated as corruption and deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. cost is the entry's size in bytes and may be ignored.
	// polycache always passes ttl=0 (no expiry); stores that only support a
	// global lifetime must be sized so records outlive the cache's use of them.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
