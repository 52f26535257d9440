// Package writepolicy decides when cache mutations reach the backing store.
//
//   - WriteThrough: every set is persisted before the call returns.
//   - WriteBack: sets only mark the entry dirty; Flush persists them later.
//
// The manager swaps policies at runtime. Leaving a deferred policy always
// flushes first, so no dirty value is dropped by a swap.
package writepolicy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/unkn0wn-root/polycache/entry"
)

var ErrUnknownPolicy = errors.New("writepolicy: unknown policy")

// Store is the backing store as seen by a policy.
type Store interface {
	// Put persists the entry's encoded value under key.
	Put(ctx context.Context, key string, e *entry.Entry) error
	// Remove deletes key from the backing store. Missing keys are not an error.
	Remove(ctx context.Context, key string) error
}

// Policy is the contract every write policy follows. Methods run under the
// manager lock; Store calls are the only I/O performed while it is held.
type Policy interface {
	// Name is the stable identifier recorded in events and snapshots.
	Name() string

	// Deferred reports whether sets may leave entries dirty.
	Deferred() bool

	OnSet(ctx context.Context, key string, e *entry.Entry, st Store) error
	OnDelete(ctx context.Context, key string, st Store) error

	// Flush persists every dirty entry in t and returns how many were written.
	// On error the count covers the entries written before the failure.
	Flush(ctx context.Context, st Store, t entry.Table) (int, error)
}

// Kind identifies a built-in policy.
type Kind string

const (
	KindWriteThrough Kind = "write_through"
	KindWriteBack    Kind = "write_back"
)

// New returns the built-in policy for k.
func New(k Kind) (Policy, error) {
	switch k {
	case KindWriteThrough:
		return WriteThrough{}, nil
	case KindWriteBack:
		return WriteBack{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, k)
	}
}

// flushDirty writes dirty entries in key order and clears their flag.
func flushDirty(ctx context.Context, st Store, t entry.Table) (int, error) {
	var keys []string
	dirty := make(map[string]*entry.Entry)
	t.Range(func(k string, e *entry.Entry) bool {
		if e.Dirty {
			keys = append(keys, k)
			dirty[k] = e
		}
		return true
	})
	sort.Strings(keys)

	n := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		e := dirty[k]
		if err := st.Put(ctx, k, e); err != nil {
			return n, fmt.Errorf("flush %q: %w", k, err)
		}
		e.Dirty = false
		n++
	}
	return n, nil
}
