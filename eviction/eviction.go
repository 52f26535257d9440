// Package eviction holds the strategies polycache uses to pick a victim when
// the item or byte budget is exceeded.
//
// Strategies are stateless selectors over the manager's entry table: recency,
// frequency and insertion order all live on entry.Entry. That is what lets the
// manager swap strategies at runtime without losing any bookkeeping.
package eviction

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/polycache/entry"
)

var ErrUnknownStrategy = errors.New("eviction: unknown strategy")

// Strategy decides which resident entry leaves under capacity pressure.
// All methods are called under the manager lock.
type Strategy interface {
	// Name is the stable identifier recorded in events and snapshots.
	Name() string

	// OnInsert is called once per newly added key, and again for every resident
	// key when the strategy becomes active.
	OnInsert(key string, e *entry.Entry)

	// OnAccess is called on every successful read or overwrite of a resident key.
	OnAccess(key string, e *entry.Entry)

	// ChooseVictim returns the key to evict, or ok=false if the table is empty.
	// The choice must be deterministic for a given table.
	ChooseVictim(t entry.Table) (key string, ok bool)
}

// Kind identifies a built-in strategy.
type Kind string

const (
	// KindLRU evicts the entry with the oldest access.
	KindLRU Kind = "lru"
	// KindLFU evicts the least frequently read entry; ties go to the oldest access.
	KindLFU Kind = "lfu"
	// KindFIFO evicts the oldest created entry, regardless of access.
	KindFIFO Kind = "fifo"
)

// New returns the built-in strategy for k.
func New(k Kind) (Strategy, error) {
	switch k {
	case KindLRU:
		return LRU{}, nil
	case KindLFU:
		return LFU{}, nil
	case KindFIFO:
		return FIFO{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, k)
	}
}

// minBy scans t and returns the key whose entry sorts first under less.
func minBy(t entry.Table, less func(a, b *entry.Entry) bool) (string, bool) {
	var (
		best    string
		bestEnt *entry.Entry
	)
	t.Range(func(k string, e *entry.Entry) bool {
		if bestEnt == nil || less(e, bestEnt) || (!less(bestEnt, e) && k < best) {
			best, bestEnt = k, e
		}
		return true
	})
	return best, bestEnt != nil
}
