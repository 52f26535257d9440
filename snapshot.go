package polycache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/polycache/entry"
	"github.com/unkn0wn-root/polycache/eviction"
	"github.com/unkn0wn-root/polycache/internal/wire"
	"github.com/unkn0wn-root/polycache/writepolicy"
)

// Snapshot is an immutable deep copy of a cache: resident entries (encoded
// values plus metadata), the backing-store records written by the cache, the
// active strategy and write policy, and the counters.
//
// A Snapshot can be restored any number of times, into the cache that took it
// or into another cache of the same value type.
type Snapshot struct {
	id      uuid.UUID
	version uint64
	takenAt time.Time

	entries map[string]*entry.Entry
	records map[string][]byte // user key -> framed record

	strategy eviction.Strategy
	policy   writepolicy.Policy
	stats    counters
}

// ID is unique per snapshot.
func (s *Snapshot) ID() string { return s.id.String() }

// Version is the cache's logical clock when the snapshot was taken. Later
// snapshots of the same cache have larger versions.
func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) TakenAt() time.Time { return s.takenAt }
func (s *Snapshot) Len() int           { return len(s.entries) }

// Strategy is the captured strategy's name, or "" for a zero Snapshot.
func (s *Snapshot) Strategy() string {
	if s.strategy == nil {
		return ""
	}
	return s.strategy.Name()
}

// WritePolicy is the captured policy's name, or "" for a zero Snapshot.
func (s *Snapshot) WritePolicy() string {
	if s.policy == nil {
		return ""
	}
	return s.policy.Name()
}

// Keys returns the captured keys in sorted order.
func (s *Snapshot) Keys() []string { return sortedKeys(s.entries) }

// Metrics returns the metrics the cache reported when the snapshot was taken.
func (s *Snapshot) Metrics() Metrics {
	var bytes int64
	dirty := 0
	for _, e := range s.entries {
		bytes += e.Size
		if e.Dirty {
			dirty++
		}
	}
	return Metrics{
		Hits:               s.stats.hits,
		Misses:             s.stats.misses,
		Evictions:          s.stats.evictions,
		Expirations:        s.stats.expirations,
		Sets:               s.stats.sets,
		Deletes:            s.stats.deletes,
		FlushedWrites:      s.stats.flushed,
		DirtyWritesPending: dirty,
		CurrentItems:       len(s.entries),
		TotalBytes:         bytes,
	}
}

func (m *manager[V]) TakeSnapshot(ctx context.Context) (*Snapshot, error) {
	var ev events
	m.mu.Lock()
	recs, err := m.store.dump(ctx)
	if err != nil {
		m.mu.Unlock()
		return nil, &PersistError{Op: "snapshot", Err: err}
	}
	s := &Snapshot{
		id:       uuid.New(),
		version:  m.tick,
		takenAt:  m.now(),
		entries:  make(map[string]*entry.Entry, len(m.items)),
		records:  recs,
		strategy: m.strategy,
		policy:   m.policy,
		stats:    m.stats,
	}
	for k, sl := range m.items {
		s.entries[k] = sl.ent.Clone()
	}
	m.log.Debug("snapshot taken", Fields{"id": s.ID(), "version": s.version, "items": len(s.entries)})
	ev.add(EventSnapshotTaken, Fields{"id": s.ID(), "version": s.version, "items": len(s.entries)})
	m.mu.Unlock()
	m.ls.emit(ev)
	return s, nil
}

// RestoreSnapshot replaces the table, backing store, strategy, write policy
// and counters with the snapshot's. Every value is decoded before anything
// changes. If decoding fails, or the backing-store rewrite fails and is
// rolled back, neither the table nor the store changes. Undo and redo
// history is discarded. A halted cache stays halted.
func (m *manager[V]) RestoreSnapshot(ctx context.Context, s *Snapshot) error {
	if s == nil {
		return ErrNilSnapshot
	}
	if s.strategy == nil || s.policy == nil {
		return ErrInvalidSnapshot
	}

	items := make(map[string]*slot[V], len(s.entries))
	var (
		bytes int64
		dirty int
		tick  uint64
	)
	for k, e := range s.entries {
		v, err := m.codec.Decode(e.Raw)
		if err != nil {
			return fmt.Errorf("polycache: restore decode %q: %w", k, err)
		}
		cp := e.Clone()
		items[k] = &slot[V]{val: v, ent: cp}
		bytes += cp.Size
		if cp.Dirty {
			dirty++
		}
		tick = max(tick, cp.InsertSeq, cp.AccessSeq)
	}
	if len(items) > m.maxItems || bytes > m.maxBytes {
		return fmt.Errorf("%w: snapshot holds %d items, %d bytes", ErrCapacityExceeded, len(items), bytes)
	}
	recs := make(map[string][]byte, len(s.records))
	for k, r := range s.records {
		if _, _, err := wire.DecodeRecord(r); err != nil {
			return fmt.Errorf("polycache: restore record %q: %w", k, err)
		}
		recs[k] = r
	}

	var ev events
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := m.store.load(ctx, recs); err != nil {
		m.log.Warn("snapshot restore aborted: backing store rewrite failed", Fields{"id": s.ID(), "err": err})
		m.mu.Unlock()
		return &PersistError{Op: "restore", Err: err}
	}

	m.items = items
	m.bytes = bytes
	m.dirty = dirty
	m.tick = max(m.tick, s.version, tick)
	m.strategy = s.strategy
	m.policy = s.policy
	m.stats = s.stats
	m.undo, m.redo = nil, nil

	m.log.Info("snapshot restored", Fields{"id": s.ID(), "version": s.version, "items": len(items)})
	ev.add(EventSnapshotRestored, Fields{
		"id":           s.ID(),
		"version":      s.version,
		"strategy":     s.strategy.Name(),
		"write_policy": s.policy.Name(),
	})
	m.metricsEvent(&ev)
	m.mu.Unlock()
	m.ls.emit(ev)
	return nil
}
