package polycache

import (
	"sort"
	"sync"
)

// Event names a cache lifecycle notification.
type Event string

const (
	EventEntrySet           Event = "entry_set"            // key, size, ttl
	EventEntryGetHit        Event = "entry_get_hit"        // key
	EventEntryGetMiss       Event = "entry_get_miss"       // key
	EventEntryEvicted       Event = "entry_evicted"        // key, size, reason ∈ {"capacity", "delete", "undo"}
	EventEntryExpired       Event = "entry_expired"        // key
	EventStrategySwapped    Event = "strategy_swapped"     // from, to
	EventWritePolicySwapped Event = "write_policy_swapped" // from, to, flushed
	EventFlushed            Event = "flushed"              // count, policy
	EventSnapshotTaken      Event = "snapshot_taken"       // id, version, items
	EventSnapshotRestored   Event = "snapshot_restored"    // id, version, strategy, write_policy
	EventCommandExecuted    Event = "command_executed"     // op, key
	EventCommandUndone      Event = "command_undone"       // op, key
	EventCommandRedone      Event = "command_redone"       // op, key
	EventMetricsUpdated     Event = "metrics_updated"      // Metrics fields
	EventEvictionBlocked    Event = "eviction_blocked"     // reason ∈ {"no_victim", "runaway"}
)

// Listener receives events synchronously, in emission order, after the
// operation that produced them has released the cache lock. Listeners may
// call back into the cache. Slow listeners slow the caller down; wrap them
// with hooks/async if that matters.
type Listener func(ev Event, f Fields)

type pending struct {
	ev Event
	f  Fields
}

// events buffers notifications raised under the lock.
type events []pending

func (e *events) add(ev Event, f Fields) { *e = append(*e, pending{ev: ev, f: f}) }

type listeners struct {
	mu   sync.RWMutex
	next uint64
	set  map[uint64]Listener
}

func (ls *listeners) add(l Listener) func() {
	if l == nil {
		return func() {}
	}
	ls.mu.Lock()
	if ls.set == nil {
		ls.set = make(map[uint64]Listener)
	}
	id := ls.next
	ls.next++
	ls.set[id] = l
	ls.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			ls.mu.Lock()
			delete(ls.set, id)
			ls.mu.Unlock()
		})
	}
}

// snapshot returns subscribers in subscription order.
func (ls *listeners) snapshot() []Listener {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	if len(ls.set) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(ls.set))
	for id := range ls.set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = ls.set[id]
	}
	return out
}

func (ls *listeners) emit(evs events) {
	if len(evs) == 0 {
		return
	}
	subs := ls.snapshot()
	for _, p := range evs {
		for _, l := range subs {
			l(p.ev, p.f)
		}
	}
}

// Level is the severity an event is logged at by LogEvents.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
)

func (e Event) Level() Level {
	switch e {
	case EventEvictionBlocked:
		return LevelWarn
	case EventStrategySwapped, EventWritePolicySwapped, EventSnapshotTaken, EventSnapshotRestored:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// LogEvents returns a Listener that writes every event to l as
// "polycache.<event>" at the event's Level.
func LogEvents(l Logger) Listener {
	if l == nil {
		l = NopLogger{}
	}
	return func(ev Event, f Fields) {
		msg := "polycache." + string(ev)
		switch ev.Level() {
		case LevelWarn:
			l.Warn(msg, f)
		case LevelInfo:
			l.Info(msg, f)
		default:
			l.Debug(msg, f)
		}
	}
}
