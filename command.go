package polycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/polycache/entry"
)

type opKind uint8

const (
	opSet opKind = iota + 1
	opDelete
)

func (o opKind) String() string {
	switch o {
	case opSet:
		return "set"
	case opDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// command is one reversible Set or Delete. Values are held encoded so the
// history never aliases caller memory.
//
// Strategy swaps, policy swaps and flushes are not commands. Only a snapshot
// can take those back.
type command struct {
	op  opKind
	key string

	// forward action (set)
	raw []byte
	ttl time.Duration

	// entry as it was before the command ran; nil if the key was absent
	prev *entry.Entry
}

// record pushes cmd onto the undo stack and invalidates the redo stack.
func (m *manager[V]) record(cmd *command, ev *events) {
	m.undo = append(m.undo, cmd)
	if m.maxHistory > 0 && len(m.undo) > m.maxHistory {
		drop := len(m.undo) - m.maxHistory
		n := copy(m.undo, m.undo[drop:])
		clear(m.undo[n:])
		m.undo = m.undo[:n]
	}
	m.redo = nil
	ev.add(EventCommandExecuted, Fields{"op": cmd.op.String(), "key": cmd.key})
}

func (m *manager[V]) Undo(ctx context.Context) (bool, error) {
	var ev events
	m.mu.Lock()
	ok, err := m.step(ctx, &m.undo, &m.redo, m.revert, EventCommandUndone, &ev)
	m.mu.Unlock()
	m.ls.emit(ev)
	return ok, err
}

func (m *manager[V]) Redo(ctx context.Context) (bool, error) {
	var ev events
	m.mu.Lock()
	ok, err := m.step(ctx, &m.redo, &m.undo, m.replay, EventCommandRedone, &ev)
	m.mu.Unlock()
	m.ls.emit(ev)
	return ok, err
}

// step moves the top command of from onto to after running it. A command
// whose table change was rolled back stays where it was. A backing-store
// failure does not roll back, so the command moves and the error is returned.
func (m *manager[V]) step(
	ctx context.Context,
	from, to *[]*command,
	run func(context.Context, *command, *events) error,
	done Event,
	ev *events,
) (bool, error) {
	if err := m.usable(); err != nil {
		return false, err
	}
	if len(*from) == 0 {
		return false, nil
	}
	top := len(*from) - 1
	cmd := (*from)[top]
	(*from)[top] = nil
	*from = (*from)[:top]

	err := run(ctx, cmd, ev)
	var pe *PersistError
	if err != nil && !errors.As(err, &pe) {
		*from = append(*from, cmd)
		return false, err
	}
	*to = append(*to, cmd)
	ev.add(done, Fields{"op": cmd.op.String(), "key": cmd.key})
	m.metricsEvent(ev)
	return true, err
}

// revert takes cmd back. Set restores the prior entry or removes a key that
// did not exist; Delete reinserts the removed entry verbatim.
func (m *manager[V]) revert(ctx context.Context, cmd *command, ev *events) error {
	if cmd.prev != nil {
		return m.restore(ctx, cmd.key, cmd.prev, ev)
	}
	s, ok := m.items[cmd.key]
	if !ok {
		return nil
	}
	return m.drop(ctx, cmd.key, s, "undo", ev)
}

// replay runs cmd's forward action again.
func (m *manager[V]) replay(ctx context.Context, cmd *command, ev *events) error {
	switch cmd.op {
	case opSet:
		val, err := m.codec.Decode(cmd.raw)
		if err != nil {
			return fmt.Errorf("polycache: decode %q: %w", cmd.key, err)
		}
		size := m.sizeOf(cmd.key, cmd.raw)
		if size > m.maxBytes {
			return &CapacityError{Key: cmd.key, Size: size, Limit: m.maxBytes}
		}
		now := m.now()
		m.reap(cmd.key, now, ev)
		s, err := m.apply(ctx, cmd.key, val, cmd.raw, size, cmd.ttl, now, ev)
		if s == nil {
			return err
		}
		ev.add(EventEntrySet, Fields{"key": cmd.key, "size": size, "ttl": cmd.ttl})
		return err
	case opDelete:
		s, ok := m.items[cmd.key]
		if !ok {
			return nil
		}
		m.stats.deletes++
		return m.drop(ctx, cmd.key, s, "delete", ev)
	default:
		return fmt.Errorf("polycache: unknown command op %d", cmd.op)
	}
}

// restore puts a copy of prev back under key, replacing whatever is resident.
// It goes through capacity enforcement and the write policy like a set.
func (m *manager[V]) restore(ctx context.Context, key string, prev *entry.Entry, ev *events) error {
	val, err := m.codec.Decode(prev.Raw)
	if err != nil {
		return fmt.Errorf("polycache: decode %q: %w", key, err)
	}

	e := prev.Clone()
	cur, had := m.items[key]
	if had {
		m.remove(key, cur)
	}
	m.items[key] = &slot[V]{val: val, ent: e}
	m.bytes += e.Size
	if e.Dirty {
		m.dirty++
	}
	m.strategy.OnInsert(key, e)

	if err := m.enforce(ctx, key, ev); err != nil {
		m.remove(key, m.items[key])
		if had {
			m.items[key] = cur
			m.bytes += cur.ent.Size
			if cur.ent.Dirty {
				m.dirty++
			}
		}
		return err
	}
	ev.add(EventEntrySet, Fields{"key": key, "size": e.Size, "ttl": e.TTL})
	return m.persist(ctx, key, e)
}
