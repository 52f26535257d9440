package polycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	c "github.com/unkn0wn-root/polycache/codec"
	"github.com/unkn0wn-root/polycache/entry"
	"github.com/unkn0wn-root/polycache/eviction"
	"github.com/unkn0wn-root/polycache/provider/memory"
	"github.com/unkn0wn-root/polycache/writepolicy"
)

type slot[V any] struct {
	val V
	ent *entry.Entry
}

// view is the entry.Table handed to strategies and policies. hide, when set,
// keeps the key under mutation out of victim selection.
type view[V any] struct {
	items map[string]*slot[V]
	hide  string
	hid   bool
}

func (v view[V]) Len() int {
	n := len(v.items)
	if v.hid {
		if _, ok := v.items[v.hide]; ok {
			n--
		}
	}
	return n
}

func (v view[V]) Range(fn func(string, *entry.Entry) bool) {
	for k, s := range v.items {
		if v.hid && k == v.hide {
			continue
		}
		if !fn(k, s.ent) {
			return
		}
	}
}

type manager[V any] struct {
	mu sync.Mutex

	ns       string
	codec    c.Codec[V]
	log      Logger
	now      func() time.Time
	sizeOf   SizeFunc
	maxItems int
	maxBytes int64

	maxHistory   int
	enforceLimit int

	items map[string]*slot[V]
	bytes int64
	dirty int
	tick  uint64

	strategy eviction.Strategy
	policy   writepolicy.Policy
	store    *backing

	undo []*command
	redo []*command

	stats  counters
	halted bool
	closed bool

	ls listeners
}

var _ Manager[any] = (*manager[any])(nil)

func newManager[V any](opts Options[V]) (*manager[V], error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("polycache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("polycache: namespace is required")
	}
	if opts.CapacityItems <= 0 {
		return nil, fmt.Errorf("polycache: capacity items must be positive, got %d", opts.CapacityItems)
	}
	if opts.CapacityBytes <= 0 {
		return nil, fmt.Errorf("polycache: capacity bytes must be positive, got %d", opts.CapacityBytes)
	}

	m := &manager[V]{
		ns:       opts.Namespace,
		codec:    opts.Codec,
		maxItems: opts.CapacityItems,
		maxBytes: opts.CapacityBytes,
		items:    make(map[string]*slot[V]),
	}

	// defaults
	m.log = coalesce[Logger](opts.Logger, NopLogger{})
	m.strategy = coalesce[eviction.Strategy](opts.Eviction, eviction.LRU{})
	m.policy = coalesce[writepolicy.Policy](opts.WritePolicy, writepolicy.WriteThrough{})
	m.enforceLimit = coalesce(opts.EnforcementLimit, defaultEnforcementLimit)
	if m.enforceLimit < 0 {
		m.enforceLimit = defaultEnforcementLimit
	}
	m.maxHistory = coalesce(opts.MaxHistory, defaultMaxHistory)

	m.now = time.Now
	if opts.Clock != nil {
		m.now = opts.Clock
	}
	m.sizeOf = rawSize
	if opts.ComputeSize != nil {
		m.sizeOf = opts.ComputeSize
	}

	if opts.Store != nil {
		m.store = newBacking(opts.Store, m.ns, m.log)
	} else {
		m.store = newBacking(memory.New(), m.ns, m.log)
	}

	for _, l := range opts.Listeners {
		m.ls.add(l)
	}
	return m, nil
}

func (m *manager[V]) table() view[V] { return view[V]{items: m.items} }

func (m *manager[V]) tableExcept(key string) view[V] {
	return view[V]{items: m.items, hide: key, hid: true}
}

func (m *manager[V]) stamp() uint64 {
	m.tick++
	return m.tick
}

func (m *manager[V]) touch(e *entry.Entry, now time.Time) {
	e.LastAccess = now
	e.AccessSeq = m.stamp()
}

// usable gates mutations that could grow the table.
func (m *manager[V]) usable() error {
	if m.closed {
		return ErrClosed
	}
	if m.halted {
		return ErrHalted
	}
	return nil
}

func (m *manager[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	raw, err := m.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("polycache: encode %q: %w", key, err)
	}
	// codecs may alias the caller's memory (codec.Bytes)
	raw = append([]byte(nil), raw...)

	var ev events
	m.mu.Lock()
	err = m.set(ctx, key, value, raw, ttl, &ev)
	m.mu.Unlock()
	m.ls.emit(ev)
	return err
}

func (m *manager[V]) set(ctx context.Context, key string, val V, raw []byte, ttl time.Duration, ev *events) error {
	if err := m.usable(); err != nil {
		return err
	}
	size := m.sizeOf(key, raw)
	if size > m.maxBytes {
		m.log.Debug("set rejected: value exceeds byte capacity", Fields{"key": key, "size": size, "limit": m.maxBytes})
		return &CapacityError{Key: key, Size: size, Limit: m.maxBytes}
	}
	if ttl < 0 {
		ttl = 0
	}

	now := m.now()
	m.reap(key, now, ev)
	var prev *entry.Entry
	if s, ok := m.items[key]; ok {
		prev = s.ent.Clone()
	}

	s, err := m.apply(ctx, key, val, raw, size, ttl, now, ev)
	if s == nil {
		return err
	}
	m.record(&command{op: opSet, key: key, raw: raw, ttl: ttl, prev: prev}, ev)
	ev.add(EventEntrySet, Fields{"key": key, "size": size, "ttl": ttl})
	m.metricsEvent(ev)
	return err
}

// apply writes key into the table, enforces capacity and hands the entry to
// the write policy. A nil slot means the mutation was rolled back; a non-nil
// slot with an error means it stands but the backing store failed.
func (m *manager[V]) apply(ctx context.Context, key string, val V, raw []byte, size int64, ttl time.Duration, now time.Time, ev *events) (*slot[V], error) {
	s, existed := m.items[key]
	var (
		old    entry.Entry
		oldVal V
	)
	if existed {
		old, oldVal = *s.ent, s.val
		m.bytes += size - s.ent.Size
		s.val = val
		s.ent.Raw, s.ent.Size, s.ent.TTL = raw, size, ttl
		m.touch(s.ent, now)
		m.strategy.OnAccess(key, s.ent)
	} else {
		e := &entry.Entry{
			Raw:        raw,
			Size:       size,
			CreatedAt:  now,
			LastAccess: now,
			Frequency:  1,
			TTL:        ttl,
		}
		e.InsertSeq = m.stamp()
		e.AccessSeq = e.InsertSeq
		s = &slot[V]{val: val, ent: e}
		m.items[key] = s
		m.bytes += size
		m.strategy.OnInsert(key, e)
	}

	if err := m.enforce(ctx, key, ev); err != nil {
		if existed {
			m.bytes += old.Size - s.ent.Size
			*s.ent = old
			s.val = oldVal
		} else {
			delete(m.items, key)
			m.bytes -= size
		}
		return nil, err
	}
	m.stats.sets++
	return s, m.persist(ctx, key, s.ent)
}

// persist runs the write policy's OnSet and keeps the dirty gauge in step.
func (m *manager[V]) persist(ctx context.Context, key string, e *entry.Entry) error {
	was := e.Dirty
	err := m.policy.OnSet(ctx, key, e, m.store)
	m.trackDirty(was, e.Dirty)
	if err != nil {
		m.log.Warn("backing store write failed", Fields{"key": key, "policy": m.policy.Name(), "err": err})
		return &PersistError{Key: key, Op: "set", Err: err}
	}
	return nil
}

func (m *manager[V]) trackDirty(was, is bool) {
	switch {
	case !was && is:
		m.dirty++
	case was && !is:
		m.dirty--
	}
}

// enforce evicts until the table fits both budgets. protect is never offered
// to the strategy.
func (m *manager[V]) enforce(ctx context.Context, protect string, ev *events) error {
	for i := 0; len(m.items) > m.maxItems || m.bytes > m.maxBytes; i++ {
		if i >= m.enforceLimit {
			m.halted = true
			m.log.Error("eviction enforcement runaway; manager halted", Fields{
				"strategy":   m.strategy.Name(),
				"iterations": i,
				"items":      len(m.items),
				"bytes":      m.bytes,
			})
			ev.add(EventEvictionBlocked, Fields{"reason": "runaway", "strategy": m.strategy.Name(), "iterations": i})
			return fmt.Errorf("%w: %d iterations with strategy %q", ErrEnforcementRunaway, i, m.strategy.Name())
		}

		victim, ok := m.strategy.ChooseVictim(m.tableExcept(protect))
		if !ok {
			m.log.Warn("eviction blocked: no victim", Fields{"strategy": m.strategy.Name(), "items": len(m.items), "bytes": m.bytes})
			ev.add(EventEvictionBlocked, Fields{"reason": "no_victim", "strategy": m.strategy.Name()})
			return ErrEvictionBlocked
		}
		s, ok := m.items[victim]
		if !ok || victim == protect {
			continue // no progress; bounded by enforceLimit
		}

		m.remove(victim, s)
		if s.ent.Dirty {
			if err := m.policy.OnDelete(ctx, victim, m.store); err != nil {
				m.log.Warn("backing store delete failed for evicted entry", Fields{"key": victim, "err": err})
			}
		}
		m.stats.evictions++
		m.log.Debug("evicted", Fields{"key": victim, "strategy": m.strategy.Name(), "size": s.ent.Size})
		ev.add(EventEntryEvicted, Fields{"key": victim, "reason": "capacity", "size": s.ent.Size})
	}
	return nil
}

// remove drops key from the table only.
func (m *manager[V]) remove(key string, s *slot[V]) {
	delete(m.items, key)
	m.bytes -= s.ent.Size
	if s.ent.Dirty {
		m.dirty--
	}
}

// reap removes key if it is resident but expired. Expiry only touches the
// table; the backing copy is left as is.
func (m *manager[V]) reap(key string, now time.Time, ev *events) bool {
	s, ok := m.items[key]
	if !ok || !s.ent.Expired(now) {
		return false
	}
	m.remove(key, s)
	m.stats.expirations++
	m.log.Debug("expired", Fields{"key": key, "ttl": s.ent.TTL})
	ev.add(EventEntryExpired, Fields{"key": key, "ttl": s.ent.TTL})
	return true
}

func (m *manager[V]) Get(key string) (V, bool) {
	var ev events
	m.mu.Lock()
	v, ok := m.get(key, &ev)
	m.mu.Unlock()
	m.ls.emit(ev)
	return v, ok
}

func (m *manager[V]) get(key string, ev *events) (V, bool) {
	var zero V
	now := m.now()
	if m.reap(key, now, ev) {
		m.stats.misses++
		m.metricsEvent(ev)
		return zero, false
	}
	s, ok := m.items[key]
	if !ok {
		m.stats.misses++
		ev.add(EventEntryGetMiss, Fields{"key": key})
		m.metricsEvent(ev)
		return zero, false
	}
	m.touch(s.ent, now)
	s.ent.Frequency++
	m.strategy.OnAccess(key, s.ent)
	m.stats.hits++
	ev.add(EventEntryGetHit, Fields{"key": key})
	m.metricsEvent(ev)
	return s.val, true
}

func (m *manager[V]) Delete(ctx context.Context, key string) error {
	var ev events
	m.mu.Lock()
	err := m.delete(ctx, key, &ev)
	m.mu.Unlock()
	m.ls.emit(ev)
	return err
}

func (m *manager[V]) delete(ctx context.Context, key string, ev *events) error {
	if m.closed {
		return ErrClosed
	}
	s, ok := m.items[key]
	if !ok {
		return nil
	}
	prev := s.ent.Clone()
	m.stats.deletes++
	err := m.drop(ctx, key, s, "delete", ev)
	m.record(&command{op: opDelete, key: key, prev: prev}, ev)
	m.metricsEvent(ev)
	return err
}

// drop removes a resident key on behalf of a caller (delete or undo) and
// propagates the removal through the write policy.
func (m *manager[V]) drop(ctx context.Context, key string, s *slot[V], reason string, ev *events) error {
	m.remove(key, s)
	ev.add(EventEntryEvicted, Fields{"key": key, "reason": reason, "size": s.ent.Size})
	if err := m.policy.OnDelete(ctx, key, m.store); err != nil {
		m.log.Warn("backing store delete failed", Fields{"key": key, "err": err})
		return &PersistError{Key: key, Op: "delete", Err: err}
	}
	return nil
}

func (m *manager[V]) SwapEvictionStrategy(s eviction.Strategy) {
	if s == nil {
		return
	}
	var ev events
	m.mu.Lock()
	from := m.strategy.Name()
	m.strategy = s
	for k, sl := range m.items {
		s.OnInsert(k, sl.ent)
	}
	m.log.Info("eviction strategy swapped", Fields{"from": from, "to": s.Name()})
	ev.add(EventStrategySwapped, Fields{"from": from, "to": s.Name()})
	m.mu.Unlock()
	m.ls.emit(ev)
}

// SwapWritePolicy replaces the write policy. Leaving a deferred policy
// flushes first; if that flush fails the old policy stays active.
func (m *manager[V]) SwapWritePolicy(ctx context.Context, p writepolicy.Policy) error {
	if p == nil {
		return fmt.Errorf("polycache: nil write policy")
	}
	var ev events
	m.mu.Lock()
	err := m.swapPolicy(ctx, p, &ev)
	m.mu.Unlock()
	m.ls.emit(ev)
	return err
}

func (m *manager[V]) swapPolicy(ctx context.Context, p writepolicy.Policy, ev *events) error {
	from := m.policy.Name()
	flushed := 0
	if m.policy.Deferred() && !p.Deferred() {
		n, err := m.flush(ctx, ev)
		flushed = n
		if err != nil {
			m.metricsEvent(ev)
			return err
		}
	}
	m.policy = p
	m.log.Info("write policy swapped", Fields{"from": from, "to": p.Name(), "flushed": flushed})
	ev.add(EventWritePolicySwapped, Fields{"from": from, "to": p.Name(), "flushed": flushed})
	m.metricsEvent(ev)
	return nil
}

func (m *manager[V]) Flush(ctx context.Context) (int, error) {
	var ev events
	m.mu.Lock()
	n, err := m.flush(ctx, &ev)
	m.metricsEvent(&ev)
	m.mu.Unlock()
	m.ls.emit(ev)
	return n, err
}

func (m *manager[V]) flush(ctx context.Context, ev *events) (int, error) {
	n, err := m.policy.Flush(ctx, m.store, m.table())
	m.stats.flushed += uint64(n)
	m.recountDirty()
	if n > 0 {
		m.log.Debug("flushed", Fields{"count": n, "policy": m.policy.Name()})
		ev.add(EventFlushed, Fields{"count": n, "policy": m.policy.Name()})
	}
	if err != nil {
		m.log.Warn("flush failed", Fields{"flushed": n, "pending": m.dirty, "err": err})
		return n, &PersistError{Op: "flush", Err: err}
	}
	return n, nil
}

func (m *manager[V]) recountDirty() {
	n := 0
	for _, s := range m.items {
		if s.ent.Dirty {
			n++
		}
	}
	m.dirty = n
}

func (m *manager[V]) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics()
}

func (m *manager[V]) metrics() Metrics {
	return Metrics{
		Hits:               m.stats.hits,
		Misses:             m.stats.misses,
		Evictions:          m.stats.evictions,
		Expirations:        m.stats.expirations,
		Sets:               m.stats.sets,
		Deletes:            m.stats.deletes,
		FlushedWrites:      m.stats.flushed,
		DirtyWritesPending: m.dirty,
		CurrentItems:       len(m.items),
		TotalBytes:         m.bytes,
	}
}

func (m *manager[V]) metricsEvent(ev *events) {
	ev.add(EventMetricsUpdated, m.metrics().fields())
}

func (m *manager[V]) AddListener(l Listener) func() { return m.ls.add(l) }

func (m *manager[V]) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[key]
	if !ok {
		return -2
	}
	if s.ent.TTL <= 0 {
		return -1
	}
	left := s.ent.TTL - m.now().Sub(s.ent.CreatedAt)
	if left <= 0 {
		return -2
	}
	return left
}

// Stored returns the value currently in the backing store for key, which
// lags the table under write-back until the next flush.
func (m *manager[V]) Stored(ctx context.Context, key string) (V, bool, error) {
	var zero V
	m.mu.Lock()
	payload, ok, err := m.store.read(ctx, key)
	if err != nil || !ok {
		m.mu.Unlock()
		return zero, false, err
	}
	v, err := m.codec.Decode(payload)
	if err != nil {
		m.store.heal(ctx, key, "value_decode")
		m.mu.Unlock()
		return zero, false, nil
	}
	m.mu.Unlock()
	return v, true, nil
}

func (m *manager[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *manager[V]) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

func (m *manager[V]) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.halted {
		m.halted = false
		m.log.Info("manager resumed", Fields{"strategy": m.strategy.Name()})
	}
}

// Close flushes dirty entries and closes the backing store. The flush error,
// if any, is returned and the store is still closed.
func (m *manager[V]) Close(ctx context.Context) error {
	var ev events
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var ferr error
	if m.dirty > 0 {
		_, ferr = m.flush(ctx, &ev)
		m.metricsEvent(&ev)
	}
	cerr := m.store.close(ctx)
	m.mu.Unlock()
	m.ls.emit(ev)

	if ferr != nil {
		return ferr
	}
	return cerr
}
