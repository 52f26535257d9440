// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/polycache"
//	"github.com/unkn0wn-root/polycache/codec"
//	"github.com/unkn0wn-root/polycache/hooks/async"
//	"github.com/unkn0wn-root/polycache/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    ReadEvery:    100, // sample hit/miss logs
//	    MetricsEvery: 0,   // drop metrics_updated
//	})
//
// hooks := asynchook.New(raw.Listen, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := polycache.New[User](polycache.Options[User]{
//	    Namespace:     "app:prod:user",
//	    Codec:         codec.JSON[User]{},
//	    CapacityItems: 10_000,
//	    CapacityBytes: 64 << 20,
//	    Listeners:     []polycache.Listener{hooks.Listen}, // or raw.Listen if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/polycache"
)

// Hooks moves event delivery off the caller's goroutine. Events are dropped
// when the queue is full. With one worker, delivery order is preserved.
type Hooks struct {
	inner   polycache.Listener
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func New(inner polycache.Listener, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for queued ones to be delivered.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full
// or the hooks were closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

// Listen is a polycache.Listener.
func (h *Hooks) Listen(ev polycache.Event, f polycache.Fields) {
	h.try(func() { h.inner(ev, f) })
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}
