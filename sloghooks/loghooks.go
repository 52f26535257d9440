package sloghooks

import (
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/unkn0wn-root/polycache"
	"github.com/unkn0wn-root/polycache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ReadEvery  uint64 // entry_get_hit, entry_get_miss
	WriteEvery uint64 // entry_set, command_executed
	// MetricsEvery samples metrics_updated. 0 drops them entirely since they
	// follow every operation.
	MetricsEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

// Hooks logs cache events to slog with per-group sampling. Cache keys are
// always redacted.
type Hooks struct {
	l    *slog.Logger
	opts Options

	readCtr    atomic.Uint64
	writeCtr   atomic.Uint64
	metricsCtr atomic.Uint64
}

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) allow(ev polycache.Event) bool {
	switch ev {
	case polycache.EventEntryGetHit, polycache.EventEntryGetMiss:
		return sample(h.opts.ReadEvery, &h.readCtr)
	case polycache.EventEntrySet, polycache.EventCommandExecuted:
		return sample(h.opts.WriteEvery, &h.writeCtr)
	case polycache.EventMetricsUpdated:
		if h.opts.MetricsEvery == 0 {
			return false
		}
		return sample(h.opts.MetricsEvery, &h.metricsCtr)
	default:
		return true
	}
}

// Listen is a polycache.Listener.
func (h *Hooks) Listen(ev polycache.Event, f polycache.Fields) {
	if h.l == nil || !h.allow(ev) {
		return
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		v := f[k]
		if k == "key" {
			if s, ok := v.(string); ok {
				v = h.redact(s)
			}
		}
		args = append(args, k, v)
	}

	msg := "polycache." + string(ev)
	switch ev.Level() {
	case polycache.LevelWarn:
		h.l.Warn(msg, args...)
	case polycache.LevelInfo:
		h.l.Info(msg, args...)
	default:
		h.l.Debug(msg, args...)
	}
}
