package writepolicy

import (
	"context"

	"github.com/unkn0wn-root/polycache/entry"
)

var _ Policy = WriteBack{}

// WriteBack defers persistence. Sets only mark the entry dirty; the backing
// store sees the value on Flush, on a swap to a non-deferred policy, or when
// the manager closes.
type WriteBack struct{}

func (WriteBack) Name() string   { return string(KindWriteBack) }
func (WriteBack) Deferred() bool { return true }

func (WriteBack) OnSet(_ context.Context, _ string, e *entry.Entry, _ Store) error {
	e.Dirty = true
	return nil
}

// OnDelete is not deferred: a stale durable copy must not outlive the key.
func (WriteBack) OnDelete(ctx context.Context, key string, st Store) error {
	return st.Remove(ctx, key)
}

func (WriteBack) Flush(ctx context.Context, st Store, t entry.Table) (int, error) {
	return flushDirty(ctx, st, t)
}
