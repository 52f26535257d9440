package writepolicy

import (
	"context"

	"github.com/unkn0wn-root/polycache/entry"
)

var _ Policy = WriteThrough{}

// WriteThrough persists synchronously: a set is not complete until the
// backing store has the value.
type WriteThrough struct{}

func (WriteThrough) Name() string   { return string(KindWriteThrough) }
func (WriteThrough) Deferred() bool { return false }

// OnSet writes immediately. If the store fails, the entry is left dirty so a
// later Flush can retry it.
func (WriteThrough) OnSet(ctx context.Context, key string, e *entry.Entry, st Store) error {
	if err := st.Put(ctx, key, e); err != nil {
		e.Dirty = true
		return err
	}
	e.Dirty = false
	return nil
}

func (WriteThrough) OnDelete(ctx context.Context, key string, st Store) error {
	return st.Remove(ctx, key)
}

// Flush has nothing to do in steady state. Entries only stay dirty under
// write-through after a failed OnSet; those are retried here.
func (WriteThrough) Flush(ctx context.Context, st Store, t entry.Table) (int, error) {
	return flushDirty(ctx, st, t)
}
