package polycache

import (
	"context"
	"errors"
	"sort"

	"github.com/unkn0wn-root/polycache/entry"
	"github.com/unkn0wn-root/polycache/internal/util"
	"github.com/unkn0wn-root/polycache/internal/wire"
	pr "github.com/unkn0wn-root/polycache/provider"
	"github.com/unkn0wn-root/polycache/writepolicy"
)

// backing adapts a Provider to writepolicy.Store. It frames every value as
// a wire record and remembers which keys it has persisted, so snapshots can
// capture the durable side without scanning the provider.
//
// Guarded by the manager lock.
type backing struct {
	p   pr.Provider
	ns  string
	log Logger

	seq  uint64
	keys map[string]struct{}
}

var _ writepolicy.Store = (*backing)(nil)

func newBacking(p pr.Provider, ns string, log Logger) *backing {
	return &backing{p: p, ns: ns, log: log, keys: make(map[string]struct{})}
}

func (b *backing) storeKey(key string) string { return util.StoreKey(b.ns, key) }

func (b *backing) Put(ctx context.Context, key string, e *entry.Entry) error {
	b.seq++
	return b.write(ctx, key, wire.EncodeRecord(b.seq, e.Raw), e.Size)
}

func (b *backing) write(ctx context.Context, key string, rec []byte, cost int64) error {
	ok, err := b.p.Set(ctx, b.storeKey(key), rec, cost, 0)
	if err != nil {
		return err
	}
	if !ok {
		b.log.Warn("backing store rejected write", Fields{"key": key, "cost": cost})
		return ErrStoreRejected
	}
	b.keys[key] = struct{}{}
	return nil
}

func (b *backing) Remove(ctx context.Context, key string) error {
	if err := b.p.Del(ctx, b.storeKey(key)); err != nil {
		return err
	}
	delete(b.keys, key)
	return nil
}

// read returns the persisted payload for key. Corrupt records are deleted and
// reported as a miss.
func (b *backing) read(ctx context.Context, key string) ([]byte, bool, error) {
	sk := b.storeKey(key)
	raw, ok, err := b.p.Get(ctx, sk)
	if err != nil || !ok {
		return nil, false, err
	}
	_, payload, err := wire.DecodeRecord(raw)
	if err != nil {
		b.heal(ctx, key, "corrupt")
		return nil, false, nil
	}
	return payload, true, nil
}

func (b *backing) heal(ctx context.Context, key, reason string) {
	_ = b.p.Del(ctx, b.storeKey(key)) // self-heal
	delete(b.keys, key)
	b.log.Warn("dropped unreadable backing record", Fields{"key": key, "reason": reason})
}

// dump returns the framed record of every key this cache has persisted.
// Records the provider no longer holds are skipped.
func (b *backing) dump(ctx context.Context) (map[string][]byte, error) {
	// buffered stores (ristretto) may not have applied recent writes yet
	if w, ok := b.p.(interface{ Wait() }); ok {
		w.Wait()
	}
	out := make(map[string][]byte, len(b.keys))
	for k := range b.keys {
		raw, ok, err := b.p.Get(ctx, b.storeKey(k))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, _, err := wire.DecodeRecord(raw); err != nil {
			b.heal(ctx, k, "corrupt")
			continue
		}
		out[k] = append([]byte(nil), raw...)
	}
	return out, nil
}

// load rewrites the backing store to hold exactly recs. New records are
// written in key order before stale ones are removed. If any step fails, the
// records touched so far are put back to what they held before, so the store
// is either fully rewritten or left as it was.
func (b *backing) load(ctx context.Context, recs map[string][]byte) error {
	prev := make(map[string][]byte, len(b.keys))
	for k := range b.keys {
		raw, ok, err := b.p.Get(ctx, b.storeKey(k))
		if err != nil {
			return err
		}
		if ok {
			prev[k] = append([]byte(nil), raw...)
		}
	}
	owned := make(map[string]struct{}, len(b.keys))
	for k := range b.keys {
		owned[k] = struct{}{}
	}
	seq := b.seq

	var touched []string
	fail := func(err error) error {
		if rerr := b.rollback(ctx, touched, prev); rerr != nil {
			err = errors.Join(err, rerr)
		}
		b.keys, b.seq = owned, seq
		return err
	}

	for _, k := range sortedKeys(recs) {
		rec := recs[k]
		n, _, err := wire.DecodeRecord(rec)
		if err != nil {
			return fail(err)
		}
		if err := b.write(ctx, k, rec, int64(len(rec))); err != nil {
			return fail(err)
		}
		touched = append(touched, k)
		if n > b.seq {
			b.seq = n
		}
	}
	for _, k := range sortedKeys(owned) {
		if _, keep := recs[k]; keep {
			continue
		}
		if err := b.Remove(ctx, k); err != nil {
			return fail(err)
		}
		touched = append(touched, k)
	}
	return nil
}

// rollback restores keys to the records in prev, deleting those that had
// none.
func (b *backing) rollback(ctx context.Context, keys []string, prev map[string][]byte) error {
	var errs []error
	for _, k := range keys {
		sk := b.storeKey(k)
		raw, had := prev[k]
		if !had {
			if err := b.p.Del(ctx, sk); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		ok, err := b.p.Set(ctx, sk, raw, int64(len(raw)), 0)
		if err == nil && !ok {
			err = ErrStoreRejected
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		b.log.Error("backing store rollback incomplete", Fields{"keys": len(keys), "failed": len(errs)})
	}
	return errors.Join(errs...)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *backing) close(ctx context.Context) error {
	if b.p == nil {
		return nil
	}
	return b.p.Close(ctx)
}
