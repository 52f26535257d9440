// Package polycache implements a single-instance, observable in-memory cache
// whose eviction strategy and write policy can be swapped at runtime without
// losing data.
//
// Components:
//   - eviction.Strategy: picks the victim under item/byte pressure (LRU, LFU, FIFO).
//   - writepolicy.Policy: decides when values reach the backing store
//     (write-through, write-back with explicit Flush).
//   - provider.Provider: the backing store (in-process map, Ristretto,
//     BigCache, Redis).
//   - codec.Codec[V]: (de)serializes V <-> []byte. The encoded length is the
//     entry's size; the encoded bytes are what undo history and snapshots copy.
//
// Guarantees:
//
//	len(entries) <= CapacityItems and Σ size <= CapacityBytes after every operation
//	TTL is lazy: an expired entry is removed by the Get that finds it
//	Set/Delete are undoable; swaps and flushes are not (use snapshots for those)
//	RestoreSnapshot replaces the in-memory state whole or leaves it untouched
//
// Usage:
//
//	m, _ := polycache.New[User](polycache.Options[User]{
//	    Namespace:     "user",
//	    CapacityItems: 10_000,
//	    CapacityBytes: 64 << 20,
//	    Codec:         codec.JSON[User]{},
//	    WritePolicy:   writepolicy.WriteBack{},
//	})
//	_ = m.Set(ctx, "u:1", u, time.Hour)
//	n, _ := m.Flush(ctx)
package polycache
